// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dsl

import "fmt"

// Parser is non-reentrant per instance, per spec.md §4.5: construct a
// fresh Parser (via Parse) for every compilation.
type parser struct {
	lex  *Lexer
	tok  Token
	prog *Program
}

// Parse compiles src into a Program. A fresh Lexer and parser are
// created per call, so nothing is shared across compilations.
func Parse(src string) (*Program, error) {
	p := &parser{lex: NewLexer(src), prog: &Program{}}
	if err := p.next(); err != nil {
		return nil, err
	}
	for p.tok.Kind != TokEOF {
		if err := p.statement(); err != nil {
			return nil, err
		}
	}
	return p.prog, nil
}

func (p *parser) next() error {
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) expect(k TokenKind, what string) (Token, error) {
	if p.tok.Kind != k {
		return Token{}, fmt.Errorf("dsl: line %d: expected %s, got %q", p.tok.Line, what, p.tok.Text)
	}
	t := p.tok
	return t, p.next()
}

func (p *parser) statement() error {
	switch p.tok.Kind {
	case TokKwIf:
		return p.ifStatement()
	case TokKwExists:
		// A bare 'exists(...) { ... }' with no leading 'if', per
		// spec.md §8 scenario 4's conditional form.
		testIdx, err := p.condition()
		if err != nil {
			return err
		}
		return p.finishConditional(testIdx)
	case TokHashSigil:
		return p.hashSigilStatement()
	case TokIdent:
		return p.exprStatement()
	default:
		return fmt.Errorf("dsl: line %d: unexpected token %q", p.tok.Line, p.tok.Text)
	}
}

// block parses '{' stmt* '}'.
func (p *parser) block() error {
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return err
	}
	for p.tok.Kind != TokRBrace {
		if p.tok.Kind == TokEOF {
			return fmt.Errorf("dsl: line %d: unterminated block", p.tok.Line)
		}
		if err := p.statement(); err != nil {
			return err
		}
	}
	return p.next() // consume '}'
}

// ifStatement parses 'if' '(' condition ')' block ('else' block)? and
// resolves jump targets per spec.md §4.5's backward-scan rule, applied
// directly here since the parser already knows the relevant indices.
func (p *parser) ifStatement() error {
	if err := p.next(); err != nil { // consume 'if'
		return err
	}
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return err
	}
	testIdx, err := p.condition()
	if err != nil {
		return err
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return err
	}
	return p.finishConditional(testIdx)
}

// finishConditional parses the block ('else' block)? that follows a
// TEST/EXISTS instruction at testIdx and resolves its jump targets.
// Shared by 'if (...)' and the bare 'cond { ... }' form that scripts
// may use in place of it (spec.md §8 scenario 4).
func (p *parser) finishConditional(testIdx int) error {
	line := p.tok.Line
	p.prog.depth++
	p.prog.emit(OpBLOCK, int(BlockBegin), "", "", line)
	if err := p.block(); err != nil {
		return err
	}
	ifEndIdx := p.prog.emit(OpBLOCK, int(BlockEnd), "", "", p.tok.Line)
	p.prog.depth--

	if p.tok.Kind == TokKwElse {
		if err := p.next(); err != nil { // consume 'else'
			return err
		}
		p.prog.depth++
		elseBeginIdx := p.prog.emit(OpBLOCK, int(BlockBegin), "", "", p.tok.Line)
		if err := p.block(); err != nil {
			return err
		}
		elseEndIdx := p.prog.emit(OpBLOCK, int(BlockEnd), "", "", p.tok.Line)
		p.prog.depth--

		p.prog.setSkip(ifEndIdx, elseEndIdx)
		p.prog.setSkip(testIdx, elseBeginIdx)
		return nil
	}

	p.prog.setSkip(testIdx, ifEndIdx)
	return nil
}

// condition parses either 'exists' '(' hashkv ')' or expr relop expr,
// returning the index of the emitted TEST/EXISTS instruction.
func (p *parser) condition() (int, error) {
	if p.tok.Kind == TokKwExists {
		line := p.tok.Line
		if err := p.next(); err != nil {
			return 0, err
		}
		if _, err := p.expect(TokLParen, "'('"); err != nil {
			return 0, err
		}
		if err := p.hashKVExpr(); err != nil {
			return 0, err
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return 0, err
		}
		return p.prog.emit(OpEXISTS, 0, "", "", line), nil
	}

	if err := p.expr(); err != nil {
		return 0, err
	}
	cmp, line, err := p.comparator()
	if err != nil {
		return 0, err
	}
	if err := p.expr(); err != nil {
		return 0, err
	}
	return p.prog.emit(OpTEST, int(cmp), "", "", line), nil
}

func (p *parser) comparator() (Comparator, int, error) {
	line := p.tok.Line
	var cmp Comparator
	switch p.tok.Kind {
	case TokEq:
		cmp = CmpEq
	case TokNe:
		cmp = CmpNe
	case TokLt:
		cmp = CmpLt
	case TokGt:
		cmp = CmpGt
	case TokLe:
		cmp = CmpLe
	case TokGe:
		cmp = CmpGe
	default:
		return 0, 0, fmt.Errorf("dsl: line %d: expected comparator, got %q", p.tok.Line, p.tok.Text)
	}
	return cmp, line, p.next()
}

// expr parses a literal, a hash reference, or a hash key/value
// reference, emitting the corresponding PUSH instruction.
func (p *parser) expr() error {
	line := p.tok.Line
	switch p.tok.Kind {
	case TokIntLit:
		text := p.tok.Text
		p.prog.emit(OpPUSH, int(PushIntLit), text, "", line)
		return p.next()
	case TokFloatLit:
		text := p.tok.Text
		p.prog.emit(OpPUSH, int(PushFloatLit), text, "", line)
		return p.next()
	case TokStringLit:
		text := p.tok.Text
		p.prog.emit(OpPUSH, int(PushStringLit), text, "", line)
		return p.next()
	case TokHashSigil:
		return p.hashExpr()
	default:
		return fmt.Errorf("dsl: line %d: expected expression, got %q", p.tok.Line, p.tok.Text)
	}
}

// hashExpr parses '%' ident ('{' (ident|string) '}')?, pushing a
// PushHashRef or PushHashKV instruction.
func (p *parser) hashExpr() error {
	line := p.tok.Line
	if _, err := p.expect(TokHashSigil, "'%'"); err != nil {
		return err
	}
	name, err := p.expect(TokIdent, "hash name")
	if err != nil {
		return err
	}
	if p.tok.Kind != TokLBrace {
		p.prog.emit(OpPUSH, int(PushHashRef), name.Text, "", line)
		return nil
	}
	if err := p.next(); err != nil { // consume '{'
		return err
	}
	key := p.tok
	if key.Kind != TokIdent && key.Kind != TokStringLit {
		return fmt.Errorf("dsl: line %d: expected hash key, got %q", p.tok.Line, p.tok.Text)
	}
	if err := p.next(); err != nil {
		return err
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return err
	}
	p.prog.emit(OpPUSH, int(PushHashKV), name.Text, key.Text, line)
	return nil
}

// hashKVExpr is hashExpr restricted to the %name{key} form, used by
// exists().
func (p *parser) hashKVExpr() error {
	line := p.tok.Line
	if _, err := p.expect(TokHashSigil, "'%'"); err != nil {
		return err
	}
	name, err := p.expect(TokIdent, "hash name")
	if err != nil {
		return err
	}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return err
	}
	key := p.tok
	if key.Kind != TokIdent && key.Kind != TokStringLit {
		return fmt.Errorf("dsl: line %d: expected hash key, got %q", p.tok.Line, p.tok.Text)
	}
	if err := p.next(); err != nil {
		return err
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return err
	}
	p.prog.emit(OpPUSH, int(PushHashKV), name.Text, key.Text, line)
	return nil
}

// hashSigilStatement parses a statement beginning with a hash
// reference, which is ambiguous until the token following it is seen:
// 'hashkv = expr ;' is an assignment, while 'hashkv relop expr { ... }'
// (no 'if', no parens) is the bare conditional form of spec.md §8
// scenario 4. Both share the same first parsed operand, so the
// disambiguation happens after hashExpr, not before it.
func (p *parser) hashSigilStatement() error {
	if err := p.hashExpr(); err != nil {
		return err
	}
	lhsInstrIdx := len(p.prog.Instructions) - 1
	lhsInstr := p.prog.Instructions[lhsInstrIdx]

	if p.tok.Kind == TokAssign {
		return p.finishAssign(lhsInstrIdx, lhsInstr)
	}

	if PushKind(lhsInstr.Operand) != PushHashKV {
		return fmt.Errorf("dsl: line %d: expected '=' after hash reference", p.tok.Line)
	}
	cmp, line, err := p.comparator()
	if err != nil {
		return err
	}
	if err := p.expr(); err != nil {
		return err
	}
	testIdx := p.prog.emit(OpTEST, int(cmp), "", "", line)
	return p.finishConditional(testIdx)
}

// finishAssign completes 'hashkv = expr ;' once the LHS has already
// been parsed (as lhsInstr, at lhsInstrIdx), pushing the right-hand
// source before the left-hand destination (spec.md §4.5's "ASSIGN
// consumes the two most recent PUSH instructions (right-hand source,
// left-hand destination)").
func (p *parser) finishAssign(lhsInstrIdx int, lhsInstr Instruction) error {
	if PushKind(lhsInstr.Operand) != PushHashKV {
		return fmt.Errorf("dsl: line %d: assignment target must be a hash key/value reference", p.tok.Line)
	}
	line := p.tok.Line
	if err := p.next(); err != nil { // consume '='
		return err
	}

	// Remove the LHS push we already emitted; it must come second.
	p.prog.Instructions = p.prog.Instructions[:lhsInstrIdx]

	if err := p.expr(); err != nil { // RHS, pushed first
		return err
	}
	p.prog.emit(OpPUSH, lhsInstr.Operand, lhsInstr.Data1, lhsInstr.Data2, lhsInstr.Line) // LHS, pushed second
	p.prog.emit(OpASSIGN, 0, "", "", line)

	if _, err := p.expect(TokSemi, "';'"); err != nil {
		return err
	}
	return nil
}

// exprStatement parses a bare primitive call, e.g. xplcmd(...);
func (p *parser) exprStatement() error {
	name, err := p.expect(TokIdent, "identifier")
	if err != nil {
		return err
	}
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return err
	}

	argc := 0
	if p.tok.Kind != TokRParen {
		for {
			if err := p.expr(); err != nil {
				return err
			}
			argc++
			if p.tok.Kind != TokComma {
				break
			}
			if err := p.next(); err != nil {
				return err
			}
		}
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return err
	}
	if _, err := p.expect(TokSemi, "';'"); err != nil {
		return err
	}

	var fn Func
	switch name.Text {
	case "xplcmd":
		fn = FuncXPLCmd
		if argc != 4 {
			return fmt.Errorf("dsl: line %d: xplcmd expects 4 arguments, got %d", name.Line, argc)
		}
	default:
		return fmt.Errorf("dsl: line %d: unknown function %q", name.Line, name.Text)
	}
	p.prog.emit(OpFUNC, int(fn), "", "", name.Line)
	return nil
}
