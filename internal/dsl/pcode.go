// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dsl implements the trigger-script language's lexer, parser,
// and p-code emitter: source text compiles down to a linear, ordered
// instruction stream that internal/dslexec then interprets. Grounded on
// original_source/parser.c's pcode_t linked list and lex.h's tokenizer,
// reimplemented without talloc arenas — a compiled Program's lifetime is
// just the lifetime of the Go slice backing it.
package dsl

import "fmt"

// Opcode is one p-code instruction's operation.
type Opcode int

const (
	OpNOP Opcode = iota
	OpPUSH
	OpASSIGN
	OpFUNC
	OpBLOCK
	OpIF
	OpTEST
	OpEXISTS
)

func (o Opcode) String() string {
	switch o {
	case OpNOP:
		return "NOP"
	case OpPUSH:
		return "PUSH"
	case OpASSIGN:
		return "ASSIGN"
	case OpFUNC:
		return "FUNC"
	case OpBLOCK:
		return "BLOCK"
	case OpIF:
		return "IF"
	case OpTEST:
		return "TEST"
	case OpEXISTS:
		return "EXISTS"
	default:
		return fmt.Sprintf("Opcode(%d)", int(o))
	}
}

// PushKind distinguishes what a PUSH instruction's operand/data carry,
// per spec.md §4.5.
type PushKind int

const (
	PushStringLit PushKind = iota
	PushIntLit
	PushFloatLit
	PushHashRef
	PushHashKV
)

// Comparator is TEST's operand, selecting the comparison applied to its
// two operands.
type Comparator int

const (
	CmpEq Comparator = iota
	CmpNe
	CmpLt
	CmpGt
	CmpLe
	CmpGe
)

// BlockEdge distinguishes a BLOCK instruction's begin/end role.
type BlockEdge int

const (
	BlockBegin BlockEdge = iota
	BlockEnd
)

// Func is the set of callable primitives. xplcmd is the only one
// defined, per spec.md §4.6.
type Func int

const (
	FuncXPLCmd Func = iota
)

// Instruction is one p-code entry. Fields not meaningful to a given
// Opcode are left zero.
type Instruction struct {
	Seq      int
	Op       Opcode
	Operand  int // PushKind | Comparator | Func | BlockEdge, depending on Op
	Data1    string
	Data2    string
	Line     int
	Depth    int // control-structure depth at emission time
	SkipSet  bool
	SkipDest int // absolute index into Program.Instructions
}

// Program is the linear, ordered, append-only instruction stream
// produced by Parse. A sentinel-free Go slice gives O(1) append and
// O(1) indexed access, replacing the original's sentinel head/tail
// linked list.
type Program struct {
	Instructions []Instruction
	depth        int
}

func (p *Program) emit(op Opcode, operand int, data1, data2 string, line int) int {
	idx := len(p.Instructions)
	p.Instructions = append(p.Instructions, Instruction{
		Seq:     idx,
		Op:      op,
		Operand: operand,
		Data1:   data1,
		Data2:   data2,
		Line:    line,
		Depth:   p.depth,
	})
	return idx
}

func (p *Program) setSkip(idx, dest int) {
	p.Instructions[idx].SkipSet = true
	p.Instructions[idx].SkipDest = dest
}
