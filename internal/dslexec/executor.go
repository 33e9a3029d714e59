// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dslexec interprets a compiled internal/dsl.Program linearly,
// maintaining the firstPush/pushCount anchor described in spec.md §4.6
// (original_source/parser.c's ParserExecPcode loop) and dispatching the
// one defined primitive, xplcmd.
package dslexec

import (
	"fmt"
	"strconv"

	"github.com/xplhald/xplhald/internal/dsl"
	"github.com/xplhald/xplhald/internal/hashtab"
	"github.com/xplhald/xplhald/internal/metrics"
	"github.com/xplhald/xplhald/internal/xplmsg"
)

// Sender transmits a compiled xplcmd frame. cmd/xplhald supplies it
// (sending over the receiver's UDP socket) and internal/orchestrator
// passes it to every Executor it creates.
type Sender func(m *xplmsg.Message) error

// Executor runs one Program against one hashtab.Table.
type Executor struct {
	prog   *dsl.Program
	table  *hashtab.Table
	sender Sender
	// source identifies the locally hosted service xplcmd sends as.
	source xplmsg.Identity

	firstPush int
	pushCount int

	// FailReason mirrors the original's "failReason" string on the
	// program header: set on the first runtime error and left for the
	// caller to inspect after Run returns.
	FailReason string
}

// NewExecutor creates an Executor bound to table and sender. source is
// the identity xplcmd's outbound frames are sent from.
func NewExecutor(prog *dsl.Program, table *hashtab.Table, source xplmsg.Identity, sender Sender) *Executor {
	return &Executor{prog: prog, table: table, source: source, sender: sender}
}

// runtimeError is an expected, non-assertion failure (undefined
// variable, arity mismatch, bad tag, encode/send error): it halts
// execution but is not a programmer error.
type runtimeError struct{ msg string }

func (e *runtimeError) Error() string { return e.msg }

func fail(format string, args ...interface{}) error {
	return &runtimeError{msg: fmt.Sprintf(format, args...)}
}

// Run executes the program from instruction 0 to completion (falling
// off the end) or until a primitive/runtime error halts it.
func (e *Executor) Run() error {
	ins := e.prog.Instructions
	pc := 0
	for pc < len(ins) {
		instr := &ins[pc]

		var jumpTo = -1
		var err error

		switch instr.Op {
		case dsl.OpNOP:
			// none

		case dsl.OpPUSH:
			if e.pushCount == 0 {
				e.firstPush = pc
			}
			e.pushCount++

		case dsl.OpASSIGN:
			err = e.execAssign(ins, pc)

		case dsl.OpTEST:
			jumpTo, err = e.execTest(ins, pc, instr)

		case dsl.OpEXISTS:
			jumpTo, err = e.execExists(ins, pc, instr)

		case dsl.OpFUNC:
			err = e.execFunc(ins, pc, instr)

		case dsl.OpBLOCK:
			if dsl.BlockEdge(instr.Operand) == dsl.BlockEnd && instr.SkipSet {
				jumpTo = instr.SkipDest
			}

		case dsl.OpIF:
			// IF itself carries no runtime action; TEST/EXISTS drive
			// the branch, per spec.md §4.5-4.6.

		default:
			return fmt.Errorf("dslexec: line %d: unknown opcode %v (assertion failure)", instr.Line, instr.Op)
		}

		// Any non-PUSH opcode ends the current push sequence, once it has
		// consumed the pushes it needs.
		if instr.Op != dsl.OpPUSH {
			e.firstPush = 0
			e.pushCount = 0
		}

		if err != nil {
			if _, ok := err.(*runtimeError); ok {
				e.FailReason = err.Error()
				metrics.ScriptsFailed.Inc()
				return err
			}
			return err
		}

		if jumpTo >= 0 {
			pc = jumpTo
			continue
		}
		pc++
	}
	metrics.ScriptsExecuted.Inc()
	return nil
}

// pushPair returns the two PUSH instructions immediately preceding
// idx (idx-2, idx-1), the linear stand-in for "the two most recent
// pushes" since this executor has no separate operand stack.
func pushPair(ins []dsl.Instruction, idx int) (a, b *dsl.Instruction) {
	return &ins[idx-2], &ins[idx-1]
}

func (e *Executor) execAssign(ins []dsl.Instruction, pc int) error {
	if e.pushCount != 2 {
		return fail("line %d: ASSIGN requires exactly 2 pushes, got %d", ins[pc].Line, e.pushCount)
	}
	rhs, lhs := pushPair(ins, pc)
	if dsl.PushKind(lhs.Operand) != dsl.PushHashKV {
		return fail("line %d: ASSIGN target must be a hash key/value reference", ins[pc].Line)
	}

	value, err := e.resolvePush(rhs)
	if err != nil {
		return err
	}
	return e.table.Hash(lhs.Data1).Set(lhs.Data2, value)
}

// resolvePush returns the string value a PUSH instruction denotes.
func (e *Executor) resolvePush(instr *dsl.Instruction) (string, error) {
	switch dsl.PushKind(instr.Operand) {
	case dsl.PushStringLit, dsl.PushIntLit, dsl.PushFloatLit:
		return instr.Data1, nil
	case dsl.PushHashKV:
		v, ok := e.table.Hash(instr.Data1).Get(instr.Data2)
		if !ok {
			return "", fail("line %d: undefined variable %%%s{%s}", instr.Line, instr.Data1, instr.Data2)
		}
		return v, nil
	case dsl.PushHashRef:
		return "", fail("line %d: hash %%%s cannot be used as a scalar value", instr.Line, instr.Data1)
	default:
		return "", fmt.Errorf("dslexec: line %d: unknown push kind %d (assertion failure)", instr.Line, instr.Operand)
	}
}

func (e *Executor) execTest(ins []dsl.Instruction, pc int, instr *dsl.Instruction) (int, error) {
	if e.pushCount != 2 {
		return -1, fail("line %d: TEST requires exactly 2 pushes, got %d", instr.Line, e.pushCount)
	}
	left, right := pushPair(ins, pc)
	lv, err := e.resolvePush(left)
	if err != nil {
		return -1, err
	}
	rv, err := e.resolvePush(right)
	if err != nil {
		return -1, err
	}

	ok := evalComparator(dsl.Comparator(instr.Operand), lv, rv)
	if !ok {
		if !instr.SkipSet {
			return -1, fmt.Errorf("dslexec: line %d: TEST has no skip-target (assertion failure)", instr.Line)
		}
		return instr.SkipDest, nil
	}
	return -1, nil
}

// evalComparator coerces both operands to decimal numbers when
// possible and compares numerically; otherwise (a failed numeric parse
// on either side) it compares the raw strings: exactly for
// equality/inequality, lexically for the ordering comparators.
func evalComparator(cmp dsl.Comparator, lv, rv string) bool {
	lf, lerr := strconv.ParseFloat(lv, 64)
	rf, rerr := strconv.ParseFloat(rv, 64)
	if lerr == nil && rerr == nil {
		switch cmp {
		case dsl.CmpEq:
			return lf == rf
		case dsl.CmpNe:
			return lf != rf
		case dsl.CmpLt:
			return lf < rf
		case dsl.CmpGt:
			return lf > rf
		case dsl.CmpLe:
			return lf <= rf
		case dsl.CmpGe:
			return lf >= rf
		}
	}
	switch cmp {
	case dsl.CmpEq:
		return lv == rv
	case dsl.CmpNe:
		return lv != rv
	case dsl.CmpLt:
		return lv < rv
	case dsl.CmpGt:
		return lv > rv
	case dsl.CmpLe:
		return lv <= rv
	default: // dsl.CmpGe
		return lv >= rv
	}
}

func (e *Executor) execExists(ins []dsl.Instruction, pc int, instr *dsl.Instruction) (int, error) {
	if e.pushCount != 1 {
		return -1, fail("line %d: EXISTS requires exactly 1 push, got %d", instr.Line, e.pushCount)
	}
	ref := &ins[pc-1]
	if dsl.PushKind(ref.Operand) != dsl.PushHashKV {
		return -1, fail("line %d: exists() requires a hash key/value reference", instr.Line)
	}
	// Checking existence must not itself spring the hash into being —
	// only consult Hash(), which auto-vivifies, once we know the hash
	// was already referenced.
	ok := e.table.Exists(ref.Data1)
	if ok {
		_, ok = e.table.Hash(ref.Data1).Get(ref.Data2)
	}
	if !ok {
		if !instr.SkipSet {
			return -1, fmt.Errorf("dslexec: line %d: EXISTS has no skip-target (assertion failure)", instr.Line)
		}
		return instr.SkipDest, nil
	}
	return -1, nil
}

func (e *Executor) execFunc(ins []dsl.Instruction, pc int, instr *dsl.Instruction) error {
	switch dsl.Func(instr.Operand) {
	case dsl.FuncXPLCmd:
		return e.execXPLCmd(ins, pc, instr)
	default:
		return fmt.Errorf("dslexec: line %d: unknown primitive %d (assertion failure)", instr.Line, instr.Operand)
	}
}

// execXPLCmd implements spec.md §4.6's xplcmd primitive: pushCount==4,
// positional args (tag, class, schema, hash-ref); the payload is
// drained from the named hash, in its stored order, into the outbound
// frame.
func (e *Executor) execXPLCmd(ins []dsl.Instruction, pc int, instr *dsl.Instruction) error {
	if e.pushCount != 4 {
		return fail("line %d: xplcmd requires exactly 4 arguments, got %d", instr.Line, e.pushCount)
	}
	args := ins[pc-4 : pc]

	tag, err := e.resolvePush(&args[0])
	if err != nil {
		return err
	}
	class, err := e.resolvePush(&args[1])
	if err != nil {
		return err
	}
	schema, err := e.resolvePush(&args[2])
	if err != nil {
		return err
	}
	if dsl.PushKind(args[3].Operand) != dsl.PushHashRef {
		return fail("line %d: xplcmd's fourth argument must be a hash reference", instr.Line)
	}

	id, err := xplmsg.ParseIdentity(tag)
	if err != nil {
		return fail("line %d: xplcmd: bad xPL tag %q: %v", instr.Line, tag, err)
	}

	outHash := e.table.Hash(args[3].Data1)
	m := xplmsg.NewTargeted(xplmsg.Command, e.source, id, class, schema)
	for _, kv := range outHash.Entries() {
		m.Set(kv[0], kv[1])
	}

	sendErr := e.sender(m)
	// The outbound hash is drained unconditionally, whether or not the
	// send itself succeeded, per original_source/parser.c's
	// deleteHashContents call after xplcmd.
	outHash.Clear()

	if sendErr != nil {
		return fail("line %d: xplcmd: send failed: %v", instr.Line, sendErr)
	}
	return nil
}
