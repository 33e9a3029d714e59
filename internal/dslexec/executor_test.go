// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dslexec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xplhald/xplhald/internal/dsl"
	"github.com/xplhald/xplhald/internal/hashtab"
	"github.com/xplhald/xplhald/internal/xplmsg"
)

func sourceIdentity() xplmsg.Identity {
	return xplmsg.Identity{Vendor: "xpl", Device: "xplhald", Instance: "test"}
}

func TestExecutorIfElseBranchesOnMatch(t *testing.T) {
	src := `
%xplnvin{current} = "on";
if (%xplnvin{current} == "on") {
	%result{action} = "engage";
} else {
	%result{action} = "disengage";
}
`
	prog, err := dsl.Parse(src)
	require.NoError(t, err)

	table := hashtab.NewTable(nil)
	exec := NewExecutor(prog, table, sourceIdentity(), nil)
	require.NoError(t, exec.Run())

	v, ok := table.Hash("result").Get("action")
	require.True(t, ok)
	require.Equal(t, "engage", v)
}

func TestExecutorIfElseBranchesOnMismatch(t *testing.T) {
	src := `
%xplnvin{current} = "off";
if (%xplnvin{current} == "on") {
	%result{action} = "engage";
} else {
	%result{action} = "disengage";
}
`
	prog, err := dsl.Parse(src)
	require.NoError(t, err)

	table := hashtab.NewTable(nil)
	exec := NewExecutor(prog, table, sourceIdentity(), nil)
	require.NoError(t, exec.Run())

	v, ok := table.Hash("result").Get("action")
	require.True(t, ok)
	require.Equal(t, "disengage", v)
}

func TestExecutorExistsGuardsUndefinedKey(t *testing.T) {
	src := `
if (exists(%xplnvin{missing})) {
	%result{seen} = "yes";
} else {
	%result{seen} = "no";
}
`
	prog, err := dsl.Parse(src)
	require.NoError(t, err)

	table := hashtab.NewTable(nil)
	exec := NewExecutor(prog, table, sourceIdentity(), nil)
	require.NoError(t, exec.Run())

	v, ok := table.Hash("result").Get("seen")
	require.True(t, ok)
	require.Equal(t, "no", v)
}

func TestExecutorExistsDoesNotSpringHashIntoExistence(t *testing.T) {
	src := `
if (exists(%untouched{missing})) {
	%result{seen} = "yes";
} else {
	%result{seen} = "no";
}
`
	prog, err := dsl.Parse(src)
	require.NoError(t, err)

	table := hashtab.NewTable(nil)
	exec := NewExecutor(prog, table, sourceIdentity(), nil)
	require.NoError(t, exec.Run())

	v, ok := table.Hash("result").Get("seen")
	require.True(t, ok)
	require.Equal(t, "no", v)
	require.False(t, table.Exists("untouched"))
}

func TestExecutorXPLCmdDrainsOutHashAfterSend(t *testing.T) {
	src := `
%cmd{current} = "on";
xplcmd("acme-dimmer.kitchen", "control", "basic", %cmd);
%cmd{current} = "off";
xplcmd("acme-dimmer.kitchen", "control", "basic", %cmd);
`
	prog, err := dsl.Parse(src)
	require.NoError(t, err)

	var sent []*xplmsg.Message
	sender := func(m *xplmsg.Message) error {
		sent = append(sent, m)
		return nil
	}

	table := hashtab.NewTable(nil)
	exec := NewExecutor(prog, table, sourceIdentity(), sender)
	require.NoError(t, exec.Run())

	require.Len(t, sent, 2)
	require.Len(t, sent[0].Body, 1)
	v, _ := sent[0].Get("current")
	require.Equal(t, "on", v)

	require.Len(t, sent[1].Body, 1)
	v, _ = sent[1].Get("current")
	require.Equal(t, "off", v)
}

// TestExecutorRunsBareConditionWithoutIfKeyword reproduces spec.md §8
// scenario 4's literal script text verbatim: a top-level condition
// with no 'if' keyword and no parentheses around it.
func TestExecutorRunsBareConditionWithoutIfKeyword(t *testing.T) {
	src := `%xplin{sourceaddress} == "acme-foo.a" { %xplout{device} = "lamp"; %xplout{current} = "on"; xplcmd("acme-foo.a", "cmnd", "control.basic", %xplout); }`

	prog, err := dsl.Parse(src)
	require.NoError(t, err)

	table := hashtab.NewTable(nil)
	require.NoError(t, table.Hash("xplin").Set("sourceaddress", "acme-foo.a"))

	var sent *xplmsg.Message
	sender := func(m *xplmsg.Message) error {
		sent = m
		return nil
	}

	exec := NewExecutor(prog, table, sourceIdentity(), sender)
	require.NoError(t, exec.Run())

	require.NotNil(t, sent)
	require.Equal(t, "acme-foo.a", sent.Target.String())
	require.Equal(t, "cmnd.control.basic", sent.Schema())
	device, _ := sent.Get("device")
	current, _ := sent.Get("current")
	require.Equal(t, "lamp", device)
	require.Equal(t, "on", current)
}

func TestExecutorXPLCmdSendsFrameFromHash(t *testing.T) {
	src := `
%cmd{current} = "on";
xplcmd("acme-dimmer.kitchen", "control", "basic", %cmd);
`
	prog, err := dsl.Parse(src)
	require.NoError(t, err)

	var sent *xplmsg.Message
	sender := func(m *xplmsg.Message) error {
		sent = m
		return nil
	}

	table := hashtab.NewTable(nil)
	exec := NewExecutor(prog, table, sourceIdentity(), sender)
	require.NoError(t, exec.Run())

	require.NotNil(t, sent)
	require.Equal(t, "acme-dimmer.kitchen", sent.Target.String())
	require.Equal(t, "control.basic", sent.Schema())
	v, _ := sent.Get("current")
	require.Equal(t, "on", v)
}

func TestExecutorUndefinedVariableFailsWithReason(t *testing.T) {
	src := `
if (%xplnvin{nope} == "x") {
	%result{seen} = "yes";
}
`
	prog, err := dsl.Parse(src)
	require.NoError(t, err)

	table := hashtab.NewTable(nil)
	exec := NewExecutor(prog, table, sourceIdentity(), nil)
	err = exec.Run()
	require.Error(t, err)
	require.NotEmpty(t, exec.FailReason)
}
