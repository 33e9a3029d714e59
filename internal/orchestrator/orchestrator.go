// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package orchestrator glues the service dispatcher (internal/xplservice)
// to the persistent store and the DSL compiler/executor
// (internal/dsl, internal/dslexec): it identifies a trigger message's
// source, looks up and runs the matching script, and logs
// triggers/heartbeats. Grounded in original_source/xplcore.c's
// dispatch-to-trigger-handling glue and spec.md §4.9.
package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/xplhald/xplhald/internal/dsl"
	"github.com/xplhald/xplhald/internal/dslexec"
	"github.com/xplhald/xplhald/internal/hashtab"
	"github.com/xplhald/xplhald/internal/notify"
	"github.com/xplhald/xplhald/internal/store"
	"github.com/xplhald/xplhald/internal/xplmsg"
	"github.com/xplhald/xplhald/pkg/log"
)

const preprocessScriptName = "preprocess"

// Orchestrator owns the store and the outbound sender used by compiled
// scripts' xplcmd calls.
type Orchestrator struct {
	st       store.Store
	sender   dslexec.Sender
	source   xplmsg.Identity
	notifier *notify.Publisher
	monitor  func(summary string)
	log      *log.Logger
}

// New creates an Orchestrator. source is the identity xplcmd sends
// outbound frames from (the local daemon's own service identity);
// sender transmits the compiled frame over the broadcast socket.
// notifier may be nil (no external trigger-event republishing).
func New(st store.Store, source xplmsg.Identity, sender dslexec.Sender, notifier *notify.Publisher) *Orchestrator {
	return &Orchestrator{st: st, sender: sender, source: source, notifier: notifier, log: log.With("orchestrator")}
}

// SetMonitorPublisher wires the admin server's live trigger tap
// ("cl:monitor"): fn is called with a one-line summary after every
// dispatched trigger. Optional; nil disables the tap.
func (o *Orchestrator) SetMonitorPublisher(fn func(summary string)) {
	o.monitor = fn
}

// OnHeartbeat records the most recent heartbeat seen from m's source.
func (o *Orchestrator) OnHeartbeat(m *xplmsg.Message) {
	if err := o.st.UpdateHeartbeatLog(m.Source.String(), time.Now()); err != nil {
		o.log.Errorf("update heartbeat log: %v", err)
	}
}

// OnTrigger implements spec.md §4.9's three-step trigger handling.
func (o *Orchestrator) OnTrigger(m *xplmsg.Message) {
	o.notifier.PublishTrigger(m)
	tag := o.resolveTag(m)

	if scriptText, err := o.st.FetchScriptByTag(tag); err == nil {
		o.runBoundScript(tag, scriptText, m)
	} else if err != store.ErrNotFound {
		o.log.Errorf("fetch script by tag %s: %v", tag, err)
	}

	nvpairs := joinNameValues(m.Body)
	if err := o.st.UpdateTriggerLog(tag, m.Schema(), nvpairs, time.Now()); err != nil {
		o.log.Errorf("update trigger log: %v", err)
	}

	if o.monitor != nil {
		o.monitor(fmt.Sprintf("%s schema=%s tag=%s %s", m.Source, m.Schema(), tag, nvpairs))
	}
}

// resolveTag forms the final source tag: the bare V-D.I tag, or that tag
// with ":subaddress" appended, per spec.md §4.9 step 1.
func (o *Orchestrator) resolveTag(m *xplmsg.Message) string {
	base := m.Source.String()

	subaddress := o.preprocessSubaddress(m)
	if subaddress == "" {
		subaddress = cannedSubaddress(m)
	}
	if subaddress == "" {
		return base
	}
	return base + ":" + subaddress
}

// preprocessSubaddress compiles and runs a script named "preprocess", if
// one exists, with xplnvin pre-populated from m, then reads
// result.subaddress from the resulting hash table.
func (o *Orchestrator) preprocessSubaddress(m *xplmsg.Message) string {
	text, err := o.st.FetchScript(preprocessScriptName)
	if err != nil {
		return ""
	}

	prog, err := dsl.Parse(text)
	if err != nil {
		o.log.Errorf("compile preprocess script: %v", err)
		return ""
	}

	table := hashtab.NewTable(o.st)
	populateXPLNVIn(table, m)

	exec := dslexec.NewExecutor(prog, table, o.source, o.sender)
	if err := exec.Run(); err != nil {
		o.log.Warnf("preprocess script failed: %v", err)
		return ""
	}

	v, _ := table.Hash("result").Get("subaddress")
	return v
}

// cannedSubaddress applies the fallback extraction rules of spec.md
// §4.9 step 1 when no preprocess script is registered.
func cannedSubaddress(m *xplmsg.Message) string {
	switch m.Schema() {
	case "sensor.basic":
		v, _ := m.Get("device")
		return v
	case "hvac.zone", "security.gateway":
		v, _ := m.Get("zone")
		return v
	default:
		return ""
	}
}

// runBoundScript compiles and runs the script bound to tag, populating
// xplnvin from m's body and xplin with (classtype, sourceaddress), per
// spec.md §4.9 step 2.
func (o *Orchestrator) runBoundScript(tag, text string, m *xplmsg.Message) {
	prog, err := dsl.Parse(text)
	if err != nil {
		o.log.Errorf("compile script for tag %s: %v", tag, err)
		return
	}

	table := hashtab.NewTable(o.st)
	populateXPLNVIn(table, m)
	table.Hash("xplin").Set("classtype", m.Schema())
	table.Hash("xplin").Set("sourceaddress", m.Source.String())

	exec := dslexec.NewExecutor(prog, table, o.source, o.sender)
	if err := exec.Run(); err != nil {
		o.log.Warnf("script for tag %s failed: %v (%s)", tag, err, exec.FailReason)
	}
}

// RunScriptByName compiles and runs a script by name with no trigger
// context, for the admin server's "cl:<cmdline>" invocation command.
func (o *Orchestrator) RunScriptByName(name string) error {
	text, err := o.st.FetchScript(name)
	if err != nil {
		return fmt.Errorf("orchestrator: fetch script %s: %w", name, err)
	}
	prog, err := dsl.Parse(text)
	if err != nil {
		return fmt.Errorf("orchestrator: compile script %s: %w", name, err)
	}
	table := hashtab.NewTable(o.st)
	exec := dslexec.NewExecutor(prog, table, o.source, o.sender)
	if err := exec.Run(); err != nil {
		return fmt.Errorf("orchestrator: run script %s: %w (%s)", name, err, exec.FailReason)
	}
	return nil
}

func populateXPLNVIn(table *hashtab.Table, m *xplmsg.Message) {
	h := table.Hash("xplnvin")
	for _, nv := range m.Body {
		h.Set(nv.Name, nv.Value)
	}
}

func joinNameValues(body []xplmsg.NameValue) string {
	parts := make([]string, len(body))
	for i, nv := range body {
		parts[i] = fmt.Sprintf("%s=%s", nv.Name, nv.Value)
	}
	return strings.Join(parts, ",")
}
