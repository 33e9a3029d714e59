// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package admin

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"github.com/xplhald/xplhald/internal/store"
	"github.com/xplhald/xplhald/pkg/log"
)

// SessionState is one connection's protocol state.
type SessionState int

const (
	StateIdle SessionState = iota
	StateWaitLine
	StateFinished
	StateError
)

// Invoker runs a named script on demand, used by the "cl:" command
// line. Implemented by internal/orchestrator/cmd wiring.
type Invoker func(scriptName string) error

// monitorHub is the subset of *Server a session needs to serve "cl:monitor".
type monitorHub interface {
	SubscribeMonitor() (<-chan string, func())
}

// session is one connection's state machine.
type session struct {
	conn    net.Conn
	rw      *bufio.ReadWriter
	st      store.Store
	invoke  Invoker
	hub     monitorHub
	state   SessionState
	log     *log.Logger

	uploadName string
	uploadBuf  strings.Builder
}

func newSession(conn net.Conn, st store.Store, invoke Invoker, hub monitorHub) *session {
	return &session{
		conn:   conn,
		rw:     bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		st:     st,
		invoke: invoke,
		hub:    hub,
		state:  StateIdle,
		log:    log.With("admin"),
	}
}

// run drives the session to completion: one line in, one response out,
// per connection — matching the deliberately simple line-oriented
// protocol of spec.md §4.10 rather than a persistent multi-command
// session.
func (s *session) run() {
	defer s.conn.Close()

	s.state = StateWaitLine
	raw, err := s.rw.ReadString('\n')
	if err != nil {
		s.state = StateError
		return
	}
	raw = strings.TrimRight(raw, "\r\n")

	line, err := ParseLine(raw)
	if err != nil {
		s.respond(Err(err.Error()))
		s.state = StateError
		return
	}

	switch line.Kind {
	case LineCommand:
		s.handleCommand(line.Arg)
	case LineDownload:
		s.handleDownload(line.Arg)
	case LineReqUpload:
		s.handleUpload(line.Arg)
	case LineMonitor:
		s.handleMonitor()
		return // the connection stays open until the client disconnects
	default:
		s.respond(Err("unexpected line kind in this context"))
		s.state = StateError
		return
	}
	s.state = StateFinished
}

func (s *session) respond(text string) {
	s.rw.WriteString(text)
	s.rw.Flush()
}

func (s *session) handleCommand(scriptName string) {
	if s.invoke == nil {
		s.respond(Err("invocation not available"))
		return
	}
	if err := s.invoke(scriptName); err != nil {
		s.respond(Err(err.Error()))
		return
	}
	s.respond(OK())
}

func (s *session) handleDownload(name string) {
	text, err := s.st.FetchScript(name)
	if err != nil {
		s.respond(Err(fmt.Sprintf("script %q not found", name)))
		return
	}
	s.respond(ScriptBegin(name))
	for _, line := range strings.Split(text, "\n") {
		s.respond(ScriptLine(line))
	}
	s.respond(ScriptEnd(name))
}

// handleUpload runs after the rs: request and reads the "sb:<name>"
// upload-begin line itself, then a stream of "sl:<line>" lines
// terminated by "se:<name>", enforcing the 64 KiB total bound.
func (s *session) handleUpload(name string) {
	begin, err := s.readLine()
	if err != nil {
		s.respond(Err("upload aborted: " + err.Error()))
		return
	}
	beginLine, err := ParseLine(begin)
	if err != nil || beginLine.Kind != LineUploadBeg || beginLine.Arg != name {
		s.respond(Err("expected sb: upload-begin line"))
		return
	}

	var body strings.Builder
	for {
		raw, err := s.readLine()
		if err != nil {
			s.respond(Err("upload aborted: " + err.Error()))
			return
		}
		l, err := ParseLine(raw)
		if err != nil {
			s.respond(Err(err.Error()))
			return
		}
		if l.Kind == LineUploadEnd {
			if l.Arg != name {
				s.respond(Err("upload end name mismatch"))
				return
			}
			break
		}
		if l.Kind != LineUploadOne {
			s.respond(Err("expected sl: line during upload"))
			return
		}
		if body.Len()+len(l.Arg)+1 > MaxUploadBytes {
			s.respond(Err(fmt.Sprintf("upload exceeds %d bytes", MaxUploadBytes)))
			return
		}
		body.WriteString(l.Arg)
		body.WriteByte('\n')
	}

	if err := s.st.UpsertScript(name, body.String()); err != nil {
		s.respond(Err(err.Error()))
		return
	}
	s.respond(OK())
}

// handleMonitor streams one "tr:<summary>" line per dispatched trigger
// until the peer closes the connection or a write fails, the Go
// replacement for the original's persistent debug-tap connection.
func (s *session) handleMonitor() {
	if s.hub == nil {
		s.respond(Err("monitor not available"))
		return
	}
	ch, unsubscribe := s.hub.SubscribeMonitor()
	defer unsubscribe()

	for summary := range ch {
		if _, err := s.rw.WriteString(MonitorLine(summary)); err != nil {
			return
		}
		if err := s.rw.Flush(); err != nil {
			return
		}
	}
}

func (s *session) readLine() (string, error) {
	raw, err := s.rw.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(raw, "\r\n"), nil
}
