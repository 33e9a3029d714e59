// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package admin

import (
	"errors"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/xplhald/xplhald/internal/store"
	"github.com/xplhald/xplhald/pkg/log"
)

// monitorQueueDepth bounds each "cl:monitor" subscriber's backlog; a slow
// or abandoned monitor client drops summaries rather than blocking
// trigger dispatch.
const monitorQueueDepth = 64

// Server accepts administrative TCP connections, one line-oriented
// session per connection. New-connection acceptance is rate-limited so
// a misbehaving or hostile client cannot spin up unbounded concurrent
// sessions against the store.
type Server struct {
	listener net.Listener
	st       store.Store
	invoke   Invoker
	limiter  *rate.Limiter
	log      *log.Logger

	monitorMu   sync.Mutex
	monitorSubs map[chan string]struct{}
}

// NewServer binds addr and returns a Server ready to Serve.
func NewServer(addr string, st store.Store, invoke Invoker) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener:    ln,
		st:          st,
		invoke:      invoke,
		limiter:     rate.NewLimiter(rate.Limit(20), 40),
		log:         log.With("admin"),
		monitorSubs: make(map[chan string]struct{}),
	}, nil
}

// SubscribeMonitor registers a new "cl:monitor" listener and returns its
// channel plus an unsubscribe func the session must call when the
// connection closes.
func (s *Server) SubscribeMonitor() (<-chan string, func()) {
	ch := make(chan string, monitorQueueDepth)
	s.monitorMu.Lock()
	s.monitorSubs[ch] = struct{}{}
	s.monitorMu.Unlock()

	unsubscribe := func() {
		s.monitorMu.Lock()
		delete(s.monitorSubs, ch)
		s.monitorMu.Unlock()
	}
	return ch, unsubscribe
}

// PublishMonitor fans summary out to every subscribed "cl:monitor"
// session, dropping it for any subscriber whose queue is full.
func (s *Server) PublishMonitor(summary string) {
	s.monitorMu.Lock()
	defer s.monitorMu.Unlock()
	for ch := range s.monitorSubs {
		select {
		case ch <- summary:
		default:
			s.log.Warn("monitor subscriber queue full, dropping trigger summary")
		}
	}
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.limiter.Allow() {
			s.log.Warn("admin connection rate limit exceeded, rejecting")
			conn.Close()
			continue
		}
		sess := newSession(conn, s.st, s.invoke, s)
		go sess.run()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}
