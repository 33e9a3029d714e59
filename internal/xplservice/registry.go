// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xplservice

import (
	"fmt"

	"github.com/xplhald/xplhald/internal/metrics"
	"github.com/xplhald/xplhald/internal/xplmsg"
)

// HeartbeatSender builds and broadcasts a service's heartbeat frame.
// cmd/xplhald supplies it as a closure over the receiver's UDP socket,
// which knows the local port/remote IP to embed in the body.
type HeartbeatSender func(s *Service) error

// Registry holds every locally hosted service and routes inbound
// messages to their listeners. Single-threaded: all methods are called
// from the daemon's one main goroutine.
type Registry struct {
	services []*Service
	send     HeartbeatSender
}

// NewRegistry creates an empty Registry. send is invoked for a service
// on each tick at which its heartbeat falls due (Service.Tick returns true).
func NewRegistry(send HeartbeatSender) *Registry {
	return &Registry{send: send}
}

// Register adds s to the registry.
func (r *Registry) Register(s *Service) {
	r.services = append(r.services, s)
}

// Services returns every registered service.
func (r *Registry) Services() []*Service {
	return r.services
}

// Find returns the service matching id, or nil.
func (r *Registry) Find(id xplmsg.Identity) *Service {
	for _, s := range r.services {
		if s.Identity.Equal(id) {
			return s
		}
	}
	return nil
}

// Tick runs the 1Hz heartbeat tick for every enabled service.
func (r *Registry) Tick() error {
	for _, s := range r.services {
		if !s.Enabled {
			continue
		}
		if s.Tick() {
			if err := r.send(s); err != nil {
				return fmt.Errorf("xplservice: heartbeat send for %s: %w", s.Identity, err)
			}
		}
	}
	return nil
}

// Classification holds the derived booleans of spec.md §4.4, computed
// once per inbound message and reused by every service's Accept filter.
type Classification struct {
	IsHeartbeat        bool
	IsHeartbeatRequest bool
	IsGroup            bool
	IsConfig           bool
}

// Classify computes m's classification.
func Classify(m *xplmsg.Message) Classification {
	return Classification{
		IsHeartbeat:        m.IsHeartbeat(),
		IsHeartbeatRequest: m.IsHeartbeatRequest(),
		IsGroup:            m.IsGroup(),
		IsConfig:           m.IsConfig(),
	}
}

// Dispatch routes m to every service whose Accept filter admits it,
// after first applying the hub-discovery and heartbeat-request side
// effects common to all services.
func (r *Registry) Dispatch(m *xplmsg.Message) {
	metrics.MessagesReceived.Inc()
	c := Classify(m)

	if c.IsHeartbeat {
		for _, s := range r.services {
			if m.Source.Equal(s.Identity) {
				s.OnHeartbeatEcho(m)
			}
		}
	}
	if c.IsHeartbeatRequest {
		for _, s := range r.services {
			s.AccelerateHeartbeat()
		}
	}

	for _, s := range r.services {
		if !s.Enabled || s.Listener == nil {
			continue
		}
		if s.Accept(m) {
			s.Listener(m)
		}
	}
}
