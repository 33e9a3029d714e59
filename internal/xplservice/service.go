// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package xplservice holds the locally hosted service registry: per
// service identity, heartbeat timers, hub-discovery state machine, and
// inbound message classification/routing. Unchanged in semantics from
// the C original's xplcore.c; instrumented with prometheus counters on
// every discovery-state transition the way the teacher's
// internal/repository instruments job-lifecycle transitions.
package xplservice

import (
	"strconv"

	"github.com/xplhald/xplhald/internal/metrics"
	"github.com/xplhald/xplhald/internal/xplmsg"
)

// DiscoveryState is a service's hub-discovery phase.
type DiscoveryState int

const (
	Unconfirmed DiscoveryState = iota
	NoEcho
	Confirmed
)

func (s DiscoveryState) String() string {
	switch s {
	case Unconfirmed:
		return "UNCONFIRMED"
	case NoEcho:
		return "NO_ECHO"
	case Confirmed:
		return "CONFIRMED"
	default:
		return "UNKNOWN"
	}
}

// ReportMode governs which inbound messages a service's listener receives.
type ReportMode int

const (
	Normal ReportMode = iota
	Everything
	OwnMessages
	ConfigOnly
)

// Heartbeat intervals (seconds), per spec.md §4.4.
const (
	unconfirmedHeartbeatSecs = 3
	noEchoHeartbeatSecs      = 60
	defaultConfirmedSecs     = 300
	unconfirmedFailThreshold = 40

	minAcceleratedRemaining = 2
	maxAcceleratedRemaining = 6
)

// Listener receives classified messages addressed to a Service.
type Listener func(m *xplmsg.Message)

// Service is one locally hosted xPL endpoint.
type Service struct {
	Identity xplmsg.Identity

	HeartbeatIntervalSecs int
	heartbeatRemaining    int
	unconfirmedTicks      int

	State DiscoveryState

	ReportMode  ReportMode
	ReportGroup bool

	// ReportOwnMessages lets a NORMAL-mode service see its own broadcasts,
	// which the default filter otherwise excludes.
	ReportOwnMessages bool

	Enabled bool

	cachedHeartbeat []byte
	Listener        Listener

	// expectedPort is the UDP port this service's heartbeats advertise
	// (the receiver's bound port), set once the socket is bound. A heartbeat echo is only trusted as this service's
	// own if its port field matches: a same-named rogue service elsewhere
	// on the LAN must not be able to falsely confirm discovery.
	expectedPort int
}

// SetExpectedPort records the local UDP port embedded in this service's
// own heartbeats, used to validate echoed heartbeats in OnHeartbeatEcho.
func (s *Service) SetExpectedPort(port int) { s.expectedPort = port }

// NewService creates an enabled, UNCONFIRMED service with the default
// 300s confirmed heartbeat interval.
func NewService(id xplmsg.Identity, mode ReportMode, reportGroup bool, listener Listener) *Service {
	return &Service{
		Identity:              id,
		HeartbeatIntervalSecs: defaultConfirmedSecs,
		heartbeatRemaining:    0,
		State:                 Unconfirmed,
		ReportMode:            mode,
		ReportGroup:           reportGroup,
		Enabled:               true,
		Listener:              listener,
	}
}

// transition moves the service to next, recording a metric. Transitions
// to the same state are a no-op.
func (s *Service) transition(next DiscoveryState) {
	if s.State == next {
		return
	}
	s.State = next
	metrics.DiscoveryTransitions.WithLabelValues(next.String()).Inc()
}

// OnHeartbeatEcho is called by the dispatcher when a received heartbeat's
// identity matches this service. Hub discovery is only confirmed if the
// echoed port also matches this service's own: a matching vendor-device-
// instance triple with a different port is a rogue duplicate, not an echo.
func (s *Service) OnHeartbeatEcho(m *xplmsg.Message) {
	if s.expectedPort != 0 {
		port, ok := m.Get("port")
		if !ok || port != strconv.Itoa(s.expectedPort) {
			return
		}
	}
	s.transition(Confirmed)
	s.heartbeatRemaining = s.heartbeatIntervalForState()
}

// heartbeatIntervalForState returns the resend interval implied by the
// current discovery state.
func (s *Service) heartbeatIntervalForState() int {
	switch s.State {
	case Unconfirmed:
		return unconfirmedHeartbeatSecs
	case NoEcho:
		return noEchoHeartbeatSecs
	default:
		return s.HeartbeatIntervalSecs
	}
}

// Tick runs the 1Hz heartbeat logic for one service: decrements the
// remaining counter, and when it reaches zero, signals the caller to
// (re)send the cached heartbeat frame via the returned bool, then
// refills the counter per the current discovery state.
func (s *Service) Tick() (shouldSend bool) {
	if s.heartbeatRemaining > 0 {
		s.heartbeatRemaining--
		return false
	}

	if s.State == Unconfirmed {
		s.unconfirmedTicks++
		if s.unconfirmedTicks >= unconfirmedFailThreshold {
			s.transition(NoEcho)
			s.unconfirmedTicks = 0
		}
	}

	s.heartbeatRemaining = s.heartbeatIntervalForState()
	return true
}

// AccelerateHeartbeat clamps the remaining counter into [2,6] seconds, as
// required on receipt of a heartbeat-request (spec.md §4.4).
func (s *Service) AccelerateHeartbeat() {
	if s.heartbeatRemaining < minAcceleratedRemaining {
		s.heartbeatRemaining = minAcceleratedRemaining
	} else if s.heartbeatRemaining > maxAcceleratedRemaining {
		s.heartbeatRemaining = maxAcceleratedRemaining
	}
}

// CachedHeartbeat returns the last-built heartbeat frame, or nil.
func (s *Service) CachedHeartbeat() []byte { return s.cachedHeartbeat }

// SetCachedHeartbeat stores the built heartbeat frame for reuse.
func (s *Service) SetCachedHeartbeat(frame []byte) { s.cachedHeartbeat = frame }

// MatchesTarget reports whether m is addressed to this service: either
// the broadcast sentinel or an exact triple match.
func (s *Service) MatchesTarget(m *xplmsg.Message) bool {
	return m.TargetIsBroadcast || m.TargetsIdentity(s.Identity)
}

// Accept applies the per-service reporting filter of spec.md §4.4.
func (s *Service) Accept(m *xplmsg.Message) bool {
	isUs := m.Source.Equal(s.Identity)
	isBroadcast := m.TargetIsBroadcast
	isGroup := m.IsGroup()
	isConfig := m.IsConfig()

	switch s.ReportMode {
	case Everything:
		return true
	case OwnMessages:
		return isUs
	case ConfigOnly:
		return isConfig
	default: // Normal
		if isBroadcast {
			if isUs {
				return s.ReportOwnMessages
			}
			return true
		}
		if isGroup && s.ReportGroup {
			return true
		}
		return m.TargetsIdentity(s.Identity)
	}
}
