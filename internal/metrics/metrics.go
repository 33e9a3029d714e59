// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics holds the daemon's Prometheus collectors, grounded on
// the teacher's prometheus/client_golang usage for backend metrics:
// package-level vars registered once, exported through a /metrics HTTP
// endpoint on its own listener (config MetricsAddr).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xplhald",
		Name:      "messages_received_total",
		Help:      "Total xPL messages received off the broadcast socket.",
	})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xplhald",
		Name:      "messages_sent_total",
		Help:      "Total xPL messages broadcast or targeted-sent.",
	})
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xplhald",
		Name:      "messages_dropped_total",
		Help:      "Total inbound messages dropped, by reason.",
	}, []string{"reason"})

	ScriptsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xplhald",
		Name:      "scripts_executed_total",
		Help:      "Total DSL scripts executed.",
	})
	ScriptsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xplhald",
		Name:      "scripts_failed_total",
		Help:      "Total DSL scripts that raised a runtime error.",
	})

	SchedulerFires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xplhald",
		Name:      "scheduler_fires_total",
		Help:      "Total scheduler entries fired.",
	})

	DiscoveryTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xplhald",
		Name:      "discovery_transitions_total",
		Help:      "Hub-discovery state transitions, by destination state.",
	}, []string{"to"})
)
