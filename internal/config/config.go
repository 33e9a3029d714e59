// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the daemon's JSON configuration file into a typed
// struct. Reading the file path from a CLI flag remains the caller's
// (cmd/xplhald's) job — this package validates the file's shape against
// a JSON Schema and then decodes it, following the teacher's
// internal/config defaults-struct + schema.Validate + DisallowUnknownFields
// pattern (internal/config/config.go, pkg/schema/validate.go).
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/xplhald/xplhald/internal/config/schema"
)

// ProgramConfig is the full set of daemon-wide configuration knobs.
type ProgramConfig struct {
	// Interface/Port select the xPL broadcast socket: the network
	// interface to bind to, and the UDP port (default 3865, spec.md §6).
	Interface string `json:"interface"`
	Port      int    `json:"port"`

	// DBDriver/DB select the persistent store backend; only "sqlite3"
	// is implemented (internal/store.Open).
	DBDriver string `json:"db-driver"`
	DB       string `json:"db"`

	// AdminAddr is the admin TCP listener's address ("host:port").
	AdminAddr string `json:"admin-addr"`
	// MetricsAddr is the Prometheus /metrics HTTP listener's address.
	MetricsAddr string `json:"metrics-addr"`

	// Latitude/Longitude feed the scheduler's astronomical-event math.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// NATSAddr, if set, makes the orchestrator additionally publish
	// every dispatched trigger to NATSSubject for external consumption.
	NATSAddr    string `json:"nats-addr"`
	NATSSubject string `json:"nats-subject"`

	// DebugLevel selects pkg/log's verbosity: crit, err, warn, notice,
	// info, debug (original_source/util.c's 0-5 scale, supplemented
	// per SPEC_FULL.md §9.4).
	DebugLevel string `json:"debug-level"`

	// StoreBusyRetries/StoreBusyBackoffMs bound the store's
	// busy-wait-on-contention policy (spec.md §5).
	StoreBusyRetries   int `json:"store-busy-retries"`
	StoreBusyBackoffMs int `json:"store-busy-backoff-ms"`
}

// Keys holds the process-wide configuration, loaded once at startup by
// Init and thereafter read-only.
var Keys = ProgramConfig{
	Interface:          "eth0",
	Port:               3865,
	DBDriver:           "sqlite3",
	DB:                 "./var/xplhald.db",
	AdminAddr:          ":3866",
	MetricsAddr:        ":9120",
	DebugLevel:         "info",
	StoreBusyRetries:   10,
	StoreBusyBackoffMs: 25,
}

// Init reads flagConfigFile (if present) and overlays it onto Keys. A
// missing file is not an error; a malformed one is returned to the
// caller rather than exiting the process, so that cmd/xplhald decides
// how to fail (see ambient-stack note, SPEC_FULL.md §2).
func Init(flagConfigFile string) error {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", flagConfigFile, err)
	}

	if err := schema.Validate(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("config: validating %s: %w", flagConfigFile, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decoding %s: %w", flagConfigFile, err)
	}
	return nil
}
