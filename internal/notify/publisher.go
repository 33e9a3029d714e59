// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package notify optionally republishes every dispatched trigger to a
// NATS subject for external consumption, supplementing spec.md with a
// feature original_source/notify.c covered via an external
// notification pipe — here reimplemented as a message bus publish
// rather than a pipe, grounded on the teacher's pkg/nats singleton
// client wrapper (nats-io/nats.go).
package notify

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/xplhald/xplhald/internal/xplmsg"
	"github.com/xplhald/xplhald/pkg/log"
)

// Publisher republishes trigger messages to a NATS subject. A nil
// Publisher (returned when no NATS address is configured) is a no-op,
// so callers never need a feature-flag check at the call site.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// Connect dials addr and returns a Publisher bound to subject. If addr
// is empty, Connect returns (nil, nil): publishing becomes a no-op.
func Connect(addr, subject string) (*Publisher, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := nats.Connect(addr)
	if err != nil {
		return nil, fmt.Errorf("notify: connect %s: %w", addr, err)
	}
	return &Publisher{conn: conn, subject: subject}, nil
}

// PublishTrigger sends a compact "source schema" payload for m; the
// body's name/value pairs are not included.
func (p *Publisher) PublishTrigger(m *xplmsg.Message) {
	if p == nil {
		return
	}
	payload := fmt.Sprintf("%s %s", m.Source.String(), m.Schema())
	if err := p.conn.Publish(p.subject, []byte(payload)); err != nil {
		log.With("notify").Errorf("publish: %v", err)
	}
}

// Close closes the underlying connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.conn.Close()
}
