// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xplmsg

// Kind is the first token of the header block.
type Kind int

const (
	Command Kind = iota
	Status
	Trigger
)

func (k Kind) wireToken() string {
	switch k {
	case Command:
		return "xpl-cmnd"
	case Status:
		return "xpl-stat"
	case Trigger:
		return "xpl-trig"
	default:
		return ""
	}
}

// NameValue is one ordered entry of a message body. Order matters: the
// codec must preserve insertion order on the wire.
type NameValue struct {
	Name  string
	Value string
}

// Message is a single xPL frame, either received or about to be sent.
type Message struct {
	Kind   Kind
	Hop    int
	Source Identity

	// Target is either a parsed Identity (TargetIsBroadcast == false) or
	// the broadcast wildcard.
	Target            Identity
	TargetIsBroadcast bool

	SchemaClass string
	SchemaType  string

	Body []NameValue
}

// NewBroadcast builds a message addressed to the broadcast wildcard.
func NewBroadcast(kind Kind, source Identity, class, typ string) *Message {
	return &Message{
		Kind:              kind,
		Hop:               1,
		Source:            source,
		TargetIsBroadcast: true,
		SchemaClass:       class,
		SchemaType:        typ,
	}
}

// NewTargeted builds a message addressed to a specific service.
func NewTargeted(kind Kind, source, target Identity, class, typ string) *Message {
	return &Message{
		Kind:        kind,
		Hop:         1,
		Source:      source,
		Target:      target,
		SchemaClass: class,
		SchemaType:  typ,
	}
}

// Set appends or replaces a body entry. Reassignment of an existing key
// replaces the value in place, preserving insertion order — mirroring the
// ordering invariant hashtab.Hash enforces for DSL-visible hashes.
func (m *Message) Set(name, value string) {
	for i := range m.Body {
		if m.Body[i].Name == name {
			m.Body[i].Value = value
			return
		}
	}
	m.Body = append(m.Body, NameValue{Name: name, Value: value})
}

// Get returns the value for name and whether it was present.
func (m *Message) Get(name string) (string, bool) {
	for _, nv := range m.Body {
		if nv.Name == name {
			return nv.Value, true
		}
	}
	return "", false
}

// Schema returns "class.type".
func (m *Message) Schema() string {
	return m.SchemaClass + "." + m.SchemaType
}

// IsHeartbeat reports whether the schema is hbeat.app.
func (m *Message) IsHeartbeat() bool {
	return m.SchemaClass == "hbeat" && m.SchemaType == "app"
}

// IsHeartbeatRequest reports whether the schema is hbeat.request.
func (m *Message) IsHeartbeatRequest() bool {
	return m.SchemaClass == "hbeat" && m.SchemaType == "request"
}

// IsGroup reports whether the schema is xpl.group.
func (m *Message) IsGroup() bool {
	return m.SchemaClass == "xpl" && m.SchemaType == "group"
}

// IsConfig reports whether this is a config message from a config-capable
// source device.
func (m *Message) IsConfig() bool {
	return m.SchemaType == "app" && m.Source.Device == "config"
}

// TargetsIdentity reports whether this message's target triple addresses id.
func (m *Message) TargetsIdentity(id Identity) bool {
	return !m.TargetIsBroadcast && m.Target.Equal(id)
}
