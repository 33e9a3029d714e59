// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xplmsg

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxFrameSize is the datagram MTU budget an encoded frame must fit in.
const MaxFrameSize = 1500

// MaxNameValueLen bounds each key and value of a block's name=value entries.
const MaxNameValueLen = 31

// Encode renders m as the canonical xPL text frame. Hop is always reset to 1.
func Encode(m *Message) ([]byte, error) {
	if m.SchemaClass == "" || m.SchemaType == "" {
		return nil, fmt.Errorf("xplmsg: encode: message has no schema")
	}
	if !m.Source.Valid() {
		return nil, fmt.Errorf("xplmsg: encode: invalid source %q", m.Source)
	}

	var b strings.Builder
	b.WriteString(m.Kind.wireToken())
	b.WriteByte('\n')
	b.WriteString("{\n")
	b.WriteString("hop=1\n")
	b.WriteString("source=")
	b.WriteString(m.Source.String())
	b.WriteByte('\n')
	b.WriteString("target=")
	if m.TargetIsBroadcast {
		b.WriteString(Broadcast)
	} else {
		if !m.Target.Valid() {
			return nil, fmt.Errorf("xplmsg: encode: invalid target %q", m.Target)
		}
		b.WriteString(m.Target.String())
	}
	b.WriteByte('\n')
	b.WriteString("}\n")
	b.WriteString(m.Schema())
	b.WriteByte('\n')
	b.WriteString("{\n")
	for _, nv := range m.Body {
		if err := validateNameValue(nv.Name, nv.Value); err != nil {
			return nil, err
		}
		b.WriteString(nv.Name)
		b.WriteByte('=')
		b.WriteString(nv.Value)
		b.WriteByte('\n')
	}
	b.WriteString("}\n")

	out := []byte(b.String())
	if len(out) > MaxFrameSize {
		return nil, fmt.Errorf("xplmsg: encode: frame too large (%d > %d bytes)", len(out), MaxFrameSize)
	}
	return out, nil
}

// validateNameValue enforces the printable-ASCII-minus-"{}=\n" alphabet on
// names, the same alphabet plus spaces on values, and the 31-char bound.
func validateNameValue(name, value string) error {
	if len(name) == 0 || len(name) > MaxNameValueLen {
		return fmt.Errorf("xplmsg: encode: name %q out of bounds", name)
	}
	if len(value) > MaxNameValueLen {
		return fmt.Errorf("xplmsg: encode: value %q out of bounds", value)
	}
	if !validChars(name, false) {
		return fmt.Errorf("xplmsg: encode: name %q has invalid characters", name)
	}
	if !validChars(value, true) {
		return fmt.Errorf("xplmsg: encode: value %q has invalid characters", value)
	}
	return nil
}

func validChars(s string, allowSpace bool) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '{' || c == '}' || c == '=' || c == '\n' {
			return false
		}
		if c == ' ' {
			if allowSpace {
				continue
			}
			return false
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// scanState names the stages of a frame scan. Parse does not use it; it
// walks the stages in order in parser.run.
type scanState int

const (
	stateHeaderLine scanState = iota
	stateHeaderBody
	stateSchemaLine
	stateSchemaBody
	stateDone
)

// ParseError carries the byte offset of the failure for diagnostics, as
// required by spec.md (the parser "returns a negative offset at the
// failure point").
type ParseError struct {
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("xplmsg: parse error at offset %d: %s", e.Offset, e.Reason)
}

// Parse decodes a canonical xPL text frame. On malformed input it returns
// a *ParseError identifying the offending offset.
func Parse(buf []byte) (*Message, error) {
	p := &parser{buf: buf}
	return p.run()
}

type parser struct {
	buf []byte
	pos int
}

func (p *parser) fail(reason string) error {
	return &ParseError{Offset: p.pos, Reason: reason}
}

// readLine returns the bytes up to (not including) the next '\n' and
// advances past it.
func (p *parser) readLine() (string, error) {
	start := p.pos
	for p.pos < len(p.buf) {
		if p.buf[p.pos] == '\n' {
			line := string(p.buf[start:p.pos])
			p.pos++
			return line, nil
		}
		c := p.buf[p.pos]
		if c < 0x20 || c > 0x7e {
			return "", p.fail("non-printable character in line")
		}
		p.pos++
	}
	return "", p.fail("unterminated line")
}

func (p *parser) run() (*Message, error) {
	m := &Message{}

	headerStart := p.pos
	headerTok, err := p.readLine()
	if err != nil {
		return nil, err
	}
	switch headerTok {
	case "xpl-cmnd":
		m.Kind = Command
	case "xpl-stat":
		m.Kind = Status
	case "xpl-trig":
		m.Kind = Trigger
	default:
		return nil, &ParseError{Offset: headerStart, Reason: fmt.Sprintf("unrecognized block header %q", headerTok)}
	}

	open, err := p.readLine()
	if err != nil {
		return nil, err
	}
	if open != "{" {
		return nil, p.fail("expected '{' opening header block")
	}

	for {
		line, err := p.readLine()
		if err != nil {
			return nil, err
		}
		if line == "}" {
			break
		}
		name, value, err := splitNameValue(line)
		if err != nil {
			return nil, p.fail(err.Error())
		}
		switch name {
		case "hop":
			hop, err := strconv.Atoi(value)
			if err != nil || hop <= 0 {
				return nil, p.fail(fmt.Sprintf("invalid hop %q", value))
			}
			m.Hop = hop
		case "source":
			id, err := ParseIdentity(value)
			if err != nil {
				return nil, p.fail(err.Error())
			}
			m.Source = id
		case "target":
			if value == Broadcast {
				m.TargetIsBroadcast = true
			} else {
				id, err := ParseIdentity(value)
				if err != nil {
					return nil, p.fail(err.Error())
				}
				m.Target = id
			}
		default:
			return nil, p.fail(fmt.Sprintf("unexpected header field %q", name))
		}
	}
	if m.Hop == 0 {
		return nil, p.fail("header block missing hop")
	}
	if !m.Source.Valid() {
		return nil, p.fail("header block missing or invalid source")
	}
	if !m.TargetIsBroadcast && !m.Target.Valid() {
		return nil, p.fail("header block missing or invalid target")
	}

	schemaLine, err := p.readLine()
	if err != nil {
		return nil, err
	}
	dot := strings.IndexByte(schemaLine, '.')
	if dot <= 0 || dot == len(schemaLine)-1 {
		return nil, p.fail(fmt.Sprintf("malformed schema %q", schemaLine))
	}
	m.SchemaClass = schemaLine[:dot]
	m.SchemaType = schemaLine[dot+1:]

	open2, err := p.readLine()
	if err != nil {
		return nil, err
	}
	if open2 != "{" {
		return nil, p.fail("expected '{' opening schema block")
	}

	for {
		line, err := p.readLine()
		if err != nil {
			return nil, err
		}
		if line == "}" {
			break
		}
		name, value, err := splitNameValue(line)
		if err != nil {
			return nil, p.fail(err.Error())
		}
		if len(name) > MaxNameValueLen || len(value) > MaxNameValueLen {
			return nil, p.fail(fmt.Sprintf("name/value %q exceeds %d chars", line, MaxNameValueLen))
		}
		m.Body = append(m.Body, NameValue{Name: name, Value: value})
	}

	return m, nil
}

// splitNameValue splits "key=value" on the first '='. Value may itself
// contain '=' and spaces; key may not.
func splitNameValue(line string) (name, value string, err error) {
	eq := strings.IndexByte(line, '=')
	if eq <= 0 {
		return "", "", fmt.Errorf("malformed name=value entry %q", line)
	}
	name = line[:eq]
	value = line[eq+1:]
	if !validChars(name, false) {
		return "", "", fmt.Errorf("invalid characters in name %q", name)
	}
	if !validChars(value, true) {
		return "", "", fmt.Errorf("invalid characters in value %q", value)
	}
	return name, value, nil
}
