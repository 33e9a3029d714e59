// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package admin implements the line-oriented administrative TCP
// protocol of spec.md §4.10: script upload/download and invocation by
// name. Grounded in the teacher's internal/repository.Transaction
// busy/retry shape for store access, and written in the same
// explicit-struct-method state-machine style as the teacher's
// auth.Authentication middleware chain.
package admin

import (
	"fmt"
	"strings"
)

// Line length and upload size bounds, per spec.md §4.10.
const (
	MaxLineLen     = 258
	MaxUploadBytes = 64 * 1024
)

// LineKind is a parsed line's prefix.
type LineKind int

const (
	LineCommand   LineKind = iota // cl:<cmdline>
	LineDownload                  // ss:<name>
	LineUploadBeg                 // sb:<name>
	LineUploadOne                 // sl:<line>
	LineUploadEnd                 // se:<name>
	LineReqUpload                 // rs:<name>
	LineMonitor                   // cm: (arg ignored)
	LineUnknown
)

// Line is one parsed protocol line.
type Line struct {
	Kind LineKind
	Arg  string
}

// ParseLine splits raw on its two-character prefix and colon.
func ParseLine(raw string) (Line, error) {
	if len(raw) > MaxLineLen {
		return Line{}, fmt.Errorf("admin: line exceeds %d characters", MaxLineLen)
	}
	prefix, rest, found := strings.Cut(raw, ":")
	if !found {
		return Line{}, fmt.Errorf("admin: malformed line %q", raw)
	}
	switch prefix {
	case "cl":
		return Line{Kind: LineCommand, Arg: rest}, nil
	case "ss":
		return Line{Kind: LineDownload, Arg: rest}, nil
	case "sb":
		return Line{Kind: LineUploadBeg, Arg: rest}, nil
	case "sl":
		return Line{Kind: LineUploadOne, Arg: rest}, nil
	case "se":
		return Line{Kind: LineUploadEnd, Arg: rest}, nil
	case "rs":
		return Line{Kind: LineReqUpload, Arg: rest}, nil
	case "cm":
		return Line{Kind: LineMonitor, Arg: rest}, nil
	default:
		return Line{}, fmt.Errorf("admin: unknown line prefix %q", prefix)
	}
}

// OK renders a success response line.
func OK() string { return "ok:\n" }

// Err renders an error response line.
func Err(msg string) string { return fmt.Sprintf("er:%s\n", msg) }

// ScriptLine renders one "sl:<line>" download-framing line.
func ScriptLine(text string) string { return fmt.Sprintf("sl:%s\n", text) }

// ScriptBegin renders the "sb:<name>" download-framing start line.
func ScriptBegin(name string) string { return fmt.Sprintf("sb:%s\n", name) }

// ScriptEnd renders the "se:<name>" download-framing end line.
func ScriptEnd(name string) string { return fmt.Sprintf("se:%s\n", name) }

// MonitorLine renders one "tr:<summary>" live trigger-tap line.
func MonitorLine(summary string) string { return fmt.Sprintf("tr:%s\n", summary) }
