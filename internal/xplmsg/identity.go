// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package xplmsg implements the xPL wire data model: service identities,
// messages, and the text frame codec (encode/parse).
package xplmsg

import (
	"crypto/md5"
	"encoding/base32"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxComponentLen is the per-component length limit on vendor/device/instance.
const maxComponentLen = 8

// Identity is the (vendor, device, instance) triple that uniquely
// addresses an xPL endpoint. On the wire it is rendered "vendor-device.instance".
type Identity struct {
	Vendor   string
	Device   string
	Instance string
}

// Broadcast is the wildcard target sentinel ("*").
const Broadcast = "*"

func (id Identity) String() string {
	return fmt.Sprintf("%s-%s.%s", id.Vendor, id.Device, id.Instance)
}

// Equal reports whether two identities address the same service.
func (id Identity) Equal(other Identity) bool {
	return id.Vendor == other.Vendor && id.Device == other.Device && id.Instance == other.Instance
}

// Valid reports whether every component is non-empty, printable ASCII,
// and within the 8-character wire limit.
func (id Identity) Valid() bool {
	return validComponent(id.Vendor) && validComponent(id.Device) && validComponent(id.Instance)
}

func validComponent(s string) bool {
	if s == "" || len(s) > maxComponentLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// ParseIdentity parses a "vendor-device.instance" tag.
func ParseIdentity(tag string) (Identity, error) {
	dash := strings.IndexByte(tag, '-')
	if dash <= 0 || dash > maxComponentLen {
		return Identity{}, fmt.Errorf("xplmsg: bad tag %q: missing or misplaced '-'", tag)
	}
	rest := tag[dash+1:]
	dot := strings.IndexByte(rest, '.')
	if dot <= 0 {
		return Identity{}, fmt.Errorf("xplmsg: bad tag %q: missing '.'", tag)
	}
	id := Identity{
		Vendor:   tag[:dash],
		Device:   rest[:dot],
		Instance: rest[dot+1:],
	}
	if !id.Valid() {
		return Identity{}, fmt.Errorf("xplmsg: bad tag %q: invalid component", tag)
	}
	return id, nil
}

// NewInstanceID generates a 16-char base-36 instance identifier: a 4-char
// hash prefix derived from addr, followed by the base-36 encoding of
// milliseconds-since-epoch (at most its last 8 digits), left-padded with
// zeros to fill the remaining 12 characters.
//
// Grounded on original_source/util.c's instance-ID generator.
func NewInstanceID(addr string, now time.Time) string {
	sum := md5.Sum([]byte(addr))
	prefix := base32.StdEncoding.EncodeToString(sum[:])[:4]
	prefix = strings.ToLower(prefix)

	ms := now.UnixMilli()
	enc := strconv.FormatInt(ms, 36)
	if len(enc) > 8 {
		enc = enc[len(enc)-8:]
	}
	enc = strings.Repeat("0", 16-len(prefix)-len(enc)) + enc
	return prefix + enc
}
