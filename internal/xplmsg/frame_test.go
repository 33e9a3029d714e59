// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xplmsg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	m := NewBroadcast(Trigger, Identity{Vendor: "acme", Device: "foo", Instance: "a"}, "sensor", "basic")
	m.Set("device", "garage")
	m.Set("current", "on")

	encoded, err := Encode(m)
	require.NoError(t, err)

	parsed, err := Parse(encoded)
	require.NoError(t, err)

	require.Equal(t, m.Kind, parsed.Kind)
	require.Equal(t, 1, parsed.Hop) // hop always reset to 1 by the encoder
	require.Equal(t, m.Source, parsed.Source)
	require.Equal(t, m.TargetIsBroadcast, parsed.TargetIsBroadcast)
	require.Equal(t, m.Schema(), parsed.Schema())
	require.Equal(t, m.Body, parsed.Body)

	reEncoded, err := Encode(parsed)
	require.NoError(t, err)
	require.Equal(t, encoded, reEncoded)
}

func TestCanonicalTriggerFrame(t *testing.T) {
	const canonical = "xpl-trig\n{\nhop=1\nsource=acme-foo.a\ntarget=*\n}\nsensor.basic\n{\ndevice=garage\ncurrent=on\n}\n"

	parsed, err := Parse([]byte(canonical))
	require.NoError(t, err)

	out, err := Encode(parsed)
	require.NoError(t, err)
	require.Equal(t, canonical, string(out))
}

func TestParseRejectsMalformedHeader(t *testing.T) {
	_, err := Parse([]byte("not-a-block\n"))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 0, pe.Offset)
}

func TestParseRejectsBadTargetTag(t *testing.T) {
	bad := "xpl-stat\n{\nhop=1\nsource=acme-foo.a\ntarget=acme-foo\n}\nhbeat.app\n{\n}\n"
	_, err := Parse([]byte(bad))
	require.Error(t, err)
}

func TestParseTargetedMessage(t *testing.T) {
	wire := "xpl-cmnd\n{\nhop=1\nsource=acme-foo.a\ntarget=acme-bar.b\n}\ncontrol.basic\n{\ndevice=lamp\ncurrent=on\n}\n"
	m, err := Parse([]byte(wire))
	require.NoError(t, err)
	require.False(t, m.TargetIsBroadcast)
	require.True(t, m.TargetsIdentity(Identity{Vendor: "acme", Device: "bar", Instance: "b"}))
}

func TestEncodeRejectsOversizeFrame(t *testing.T) {
	m := NewBroadcast(Status, Identity{Vendor: "acme", Device: "foo", Instance: "a"}, "hbeat", "app")
	for i := 0; i < 100; i++ {
		m.Set(repeatKey(i), "0123456789012345678901234567890")
	}
	_, err := Encode(m)
	require.Error(t, err)
}

func repeatKey(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "k" + string(letters[i%len(letters)]) + string(letters[(i/len(letters))%len(letters)])
}

func TestParseIdentityRejectsOverlongComponent(t *testing.T) {
	_, err := ParseIdentity("toolongvendor-device.instance")
	require.Error(t, err)
}

func TestNewInstanceIDIsSixteenCharsBase36(t *testing.T) {
	id := NewInstanceID("192.0.2.1", time.UnixMilli(1700000000000))
	require.Len(t, id, 16)
}
