// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xplservice

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xplhald/xplhald/internal/xplmsg"
)

func testIdentity() xplmsg.Identity {
	return xplmsg.Identity{Vendor: "acme", Device: "dimmer", Instance: "kitchen"}
}

func TestNewServiceStartsUnconfirmed(t *testing.T) {
	s := NewService(testIdentity(), Normal, false, nil)
	require.Equal(t, Unconfirmed, s.State)
	require.True(t, s.Enabled)
}

func TestOnHeartbeatEchoConfirms(t *testing.T) {
	s := NewService(testIdentity(), Normal, false, nil)
	s.heartbeatRemaining = 1 // simulate time having passed since the send
	hb := xplmsg.NewBroadcast(xplmsg.Status, testIdentity(), "hbeat", "app")
	s.OnHeartbeatEcho(hb)
	require.Equal(t, Confirmed, s.State)
	require.Equal(t, defaultConfirmedSecs, s.heartbeatRemaining)
}

func TestOnHeartbeatEchoRejectsPortMismatch(t *testing.T) {
	s := NewService(testIdentity(), Normal, false, nil)
	s.SetExpectedPort(50001)

	wrongPort := xplmsg.NewBroadcast(xplmsg.Status, testIdentity(), "hbeat", "app")
	wrongPort.Set("port", "50002")
	s.OnHeartbeatEcho(wrongPort)
	require.Equal(t, Unconfirmed, s.State)

	rightPort := xplmsg.NewBroadcast(xplmsg.Status, testIdentity(), "hbeat", "app")
	rightPort.Set("port", "50001")
	s.OnHeartbeatEcho(rightPort)
	require.Equal(t, Confirmed, s.State)
	require.Equal(t, defaultConfirmedSecs, s.heartbeatRemaining)
}

func TestTickFallsBackToNoEchoAfterFailThreshold(t *testing.T) {
	s := NewService(testIdentity(), Normal, false, nil)
	// Each unconfirmed heartbeat is followed by unconfirmedHeartbeatSecs
	// countdown ticks, so the threshold is reached after this many ticks.
	for i := 0; i < unconfirmedFailThreshold*(unconfirmedHeartbeatSecs+1); i++ {
		s.Tick()
	}
	require.Equal(t, NoEcho, s.State)
}

func TestAccelerateHeartbeatClampsIntoRange(t *testing.T) {
	s := NewService(testIdentity(), Normal, false, nil)
	s.heartbeatRemaining = 300
	s.AccelerateHeartbeat()
	require.Equal(t, maxAcceleratedRemaining, s.heartbeatRemaining)

	s.heartbeatRemaining = 4
	s.AccelerateHeartbeat()
	require.Equal(t, 4, s.heartbeatRemaining) // already within [2,6], left alone
}

func TestAcceptEverythingModeAcceptsAll(t *testing.T) {
	s := NewService(testIdentity(), Everything, false, nil)
	m := xplmsg.NewBroadcast(xplmsg.Status, xplmsg.Identity{Vendor: "other", Device: "x", Instance: "y"}, "sensor", "basic")
	require.True(t, s.Accept(m))
}

func TestAcceptOwnMessagesModeOnlyMatchesSelf(t *testing.T) {
	s := NewService(testIdentity(), OwnMessages, false, nil)
	own := xplmsg.NewBroadcast(xplmsg.Status, testIdentity(), "sensor", "basic")
	other := xplmsg.NewBroadcast(xplmsg.Status, xplmsg.Identity{Vendor: "other", Device: "x", Instance: "y"}, "sensor", "basic")
	require.True(t, s.Accept(own))
	require.False(t, s.Accept(other))
}

func TestAcceptNormalModeRejectsOwnBroadcast(t *testing.T) {
	s := NewService(testIdentity(), Normal, false, nil)
	own := xplmsg.NewBroadcast(xplmsg.Trigger, testIdentity(), "sensor", "basic")
	require.False(t, s.Accept(own))
}

func TestAcceptNormalModeAcceptsTargetedMessage(t *testing.T) {
	s := NewService(testIdentity(), Normal, false, nil)
	other := xplmsg.Identity{Vendor: "other", Device: "x", Instance: "y"}
	targeted := xplmsg.NewTargeted(xplmsg.Command, other, testIdentity(), "control", "basic")
	require.True(t, s.Accept(targeted))
}

func TestAcceptNormalModeReportOwnMessagesTogglesOwnBroadcast(t *testing.T) {
	s := NewService(testIdentity(), Normal, false, nil)
	s.ReportOwnMessages = true
	own := xplmsg.NewBroadcast(xplmsg.Trigger, testIdentity(), "sensor", "basic")
	require.True(t, s.Accept(own))
}

func TestAcceptNormalModeAdmitsBroadcastGroupWithOrWithoutReportGroup(t *testing.T) {
	other := xplmsg.Identity{Vendor: "other", Device: "x", Instance: "y"}
	group := xplmsg.NewBroadcast(xplmsg.Status, other, "xpl", "group")

	noGroup := NewService(testIdentity(), Normal, false, nil)
	require.True(t, noGroup.Accept(group)) // broadcast-and-not-us already admits it

	yesGroup := NewService(testIdentity(), Normal, true, nil)
	require.True(t, yesGroup.Accept(group))
}
