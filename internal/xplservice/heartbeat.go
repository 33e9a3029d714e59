// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xplservice

import (
	"strconv"

	"github.com/xplhald/xplhald/internal/xplmsg"
)

// Version is embedded in every heartbeat body's optional "version" field.
var Version = "1.0"

// BuildHeartbeat renders s's heartbeat frame: interval (minutes), port
// (the receiver's bound local port), remote-ip, and version, per spec.md §4.4.
func BuildHeartbeat(s *Service, localPort int, remoteIP string) *xplmsg.Message {
	m := xplmsg.NewBroadcast(xplmsg.Status, s.Identity, "hbeat", "app")
	intervalMinutes := s.HeartbeatIntervalSecs / 60
	if intervalMinutes < 1 {
		intervalMinutes = 1
	}
	m.Set("interval", strconv.Itoa(intervalMinutes))
	m.Set("port", strconv.Itoa(localPort))
	m.Set("remote-ip", remoteIP)
	m.Set("version", Version)
	return m
}
