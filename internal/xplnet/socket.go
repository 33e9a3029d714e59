// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package xplnet owns the UDP broadcast socket: binding to the
// configured interface's broadcast address on port 3865, and sending
// and receiving raw xPL datagrams. The receive side hands payloads off
// through a bounded channel rather than the C original's mutex-guarded
// FIFO and dedicated memory pool (spec.md §9's "thread sharing -> message
// passing" redesign note).
package xplnet

import (
	"fmt"
	"net"
)

// interfaceBroadcastAddr resolves ifaceName's IPv4 broadcast address.
func interfaceBroadcastAddr(ifaceName string) (net.IP, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("xplnet: lookup interface %q: %w", ifaceName, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("xplnet: addrs of %q: %w", ifaceName, err)
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		bcast := make(net.IP, net.IPv4len)
		mask := ipNet.Mask
		for i := range ip4 {
			bcast[i] = ip4[i] | ^mask[i]
		}
		return bcast, nil
	}
	return nil, fmt.Errorf("xplnet: interface %q has no IPv4 address", ifaceName)
}
