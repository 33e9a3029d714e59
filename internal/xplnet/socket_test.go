// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xplnet

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterfaceBroadcastAddrLoopback(t *testing.T) {
	ip, err := interfaceBroadcastAddr("lo")
	if err != nil {
		t.Skipf("no usable loopback interface in this environment: %v", err)
	}
	// 127.0.0.1/8's broadcast address is 127.255.255.255.
	require.True(t, ip.Equal(net.IPv4(127, 255, 255, 255)))
}

func TestInterfaceBroadcastAddrUnknownInterface(t *testing.T) {
	_, err := interfaceBroadcastAddr("no-such-iface-xyz")
	require.Error(t, err)
}
