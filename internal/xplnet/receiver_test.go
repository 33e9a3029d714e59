// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xplnet

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestReceiver(t *testing.T) *Receiver {
	t.Helper()
	r, err := NewReceiver(NewConfig("lo"))
	if err != nil {
		t.Skipf("cannot bind xPL port %d in this environment: %v", Port, err)
	}
	return r
}

func TestReceiverDeliversSentDatagram(t *testing.T) {
	r := newTestReceiver(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	self := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: r.LocalPort()}
	require.NoError(t, r.Send([]byte("xpl-stat\n{\n}\nhbeat.app\n{\n}\n"), self))

	select {
	case dg := <-r.Datagrams():
		require.Equal(t, "xpl-stat\n{\n}\nhbeat.app\n{\n}\n", string(dg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for self-addressed datagram")
	}

	require.NoError(t, r.Stop())
	<-done
}

func TestReceiverWatchdogAdvances(t *testing.T) {
	r := newTestReceiver(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.Run(ctx)
	defer r.Stop()

	before := r.WatchdogTick()
	require.Eventually(t, func() bool {
		return r.WatchdogTick() > before
	}, 2*time.Second, 50*time.Millisecond)
}
