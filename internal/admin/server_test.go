// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package admin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer("127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPublishMonitorFansOutToEverySubscriber(t *testing.T) {
	s := newTestServer(t)

	ch1, unsub1 := s.SubscribeMonitor()
	defer unsub1()
	ch2, unsub2 := s.SubscribeMonitor()
	defer unsub2()

	s.PublishMonitor("hello")

	require.Equal(t, "hello", <-ch1)
	require.Equal(t, "hello", <-ch2)
}

func TestPublishMonitorDropsOnFullQueueRatherThanBlocking(t *testing.T) {
	s := newTestServer(t)
	ch, unsub := s.SubscribeMonitor()
	defer unsub()

	for i := 0; i < monitorQueueDepth+10; i++ {
		s.PublishMonitor("msg")
	}
	require.Len(t, ch, monitorQueueDepth)
}

func TestUnsubscribeMonitorStopsFutureDeliveries(t *testing.T) {
	s := newTestServer(t)
	ch, unsub := s.SubscribeMonitor()
	unsub()

	s.PublishMonitor("after unsubscribe")
	select {
	case v := <-ch:
		t.Fatalf("unexpected delivery after unsubscribe: %q", v)
	default:
	}
}
