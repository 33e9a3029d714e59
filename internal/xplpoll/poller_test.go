// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package xplpoll

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/require"
)

func TestWaitFiresReadableCallback(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	r, w, err := pipe(t)
	require.NoError(t, err)
	defer unix.Close(r)
	defer unix.Close(w)

	fired := make(chan Mask, 1)
	p.Register(r, Readable, false, func(fd int, revents Mask) {
		fired <- revents
	})

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, p.Wait(1000))
	select {
	case m := <-fired:
		require.NotZero(t, m&Readable)
	default:
		t.Fatal("callback did not fire")
	}
}

func TestWaitFiresTimeoutCallbackWhenIdle(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	fired := make(chan struct{}, 1)
	p.RegisterTimeout(func() { fired <- struct{}{} })

	require.NoError(t, p.Wait(10))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout callback did not fire")
	}
}

func TestUnregisterTimeoutStopsFurtherFires(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	var count int
	id := p.RegisterTimeout(func() { count++ })
	p.UnregisterTimeout(id)

	require.NoError(t, p.Wait(5))
	require.Equal(t, 0, count)
}

// pipe creates an OS pipe for readiness testing.
func pipe(t *testing.T) (r, w int, err error) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}
