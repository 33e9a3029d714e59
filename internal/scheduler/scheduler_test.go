// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartFiresStartupEntryOnce(t *testing.T) {
	s := New(51.5, -0.13)
	var fired atomic.Int32
	require.NoError(t, s.Register("boot", "@startup", func(arg string) { fired.Add(1) }, "boot-script"))

	s.Start()
	defer s.Shutdown()

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 10*time.Millisecond)

	// A second runOnce pass (simulated directly) must not re-fire it.
	s.runOnce(time.Now())
	require.Equal(t, int32(1), fired.Load())
}

func TestRegisterRejectsMalformedCron(t *testing.T) {
	s := New(51.5, -0.13)
	err := s.Register("bad", "not a cron", func(string) {}, "")
	require.Error(t, err)
}

func TestRunOnceFiresMatchingCronEntry(t *testing.T) {
	s := New(51.5, -0.13)
	var got string
	require.NoError(t, s.Register("every-minute", "* * * * *", func(arg string) { got = arg }, "watered"))

	s.runOnce(time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC))
	require.Equal(t, "watered", got)
}

func TestNoopEntryNeverFires(t *testing.T) {
	s := New(51.5, -0.13)
	var fired bool
	require.NoError(t, s.Register("disabled", "@noop", func(string) { fired = true }, ""))

	s.runOnce(time.Now())
	require.False(t, fired)
}

func TestEmptyCronExprIsLoadedButNeverFires(t *testing.T) {
	s := New(51.5, -0.13)
	var fired bool
	require.NoError(t, s.Register("disabled-row", "", func(string) { fired = true }, ""))

	s.runOnce(time.Now())
	require.False(t, fired)
}
