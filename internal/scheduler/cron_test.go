// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCronExprRejectsWrongFieldCount(t *testing.T) {
	_, err := parseCronExpr("* * *")
	require.Error(t, err)
}

func TestParseCronExprRejectsRanges(t *testing.T) {
	_, err := parseCronField("1-5")
	require.Error(t, err)
}

func TestCronExprMatchesEveryField(t *testing.T) {
	e, err := parseCronExpr("30 6 * * 1,2,3,4,5")
	require.NoError(t, err)

	monday0630 := time.Date(2026, time.August, 3, 6, 30, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday0630.Weekday())
	require.True(t, e.matches(monday0630))

	sunday0630 := time.Date(2026, time.August, 2, 6, 30, 0, 0, time.UTC)
	require.Equal(t, time.Sunday, sunday0630.Weekday())
	require.False(t, e.matches(sunday0630))

	monday0631 := time.Date(2026, time.August, 3, 6, 31, 0, 0, time.UTC)
	require.False(t, e.matches(monday0631))
}

func TestCronExprMonthFieldIsZeroBased(t *testing.T) {
	// "0" means January, matching original_source/scheduler.c's raw
	// tm_mon comparison (0-11), not the 1-12 convention of POSIX cron.
	e, err := parseCronExpr("0 0 1 0 *")
	require.NoError(t, err)

	require.True(t, e.matches(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))
	require.False(t, e.matches(time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCronExprStepField(t *testing.T) {
	e, err := parseCronExpr("*/15 * * * *")
	require.NoError(t, err)

	require.True(t, e.matches(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, e.matches(time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)))
	require.False(t, e.matches(time.Date(2026, 1, 1, 0, 20, 0, 0, time.UTC)))
}

func TestParseAstroTokenIncludesNoop(t *testing.T) {
	require.Equal(t, astroStartup, parseAstroToken("@startup"))
	require.Equal(t, astroSunrise, parseAstroToken("@sunrise"))
	require.Equal(t, astroNoop, parseAstroToken("@noop"))
	require.Equal(t, notAstro, parseAstroToken("not-a-token"))
}
