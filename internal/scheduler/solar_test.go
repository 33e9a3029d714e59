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

func TestSolarEventOrdersMorningBeforeEvening(t *testing.T) {
	// London, summer solstice: sunrise should fall in the night/early
	// morning UTC hours and sunset in the evening UTC hours.
	summerSolstice := time.Date(2026, time.June, 21, 0, 0, 0, 0, time.UTC)
	morning, evening, ok := solarEvent(summerSolstice, 51.5, -0.13, altitudeSunriseSunset)
	require.True(t, ok)
	require.Less(t, morning, 6.0)
	require.Greater(t, evening, 18.0)
}

func TestSolarEventCivilTwilightBracketsSunriseSunset(t *testing.T) {
	date := time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)
	dawn, dusk, ok1 := solarEvent(date, 51.5, -0.13, altitudeCivilTwilight)
	sunrise, sunset, ok2 := solarEvent(date, 51.5, -0.13, altitudeSunriseSunset)
	require.True(t, ok1)
	require.True(t, ok2)

	// Civil dawn precedes sunrise; sunset precedes civil dusk, on an
	// equinox where both events fall well clear of midnight.
	require.Less(t, dawn, sunrise)
	require.Less(t, sunset, dusk)
}

func TestSolarEventPolarNightReturnsNotOK(t *testing.T) {
	// Well above the Arctic Circle in midwinter, the sun never reaches
	// civil-twilight altitude: no dawn/dusk crossing exists that day.
	midwinter := time.Date(2026, time.December, 21, 0, 0, 0, 0, time.UTC)
	_, _, ok := solarEvent(midwinter, 78.0, 15.0, altitudeCivilTwilight)
	require.False(t, ok)
}

func TestComputeSolarTimesProducesOrderedLocalEvents(t *testing.T) {
	loc, err := time.LoadLocation("UTC")
	require.NoError(t, err)
	now := time.Date(2026, time.June, 21, 12, 0, 0, 0, loc)

	st := computeSolarTimes(now, 51.5, -0.13)
	require.True(t, st.valid)

	toMinutes := func(h, m int) int { return h*60 + m }
	require.Less(t, toMinutes(st.dawnHour, st.dawnMin), toMinutes(st.sunriseHour, st.sunriseMin))
	require.Less(t, toMinutes(st.sunriseHour, st.sunriseMin), toMinutes(st.sunsetHour, st.sunsetMin))
	require.Less(t, toMinutes(st.sunsetHour, st.sunsetMin), toMinutes(st.duskHour, st.duskMin))
}
