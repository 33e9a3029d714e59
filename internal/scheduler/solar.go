// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"math"
	"time"
)

// Solar event altitudes, degrees below the horizon at disc center.
const (
	altitudeSunriseSunset = -0.833
	altitudeCivilTwilight = -6.0
)

// solarEvent computes the UTC clock time (as a fraction of a day, 0-24h,
// possibly wrapped) of the morning and evening crossings of sun
// altitude alt on the given UTC date, at (lat, lon) in degrees. This is
// the standard NOAA closed-form solar-position approximation — no
// astronomy library appears anywhere in the reference corpus, so this
// is hand-rolled (see DESIGN.md).
func solarEvent(date time.Time, lat, lon, alt float64) (morningUTCHours, eveningUTCHours float64, ok bool) {
	y, m, d := date.Date()
	n := dayOfYear(y, m, d)

	latRad := lat * math.Pi / 180

	// Fractional year, radians.
	gamma := 2 * math.Pi / 365 * (float64(n) - 1)

	eqTime := 229.18 * (0.000075 + 0.001868*math.Cos(gamma) - 0.032077*math.Sin(gamma) -
		0.014615*math.Cos(2*gamma) - 0.040849*math.Sin(2*gamma))

	decl := 0.006918 - 0.399912*math.Cos(gamma) + 0.070257*math.Sin(gamma) -
		0.006758*math.Cos(2*gamma) + 0.000907*math.Sin(2*gamma) -
		0.002697*math.Cos(3*gamma) + 0.00148*math.Sin(3*gamma)

	cosH := (math.Sin(alt*math.Pi/180) - math.Sin(latRad)*math.Sin(decl)) /
		(math.Cos(latRad) * math.Cos(decl))
	if cosH < -1 || cosH > 1 {
		return 0, 0, false // sun never reaches this altitude today (polar day/night)
	}
	haDeg := math.Acos(cosH) * 180 / math.Pi

	// Solar noon (UTC, minutes).
	solarNoonUTC := 720 - 4*lon - eqTime
	sunriseUTCMin := solarNoonUTC - 4*haDeg
	sunsetUTCMin := solarNoonUTC + 4*haDeg

	morningUTCHours = math.Mod(sunriseUTCMin/60+24, 24)
	eveningUTCHours = math.Mod(sunsetUTCMin/60+24, 24)
	return morningUTCHours, eveningUTCHours, true
}

func dayOfYear(y int, m time.Month, d int) int {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return t.YearDay()
}

// solarTimes holds the day's precomputed local clock times (hour,
// minute) for the four astronomical events, recomputed once per local
// midnight per spec.md §4.8.
type solarTimes struct {
	day               int // YearDay the values were computed for
	dawnHour, dawnMin int
	duskHour, duskMin int
	sunriseHour, sunriseMin int
	sunsetHour, sunsetMin   int
	valid             bool
}

// computeSolarTimes returns the solar times for "now", applying the UTC offset
// (including DST, per spec.md §4.8's "daylight-saving is added to the
// UTC offset when active").
func computeSolarTimes(now time.Time, lat, lon float64) solarTimes {
	_, offsetSecs := now.Zone()
	utcOffsetHours := float64(offsetSecs) / 3600

	dawnUTC, duskUTC, ok1 := solarEvent(now.UTC(), lat, lon, altitudeCivilTwilight)
	sunriseUTC, sunsetUTC, ok2 := solarEvent(now.UTC(), lat, lon, altitudeSunriseSunset)
	if !ok1 || !ok2 {
		return solarTimes{day: now.YearDay(), valid: false}
	}

	toLocalClock := func(utcHours float64) (int, int) {
		local := utcHours + utcOffsetHours
		if local < 0 {
			local += 24
		}
		if local >= 24 {
			local -= 24
		}
		h := int(local)
		min := int(math.Round((local - float64(h)) * 60))
		if min == 60 {
			min = 0
			h = (h + 1) % 24
		}
		return h, min
	}

	dh, dm := toLocalClock(dawnUTC)
	sh, sm := toLocalClock(sunriseUTC)
	ssh, ssm := toLocalClock(sunsetUTC)
	duh, dum := toLocalClock(duskUTC)

	return solarTimes{
		day:         now.YearDay(),
		dawnHour:    dh, dawnMin: dm,
		sunriseHour: sh, sunriseMin: sm,
		sunsetHour: ssh, sunsetMin: ssm,
		duskHour: duh, duskMin: dum,
		valid: true,
	}
}
