// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler evaluates a minute-tick cron list, including the
// @startup/@dawn/@sunrise/@sunset/@dusk extensions, against wall-clock
// time. Its registration/run-loop shape — named entries, Start/Shutdown,
// a time.Ticker driving periodic work — is grounded on the teacher's
// internal/taskmanager.taskManager (a go-co-op/gocron wrapper); the
// field-matching itself is hand-written because the source cron format
// (original_source/scheduler.c) never uses ranges or non-wildcard steps,
// a strict subset that a general POSIX-cron library does not model (see
// DESIGN.md).
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/xplhald/xplhald/internal/metrics"
	"github.com/xplhald/xplhald/pkg/log"
)

// astroToken is one of the '@'-prefixed schedule tokens.
type astroToken int

const (
	notAstro astroToken = iota
	astroStartup
	astroDawn
	astroSunrise
	astroSunset
	astroDusk
	astroNoop
)

func parseAstroToken(s string) astroToken {
	switch s {
	case "@startup":
		return astroStartup
	case "@dawn":
		return astroDawn
	case "@sunrise":
		return astroSunrise
	case "@sunset":
		return astroSunset
	case "@dusk":
		return astroDusk
	case "@noop":
		// A disabled schedule entry convention carried over from
		// original_source/scheduler.c: parses but never fires.
		return astroNoop
	default:
		return notAstro
	}
}

// Callback runs when an entry fires. arg is the entry's callback
// argument (e.g. a script name).
type Callback func(arg string)

// entry is one registered schedule row.
type entry struct {
	name  string
	astro astroToken
	cron  cronExpr
	cb    Callback
	arg   string

	hasRunOnce bool
}

// Scheduler evaluates every registered entry once per minute tick.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	lat, lon float64

	solar      solarTimes
	ticker     *time.Ticker
	stop       chan struct{}
	wg         sync.WaitGroup
	log        *log.Logger
}

// New creates a Scheduler for the given astronomical coordinates.
func New(lat, lon float64) *Scheduler {
	return &Scheduler{lat: lat, lon: lon, log: log.With("scheduler")}
}

// Register adds a named entry with cronExpr either a five-field cron
// string or one of the '@' tokens.
func (s *Scheduler) Register(name, cronExprStr string, cb Callback, arg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{name: name, cb: cb, arg: arg}
	if cronExprStr == "" {
		// A schedule row stored with an empty cron_expr is the soft-disable
		// convention: load the entry so it is visible to admin tooling, but
		// never fire it, same as an explicit @noop.
		e.astro = astroNoop
	} else if astro := parseAstroToken(cronExprStr); astro != notAstro {
		e.astro = astro
	} else {
		parsed, err := parseCronExpr(cronExprStr)
		if err != nil {
			return fmt.Errorf("scheduler: register %s: %w", name, err)
		}
		e.cron = parsed
	}
	s.entries = append(s.entries, e)
	return nil
}

// Start begins the minute-tick run loop in a new goroutine, following
// the teacher's taskmanager.Start() naming and time.Ticker-driven shape.
func (s *Scheduler) Start() {
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(time.Minute)
	now := time.Now()
	s.solar = computeSolarTimes(now, s.lat, s.lon)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runOnce(now) // fire @startup entries immediately
		for {
			select {
			case t := <-s.ticker.C:
				s.runOnce(t)
			case <-s.stop:
				return
			}
		}
	}()
}

// Shutdown stops the run loop and waits for it to exit.
func (s *Scheduler) Shutdown() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.stop != nil {
		close(s.stop)
	}
	s.wg.Wait()
}

// runOnce evaluates every entry against t, recomputing solar times at
// local midnight per spec.md §4.8.
func (s *Scheduler) runOnce(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Hour() == 0 && t.Minute() == 0 {
		s.solar = computeSolarTimes(t, s.lat, s.lon)
	}
	if s.solar.day != t.YearDay() {
		s.solar = computeSolarTimes(t, s.lat, s.lon)
	}

	for _, e := range s.entries {
		if s.shouldFire(e, t) {
			metrics.SchedulerFires.Inc()
			e.hasRunOnce = true
			e.cb(e.arg)
		}
	}
}

func (s *Scheduler) shouldFire(e *entry, t time.Time) bool {
	switch e.astro {
	case astroStartup:
		return !e.hasRunOnce
	case astroNoop:
		return false
	case astroDawn:
		return s.solar.valid && t.Hour() == s.solar.dawnHour && t.Minute() == s.solar.dawnMin
	case astroSunrise:
		return s.solar.valid && t.Hour() == s.solar.sunriseHour && t.Minute() == s.solar.sunriseMin
	case astroSunset:
		return s.solar.valid && t.Hour() == s.solar.sunsetHour && t.Minute() == s.solar.sunsetMin
	case astroDusk:
		return s.solar.valid && t.Hour() == s.solar.duskHour && t.Minute() == s.solar.duskMin
	default:
		return e.cron.matches(t)
	}
}
