// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField is one of a cron expression's five whitespace-separated
// fields, supporting the subset of syntax original_source/scheduler.c's
// cronWildCardEval/cronNumEval actually implement: a bare number, a
// comma list of numbers, '*', or '*/M'. Ranges ("1-5") and
// non-wildcard steps ("3/5") are deliberately unsupported — the source
// format never uses them (see DESIGN.md).
type cronField struct {
	wildcard bool
	step     int // 0 if no step
	values   map[int]bool
}

func parseCronField(s string) (cronField, error) {
	if s == "*" {
		return cronField{wildcard: true}, nil
	}
	if strings.HasPrefix(s, "*/") {
		step, err := strconv.Atoi(s[2:])
		if err != nil || step <= 0 {
			return cronField{}, fmt.Errorf("scheduler: bad step field %q", s)
		}
		return cronField{wildcard: true, step: step}, nil
	}
	values := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return cronField{}, fmt.Errorf("scheduler: bad field value %q", part)
		}
		values[n] = true
	}
	return cronField{values: values}, nil
}

func (f cronField) matches(v int) bool {
	if f.wildcard {
		if f.step == 0 {
			return true
		}
		return v%f.step == 0
	}
	return f.values[v]
}

// cronExpr is a parsed five-field (minute, hour, mday, month, wday)
// cron expression.
type cronExpr struct {
	minute, hour, mday, month, wday cronField
}

func parseCronExpr(s string) (cronExpr, error) {
	fields := strings.Fields(s)
	if len(fields) != 5 {
		return cronExpr{}, fmt.Errorf("scheduler: cron expression %q must have 5 fields", s)
	}
	var e cronExpr
	var err error
	if e.minute, err = parseCronField(fields[0]); err != nil {
		return cronExpr{}, err
	}
	if e.hour, err = parseCronField(fields[1]); err != nil {
		return cronExpr{}, err
	}
	if e.mday, err = parseCronField(fields[2]); err != nil {
		return cronExpr{}, err
	}
	if e.month, err = parseCronField(fields[3]); err != nil {
		return cronExpr{}, err
	}
	if e.wday, err = parseCronField(fields[4]); err != nil {
		return cronExpr{}, err
	}
	return e, nil
}

// matches reports whether t's (minute, hour, mday, month, wday) satisfy
// every field, per spec.md §4.8 ("entry fires iff all five match").
//
// The month field is matched 0-based (January==0), mirroring
// original_source/scheduler.c's cronNumEval/cronWildCardEval dispatch,
// which compares the field verbatim against struct tm's tm_mon rather
// than against a 1-based month number.
func (e cronExpr) matches(t time.Time) bool {
	return e.minute.matches(t.Minute()) &&
		e.hour.matches(t.Hour()) &&
		e.mday.matches(t.Day()) &&
		e.month.matches(int(t.Month())-1) &&
		e.wday.matches(int(t.Weekday()))
}
