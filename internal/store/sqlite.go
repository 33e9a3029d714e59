// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/xplhald/xplhald/pkg/log"
)

var registerHooksOnce sync.Once

// sqliteStore is the concrete Store backed by SQLite through sqlx. Every
// write goes through execBusy, which retries on SQLITE_BUSY up to
// config's configured bound (spec.md §5: a writer never blocks the
// receive thread, it backs off and retries).
type sqliteStore struct {
	db       *sqlx.DB
	retries  int
	backoff  time.Duration
}

// Open connects to an SQLite database at path, registering the driver
// with sqlhooks exactly once per process (sql.Register panics on a
// duplicate name), and ensures the schema exists.
func Open(path string, busyRetries int, busyBackoffMs int) (Store, error) {
	registerHooksOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &queryLogHook{}))
	})

	db, err := sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite does not multiplex writers; one connection avoids
	// spurious SQLITE_BUSY from the driver's own pool.
	db.SetMaxOpenConns(1)

	s := &sqliteStore{
		db:      db,
		retries: busyRetries,
		backoff: time.Duration(busyBackoffMs) * time.Millisecond,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS nvstate (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS script (
	name TEXT PRIMARY KEY,
	text TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS script_binding (
	source_tag  TEXT PRIMARY KEY,
	script_name TEXT NOT NULL REFERENCES script(name)
);
CREATE TABLE IF NOT EXISTS schedule (
	name        TEXT PRIMARY KEY,
	cron_expr   TEXT NOT NULL,
	script_name TEXT NOT NULL REFERENCES script(name)
);
CREATE TABLE IF NOT EXISTS trigger_log (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	source  TEXT NOT NULL,
	schema  TEXT NOT NULL,
	nvpairs TEXT NOT NULL,
	seen_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS heartbeat_log (
	source  TEXT PRIMARY KEY,
	seen_at DATETIME NOT NULL
);
`

func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// execBusy retries fn while SQLite reports the database locked, sleeping
// backoff between attempts, up to retries times.
func (s *sqliteStore) execBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		sqliteErr, ok := err.(sqlite3.Error)
		if !ok || (sqliteErr.Code != sqlite3.ErrBusy && sqliteErr.Code != sqlite3.ErrLocked) {
			return err
		}
		log.Debugf("store: busy, retrying (attempt %d/%d)", attempt+1, s.retries)
		time.Sleep(s.backoff)
	}
	return fmt.Errorf("store: exceeded %d busy-retries: %w", s.retries, err)
}

func (s *sqliteStore) ReadNVState(key string) (string, error) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM nvstate WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: read nvstate %s: %w", key, err)
	}
	return value, nil
}

func (s *sqliteStore) WriteNVState(key, value string) error {
	return s.execBusy(func() error {
		_, err := s.db.Exec(
			`INSERT INTO nvstate (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, time.Now().UTC())
		return err
	})
}

func (s *sqliteStore) FetchScript(name string) (string, error) {
	var text string
	err := s.db.Get(&text, `SELECT text FROM script WHERE name = ?`, name)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: fetch script %s: %w", name, err)
	}
	return text, nil
}

func (s *sqliteStore) FetchScriptByTag(sourceTag string) (string, error) {
	var text string
	err := s.db.Get(&text, `
		SELECT script.text FROM script_binding
		JOIN script ON script.name = script_binding.script_name
		WHERE script_binding.source_tag = ?`, sourceTag)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: fetch script by tag %s: %w", sourceTag, err)
	}
	return text, nil
}

func (s *sqliteStore) UpsertScript(name, text string) error {
	return s.execBusy(func() error {
		_, err := s.db.Exec(
			`INSERT INTO script (name, text) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET text = excluded.text`,
			name, text)
		return err
	})
}

func (s *sqliteStore) UpdateTriggerLog(source, schema, nvpairs string, ts time.Time) error {
	return s.execBusy(func() error {
		_, err := s.db.Exec(
			`INSERT INTO trigger_log (source, schema, nvpairs, seen_at) VALUES (?, ?, ?, ?)`,
			source, schema, nvpairs, ts.UTC())
		return err
	})
}

func (s *sqliteStore) UpdateHeartbeatLog(source string, ts time.Time) error {
	return s.execBusy(func() error {
		_, err := s.db.Exec(
			`INSERT INTO heartbeat_log (source, seen_at) VALUES (?, ?)
			 ON CONFLICT(source) DO UPDATE SET seen_at = excluded.seen_at`,
			source, ts.UTC())
		return err
	})
}

func (s *sqliteStore) IterateSchedule(cb func(ScheduleRow) error) error {
	rows, err := s.db.Queryx(`SELECT name, cron_expr, script_name FROM schedule`)
	if err != nil {
		return fmt.Errorf("store: iterate schedule: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r ScheduleRow
		if err := rows.Scan(&r.Name, &r.CronExpr, &r.ScriptName); err != nil {
			return fmt.Errorf("store: iterate schedule: scan: %w", err)
		}
		if err := cb(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// queryLogHook satisfies sqlhooks.Hooks, logging query/timing the way the
// teacher's internal/repository.Hooks does.
type queryLogHook struct{}

func (queryLogHook) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("store: query %s %q", query, args)
	return context.WithValue(ctx, queryStartKey{}, time.Now()), nil
}

func (queryLogHook) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		log.Debugf("store: took %s", time.Since(begin))
	}
	return ctx, nil
}

type queryStartKey struct{}
