// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xplhald_test.db")
	st, err := Open(path, 3, 5)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestNVStateRoundTrip(t *testing.T) {
	st := openTestStore(t)

	_, err := st.ReadNVState("missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.WriteNVState("last-motion", "123"))
	v, err := st.ReadNVState("last-motion")
	require.NoError(t, err)
	require.Equal(t, "123", v)

	require.NoError(t, st.WriteNVState("last-motion", "456"))
	v, err = st.ReadNVState("last-motion")
	require.NoError(t, err)
	require.Equal(t, "456", v)
}

func TestScriptUpsertAndFetch(t *testing.T) {
	st := openTestStore(t)

	_, err := st.FetchScript("nope")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.UpsertScript("lights-on", `xplcmd("acme-dimmer.kitchen","control","basic",%cmd);`))
	text, err := st.FetchScript("lights-on")
	require.NoError(t, err)
	require.Contains(t, text, "xplcmd")

	require.NoError(t, st.UpsertScript("lights-on", "# replaced"))
	text, err = st.FetchScript("lights-on")
	require.NoError(t, err)
	require.Equal(t, "# replaced", text)
}

func TestFetchScriptByTagJoinsBinding(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.UpsertScript("motion-handler", "# motion"))

	sq := st.(*sqliteStore)
	_, err := sq.db.Exec(`INSERT INTO script_binding (source_tag, script_name) VALUES (?, ?)`,
		"acme-sensor.porch", "motion-handler")
	require.NoError(t, err)

	text, err := st.FetchScriptByTag("acme-sensor.porch")
	require.NoError(t, err)
	require.Equal(t, "# motion", text)

	_, err = st.FetchScriptByTag("no-such-tag")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTriggerAndHeartbeatLogsDoNotError(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.UpdateTriggerLog("acme-sensor.porch", "sensor.basic", "device=garage,current=on", time.Now()))
	require.NoError(t, st.UpdateHeartbeatLog("acme-sensor.porch", time.Now()))
	require.NoError(t, st.UpdateHeartbeatLog("acme-sensor.porch", time.Now())) // upsert on conflict
}

func TestIterateScheduleIsEmptyWithNoRows(t *testing.T) {
	st := openTestStore(t)
	count := 0
	require.NoError(t, st.IterateSchedule(func(ScheduleRow) error {
		count++
		return nil
	}))
	require.Equal(t, 0, count)
}
