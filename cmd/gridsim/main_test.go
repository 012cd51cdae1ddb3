package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridsim/internal/config"
	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/persistence"
	"github.com/talgya/gridsim/internal/ticklog"
)

func TestFormatLedger(t *testing.T) {
	assert.Equal(t, "-", formatLedger(nil))
	assert.Equal(t, "electricity=1,234.5 water=80", formatLedger(map[string]float64{"water": 80, "electricity": 1234.5}))
}

func TestRunBatch_PersistsAndLogs(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	f := runFlags{
		ticks:  12,
		dbPath: filepath.Join(dir, "run.db"),
		logDir: filepath.Join(dir, "ticks"),
		quiet:  true,
	}
	require.NoError(t, runBatch(cfg, f))

	db, err := persistence.Open(f.dbPath)
	require.NoError(t, err)
	defer db.Close()

	w, err := db.LoadWorld(engine.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, uint64(12), w.CurrentTick())

	rows, err := db.LoadStatsHistory(0, 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 12)

	name, err := db.GetMeta(persistence.MetaScenario)
	require.NoError(t, err)
	assert.Equal(t, "simple-city", name)

	files, err := ticklog.Files(f.logDir, w.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	total := 0
	for _, path := range files {
		got, err := ticklog.ReadAll(path)
		require.NoError(t, err)
		total += len(got)
	}
	assert.Equal(t, 12, total)
}

func TestValidateOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: tiny\nbuildings:\n  - {id: A, type: Hospital}\n"), 0o644))
	assert.NoError(t, validateOne(path))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\nbuildings: []\nedges:\n  - {layer: Road Network, from: A, to: B}\n"), 0o644))
	assert.Error(t, validateOne(bad))
}

func TestServe_FreshStartReplacesHistory(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "serve.db")
	cfg.API.Port = 0
	cfg.Metrics.Enabled = false

	// A cancelled context runs exactly one tick before shutting down.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	openDB := func() *persistence.DB {
		db, err := persistence.Open(cfg.Database.Path)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	}

	require.NoError(t, serve(ctx, cfg, false))
	db := openDB()
	firstRun, err := db.GetMeta(persistence.MetaRunID)
	require.NoError(t, err)
	require.NoError(t, db.SaveEvents([]engine.Event{{Seq: 99, Tick: 1, Category: "attack", Description: "stale"}}))
	require.NoError(t, db.Close())

	require.NoError(t, serve(ctx, cfg, false))
	db = openDB()
	resumed, err := db.GetMeta(persistence.MetaRunID)
	require.NoError(t, err)
	assert.Equal(t, firstRun, resumed)
	rows, err := db.LoadStatsHistory(0, 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	require.NoError(t, db.Close())

	require.NoError(t, serve(ctx, cfg, true))
	db = openDB()
	freshRun, err := db.GetMeta(persistence.MetaRunID)
	require.NoError(t, err)
	assert.NotEqual(t, firstRun, freshRun)

	rows, err = db.LoadStatsHistory(0, 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(1), rows[0].Tick)

	events, err := db.RecentEvents(100)
	require.NoError(t, err)
	for _, e := range events {
		assert.NotEqual(t, "stale", e.Description)
	}

	name, err := db.GetMeta(persistence.MetaScenario)
	require.NoError(t, err)
	assert.Equal(t, "simple-city", name)
}
