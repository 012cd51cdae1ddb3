package ticklog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/network"
	"github.com/talgya/gridsim/internal/resource"
)

func smallWorld(t *testing.T) *engine.World {
	t.Helper()
	w := engine.NewWorld(engine.DefaultOptions())
	power := building.New("POWER_001", building.KindPowerPlant)
	power.Resources[resource.Water] = 50
	_, err := w.AddBuilding(power)
	require.NoError(t, err)
	_, err = w.AddBuilding(building.New("MAG_001", building.KindMagazine))
	require.NoError(t, err)
	_, err = w.ConnectBuildings(network.EnergyGrid, "POWER_001", "MAG_001", network.Overrides{})
	require.NoError(t, err)
	return w
}

func TestWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := smallWorld(t)

	lw := NewWriter(dir, "run")
	lw.now = func() time.Time { return time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC) }

	summaries := w.Run(4)
	for _, s := range summaries {
		require.NoError(t, lw.WriteSummary(s))
	}
	require.NoError(t, lw.Close())
	assert.Equal(t, 4, lw.Written())

	files, err := Files(dir, "run")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "run-2026-03-01-14.jsonl.zst", filepath.Base(files[0]))

	got, err := ReadAll(files[0])
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, uint64(1), got[0].Tick)
	assert.Equal(t, uint64(4), got[3].Tick)
	assert.Equal(t, summaries[3].Resources, got[3].Resources)
	assert.Equal(t, summaries[0].Buildings, got[0].Buildings)
}

func TestWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC)

	lw := NewWriter(dir, "run")
	lw.now = func() time.Time { return clock }

	require.NoError(t, lw.WriteSummary(engine.Summary{Tick: 1}))
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, lw.WriteSummary(engine.Summary{Tick: 2}))
	require.NoError(t, lw.WriteSummary(engine.Summary{Tick: 3}))
	require.NoError(t, lw.Close())

	files, err := Files(dir, "run")
	require.NoError(t, err)
	require.Len(t, files, 2)

	first, err := ReadAll(files[0])
	require.NoError(t, err)
	second, err := ReadAll(files[1])
	require.NoError(t, err)
	assert.Len(t, first, 1)
	assert.Len(t, second, 2)
}

func TestWriter_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	fixed := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	for tick := uint64(1); tick <= 2; tick++ {
		lw := NewWriter(dir, "run")
		lw.now = fixed
		require.NoError(t, lw.WriteSummary(engine.Summary{Tick: tick}))
		require.NoError(t, lw.Close())
	}

	files, err := Files(dir, "run")
	require.NoError(t, err)
	require.Len(t, files, 1)

	got, err := ReadAll(files[0])
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[1].Tick)
}

func TestFiles_FiltersByPrefix(t *testing.T) {
	dir := t.TempDir()
	fixed := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	for _, prefix := range []string{"a", "b"} {
		lw := NewWriter(dir, prefix)
		lw.now = fixed
		require.NoError(t, lw.WriteSummary(engine.Summary{}))
		require.NoError(t, lw.Close())
	}

	only, err := Files(dir, "a")
	require.NoError(t, err)
	assert.Len(t, only, 1)

	all, err := Files(dir, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGraphSnapshot(t *testing.T) {
	w := smallWorld(t)
	w.Run(2)
	g := w.Graph()

	path := SnapshotPath(t.TempDir(), "run", g.Tick)
	assert.Equal(t, "run-graph-0000000002.json.zst", filepath.Base(path))
	require.NoError(t, WriteGraph(path, g))

	got, err := ReadGraph(path)
	require.NoError(t, err)
	assert.Equal(t, g.Tick, got.Tick)
	require.Len(t, got.Nodes, 2)
	require.Len(t, got.Links, 1)
	assert.Equal(t, g.Nodes[0].Resources, got.Nodes[0].Resources)
	assert.Equal(t, network.EnergyGrid, got.Links[0].Layer)

	_, err = ReadGraph(path + ".missing")
	assert.Error(t, err)
}
