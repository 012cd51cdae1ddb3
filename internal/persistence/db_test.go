package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/network"
	"github.com/talgya/gridsim/internal/resource"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "gridsim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleWorld(t *testing.T) *engine.World {
	t.Helper()
	w := engine.NewWorld(engine.DefaultOptions())

	power := building.New("POWER_001", building.KindPowerPlant)
	power.Resources[resource.Water] = 30
	_, err := w.AddBuilding(power)
	require.NoError(t, err)
	_, err = w.AddBuilding(building.New("MAG_001", building.KindMagazine))
	require.NoError(t, err)

	travel := 2
	_, err = w.ConnectBuildings(network.EnergyGrid, "POWER_001", "MAG_001", network.Overrides{TravelTime: &travel})
	require.NoError(t, err)
	return w
}

func TestSaveAndLoadWorld(t *testing.T) {
	db := openTestDB(t)
	w := sampleWorld(t)
	w.Tick()
	_, err := w.ExecuteAttack("POWER_001-MAG_001", 0.6)
	require.NoError(t, err)

	has, err := db.HasWorldState()
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, db.SaveWorldState(w))

	has, err = db.HasWorldState()
	require.NoError(t, err)
	assert.True(t, has)

	loaded, err := db.LoadWorld(engine.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, w.RunID, loaded.RunID)
	assert.Equal(t, uint64(1), loaded.CurrentTick())

	b, ok := loaded.Building("POWER_001")
	require.True(t, ok)
	assert.Equal(t, building.KindPowerPlant, b.Kind)
	assert.Equal(t, 25.0, b.Resources.Get(resource.Water))
	assert.Equal(t, 17.0, b.Resources.Get(resource.Electricity))

	edges := loaded.Edges()
	require.Len(t, edges, 1)
	e := edges[0]
	assert.Equal(t, network.StatusDamaged, e.Attributes.Status)
	assert.Equal(t, 40.0, e.Attributes.Capacity)
	require.NotNil(t, e.Attributes.OriginalCapacity)
	assert.Equal(t, 100.0, *e.Attributes.OriginalCapacity)
	require.Len(t, e.InTransit[resource.Electricity], 1)
	assert.True(t, e.InTransit[resource.Electricity][0].Departed)
	assert.Equal(t, 2, e.InTransit[resource.Electricity][0].TicksRemaining)

	// Building order survives the round trip.
	ids := []string{}
	for _, b := range loaded.Buildings() {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"POWER_001", "MAG_001"}, ids)
	assert.Len(t, loaded.Layers(), 5)
}

func TestSaveWorldState_AppendsOnlyNewEvents(t *testing.T) {
	db := openTestDB(t)
	w := sampleWorld(t)

	_, err := w.ExecuteAttack("MAG_001", 0.3)
	require.NoError(t, err)
	require.NoError(t, db.SaveWorldState(w))
	require.NoError(t, db.SaveWorldState(w))

	events, err := db.RecentEvents(50)
	require.NoError(t, err)
	first := len(events)
	require.NotZero(t, first)

	_, err = w.ExecuteRecovery("MAG_001", 1.0)
	require.NoError(t, err)
	require.NoError(t, db.SaveWorldState(w))

	events, err = db.RecentEvents(50)
	require.NoError(t, err)
	assert.Greater(t, len(events), first)
	assert.Equal(t, "recovery", events[0].Category, "newest first")
	assert.Equal(t, "MAG_001", events[0].Meta["target"])

	// A reloaded world continues the event sequence.
	loaded, err := db.LoadWorld(engine.DefaultOptions())
	require.NoError(t, err)
	loaded.EmitEvent(engine.Event{Category: "scenario"})
	assert.Greater(t, loaded.Events(1)[0].Seq, events[0].Seq)
}

func TestStatsHistory(t *testing.T) {
	db := openTestDB(t)
	w := sampleWorld(t)

	for _, s := range w.Run(5) {
		require.NoError(t, db.SaveStats(s))
	}

	rows, err := db.LoadStatsHistory(2, 4, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, uint64(2), rows[0].Tick)
	assert.Equal(t, 2, rows[0].BuildingsTotal)
	assert.Equal(t, 1, rows[0].EdgesTotal)
	assert.Equal(t, 20.0, rows[0].Resources["water"])

	all, err := db.LoadStatsHistory(0, 0, 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveMeta(MetaScenario, "default"))
	v, err := db.GetMeta(MetaScenario)
	require.NoError(t, err)
	assert.Equal(t, "default", v)

	_, err = db.GetMeta("missing")
	assert.Error(t, err)
}

func TestSaveWorldState_NewRunReplacesHistory(t *testing.T) {
	db := openTestDB(t)
	old := sampleWorld(t)
	for _, s := range old.Run(3) {
		require.NoError(t, db.SaveStats(s))
	}
	for i := 0; i < 10; i++ {
		old.EmitEvent(engine.Event{Category: "scenario", Description: "old run"})
	}
	require.NoError(t, db.SaveWorldState(old))

	fresh := sampleWorld(t)
	for i := 0; i < 3; i++ {
		fresh.EmitEvent(engine.Event{Category: "campaign", Description: "new run"})
	}
	require.NoError(t, db.SaveWorldState(fresh))

	events, err := db.RecentEvents(50)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, "new run", e.Description)
	}

	rows, err := db.LoadStatsHistory(0, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	runID, err := db.GetMeta(MetaRunID)
	require.NoError(t, err)
	assert.Equal(t, fresh.RunID, runID)
}

func TestBeginRun_KeepsStatsOfCurrentRun(t *testing.T) {
	db := openTestDB(t)
	old := sampleWorld(t)
	for _, s := range old.Run(2) {
		require.NoError(t, db.SaveStats(s))
	}
	require.NoError(t, db.SaveWorldState(old))

	w := sampleWorld(t)
	require.NoError(t, db.BeginRun(w.RunID))

	rows, err := db.LoadStatsHistory(0, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	for _, s := range w.Run(4) {
		require.NoError(t, db.SaveStats(s))
	}
	w.EmitEvent(engine.Event{Category: "scenario"})
	require.NoError(t, db.SaveWorldState(w))

	rows, err = db.LoadStatsHistory(0, 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	events, err := db.RecentEvents(50)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "scenario", events[0].Category)
}
