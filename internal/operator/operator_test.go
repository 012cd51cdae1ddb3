package operator

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridsim/internal/api"
	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/network"
	"github.com/talgya/gridsim/internal/persistence"
	"github.com/talgya/gridsim/internal/resource"
)

const adminKey = "op-key"

func startServer(t *testing.T) (*api.Server, string) {
	t.Helper()
	w := engine.NewWorld(engine.DefaultOptions())
	power := building.New("POWER_001", building.KindPowerPlant)
	power.Resources[resource.Water] = 40
	_, err := w.AddBuilding(power)
	require.NoError(t, err)
	_, err = w.AddBuilding(building.New("HOSP_001", building.KindHospital))
	require.NoError(t, err)
	_, err = w.ConnectBuildings(network.EnergyGrid, "POWER_001", "HOSP_001", network.Overrides{})
	require.NoError(t, err)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "op.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := &api.Server{World: w, Eng: engine.NewEngine(w), DB: db, AdminKey: adminKey}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func TestObserver(t *testing.T) {
	s, url := startServer(t)
	for _, sum := range s.World.Run(4) {
		require.NoError(t, s.DB.SaveStats(sum))
	}
	ctx := context.Background()
	obs := NewObserver(url)

	st, err := obs.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gridsim", st.Name)
	assert.Equal(t, s.World.RunID, st.RunID)
	assert.Equal(t, uint64(4), st.Summary.Tick)

	rows, err := obs.History(ctx, 2, 3, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(3), rows[1].Tick)

	g, err := obs.Graph(ctx)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
}

func TestObserver_ErrorStatus(t *testing.T) {
	obs := NewObserver("http://127.0.0.1:1")
	_, err := obs.Status(context.Background())
	assert.Error(t, err)

	_, url := startServer(t)
	obs = NewObserver(url + "/missing")
	_, err = obs.Graph(context.Background())
	assert.ErrorContains(t, err, "404")
}

func TestActor(t *testing.T) {
	s, url := startServer(t)
	ctx := context.Background()
	act := NewActor(url, adminKey)

	o, err := act.Attack(ctx, "POWER_001-HOSP_001", 0.9)
	require.NoError(t, err)
	assert.True(t, o.Applied)
	assert.Equal(t, "destroyed", o.Entities[0].After)

	o, err = act.Recover(ctx, "POWER_001-HOSP_001", 1)
	require.NoError(t, err)
	assert.False(t, o.Applied, "destroyed edges stay destroyed")

	speed, err := act.SetSpeed(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, speed)
	assert.Equal(t, 0.0, s.Eng.Speed())

	tick, err := act.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tick)

	events, err := NewObserver(url).Events(ctx, "attack", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestActor_BadKey(t *testing.T) {
	_, url := startServer(t)
	_, err := NewActor(url, "wrong").Attack(context.Background(), "POWER_001", 0.5)
	assert.ErrorContains(t, err, "401")
}

func TestTriage(t *testing.T) {
	cases := []struct {
		name string
		sum  engine.Summary
		want string
	}{
		{"empty", engine.Summary{}, LevelHealthy},
		{"all active", engine.Summary{BuildingsActive: 4, BuildingsTotal: 4, EdgesActive: 3, EdgesTotal: 3}, LevelHealthy},
		{"failed inputs", engine.Summary{BuildingsActive: 4, BuildingsTotal: 4, Last: engine.TickReport{ConsumersFailed: 1}}, LevelWatch},
		{"one down", engine.Summary{BuildingsActive: 7, BuildingsTotal: 8}, LevelWatch},
		{"destroyed", engine.Summary{BuildingsActive: 9, BuildingsTotal: 10, EdgeStatus: map[string]int{"destroyed": 1}}, LevelWarning},
		{"grid collapse", engine.Summary{BuildingsActive: 5, BuildingsTotal: 5, EdgesActive: 1, EdgesTotal: 4}, LevelCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Triage(tc.sum).Level)
		})
	}
}
