package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/network"
	"github.com/talgya/gridsim/internal/resource"
)

func TestDefault_BuildsSimpleCity(t *testing.T) {
	s := Default()
	assert.Equal(t, "simple-city", s.Name)

	w, err := s.Build(engine.DefaultOptions())
	require.NoError(t, err)

	sum := w.StatusSummary()
	assert.Equal(t, 6, sum.BuildingsTotal)
	assert.Equal(t, 13, sum.EdgesTotal)

	power, ok := w.Building("POWER_001")
	require.True(t, ok)
	assert.Equal(t, building.KindPowerPlant, power.Kind)
	assert.Equal(t, 25.0, power.Produces.Get(resource.Electricity), "override wins")
	assert.Equal(t, 5.0, power.Requires.Get(resource.Water), "template fills the gap")
	assert.Equal(t, 100.0, power.Resources.Get(resource.Water))

	var roadTravel []int
	for _, e := range w.Edges() {
		if e.Attributes.Layer == network.RoadNetwork {
			roadTravel = append(roadTravel, e.Attributes.TravelTime)
		}
	}
	assert.Equal(t, []int{3, 5}, roadTravel)
}

func TestDefault_RunsWithScheduledEvents(t *testing.T) {
	s := Default()
	w, err := s.Build(engine.DefaultOptions())
	require.NoError(t, err)

	applied := 0
	for tick := uint64(1); tick <= 30; tick++ {
		w.Tick()
		outcomes, err := s.Apply(w, tick)
		require.NoError(t, err)
		for _, o := range outcomes {
			if o.Applied {
				applied++
			}
		}
	}

	assert.Equal(t, 4, applied)
	assert.Equal(t, uint64(30), w.CurrentTick())

	var scheduled int
	for _, ev := range w.Events(0) {
		if ev.Category == "scenario" {
			scheduled++
		}
	}
	assert.Equal(t, 4, scheduled)
}

func TestParse_CustomLayerAndOverrides(t *testing.T) {
	doc := `
name: pipeline
layers:
  - name: Pipeline
    supported: [water]
    capacity: 40
    travel_time: 3
buildings:
  - id: WELL
    type: Generic
    produces: {water: 12}
    priority: 4
  - id: FARM
    type: Generic
    requires: {water: 4}
    efficiency: 0.9
edges:
  - {layer: Pipeline, from: WELL, to: FARM, capacity: 10}
events:
  - {tick: 5, action: recovery, target: WELL, level: 1}
  - {tick: 2, action: attack, target: WELL-FARM, level: 0.7}
`
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, s.Events, 2)
	assert.Equal(t, uint64(2), s.Events[0].Tick, "events are sorted by tick")
	assert.Equal(t, uint64(5), s.LastEventTick())

	w, err := s.Build(engine.DefaultOptions())
	require.NoError(t, err)

	edges := w.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, 10.0, edges[0].Attributes.Capacity)
	assert.Equal(t, 3, edges[0].Attributes.TravelTime)

	well, _ := w.Building("WELL")
	assert.Equal(t, 4, well.Priority)
	farm, _ := w.Building("FARM")
	assert.Equal(t, 0.9, farm.Efficiency)
}

func TestParse_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown resource": `
name: x
buildings:
  - {id: A, type: Generic, resources: {gold: 3}}`,
		"negative stock": `
name: x
buildings:
  - {id: A, type: Generic, resources: {water: -1}}`,
		"unknown kind": `
name: x
buildings:
  - {id: A, type: Castle}`,
		"zero travel time": `
name: x
buildings:
  - {id: A, type: Generic}
edges:
  - {layer: Road Network, from: A, to: A, travel_time: 0}`,
		"level out of range": `
name: x
buildings:
  - {id: A, type: Generic}
events:
  - {tick: 1, action: attack, target: A, level: 2}`,
		"unknown field": `
name: x
colour: blue
buildings:
  - {id: A, type: Generic}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorContains(t, err, "scenario schema")
		})
	}
}

func TestParse_ReferenceErrors(t *testing.T) {
	_, err := Parse([]byte(`
name: x
buildings:
  - {id: A, type: Generic}
  - {id: A, type: Generic}`))
	assert.ErrorIs(t, err, engine.ErrDuplicateBuilding)

	_, err = Parse([]byte(`
name: x
buildings:
  - {id: A, type: Generic}
edges:
  - {layer: Hyperloop, from: A, to: A}`))
	assert.ErrorIs(t, err, engine.ErrUnknownLayer)

	_, err = Parse([]byte(`
name: x
buildings:
  - {id: A, type: Generic}
edges:
  - {layer: Road Network, from: A, to: B}`))
	assert.ErrorIs(t, err, engine.ErrUnknownBuilding)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "city.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: tiny\nbuildings:\n  - {id: A, type: Hospital}\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tiny", s.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSchema_IsValidJSON(t *testing.T) {
	assert.Contains(t, string(Schema()), `"buildings"`)
	_, err := schema()
	assert.NoError(t, err)
}
