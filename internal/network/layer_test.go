package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridsim/internal/resource"
)

func TestStandardLayers(t *testing.T) {
	layers := StandardLayers()
	require.Len(t, layers, 5)

	byName := map[string]*Layer{}
	for _, l := range layers {
		byName[l.Name] = l
	}

	road := byName[RoadNetwork]
	require.NotNil(t, road)
	assert.Equal(t, 50.0, road.Defaults.Capacity)
	assert.Equal(t, 2, road.Defaults.TravelTime)
	assert.Equal(t, StatusActive, road.Defaults.Status)
	assert.True(t, road.Supports(resource.Personnel))
	assert.False(t, road.Supports(resource.Electricity))

	assert.Equal(t, 1000.0, byName[TelecomNetwork].Defaults.Capacity)
	assert.Equal(t, 4, byName[RailwayNetwork].Defaults.TravelTime)

	// Every call yields independent instances.
	layers[0].Defaults.Capacity = 1
	assert.Equal(t, 50.0, StandardLayers()[0].Defaults.Capacity)
}

func TestConnect_MergesOverridesAndTagsLayer(t *testing.T) {
	grid := NewLayer(EnergyGrid, []resource.Type{resource.Electricity}, Defaults{Capacity: 100, TravelTime: 1})
	travel := 3

	e, err := grid.Connect(7, "POWER_001", "MAG_001", Overrides{TravelTime: &travel})

	require.NoError(t, err)
	assert.Equal(t, 7, e.ID)
	assert.Equal(t, 100.0, e.Attributes.Capacity)
	assert.Equal(t, 3, e.Attributes.TravelTime)
	assert.Equal(t, EnergyGrid, e.Attributes.Layer)
	assert.Equal(t, "POWER_001-MAG_001", e.Key())
	assert.Equal(t, []*Edge{e}, grid.Edges)
}

func TestConnect_RejectsBadOverride(t *testing.T) {
	grid := NewLayer(EnergyGrid, nil, Defaults{Capacity: 100, TravelTime: 1})
	zero := 0

	_, err := grid.Connect(1, "A", "B", Overrides{TravelTime: &zero})

	assert.ErrorIs(t, err, ErrInvalidAttributes)
	assert.Empty(t, grid.Edges)
}
