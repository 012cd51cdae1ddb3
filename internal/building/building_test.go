package building

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridsim/internal/resource"
)

func TestNew_AppliesKindTemplate(t *testing.T) {
	b := New("POWER_001", KindPowerPlant)

	assert.Equal(t, 5.0, b.Requires.Get(resource.Water))
	assert.Equal(t, 20.0, b.Produces.Get(resource.Electricity))
	assert.Equal(t, 2, b.Priority)
	assert.Equal(t, StatusActive, b.Status)
	assert.Equal(t, 1.0, b.Efficiency)
	assert.True(t, b.IsProducer())

	h := New("HOSP_001", KindHospital)
	assert.False(t, h.IsProducer())

	// Templates are copied, not shared.
	b.Requires[resource.Water] = 99
	assert.Equal(t, 5.0, New("POWER_002", KindPowerPlant).Requires.Get(resource.Water))
}

func TestFactoryTemplate_RequiresElectricity(t *testing.T) {
	f := New("FACT_001", KindFactory)
	assert.Equal(t, 12.0, f.Requires.Get(resource.Electricity))
}

func TestIsOperational(t *testing.T) {
	b := New("MAG_001", KindMagazine)
	assert.False(t, b.IsOperational())

	b.Resources[resource.Electricity] = 3
	assert.True(t, b.IsOperational())

	g := New("GEN_001", KindGeneric)
	assert.True(t, g.IsOperational(), "empty requirements are always met")
}

func TestUpdateStatus_IsIdempotentForEveryStatus(t *testing.T) {
	cases := []struct {
		name       string
		efficiency float64
		stock      float64
		status     Status
		want       Status
	}{
		{"active", 1.0, 10, StatusActive, StatusActive},
		{"degraded", 0.8, 10, StatusActive, StatusDegraded},
		{"offline", 1.0, 0, StatusActive, StatusOffline},
		{"destroyed", 0.9, 10, StatusDestroyed, StatusDestroyed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New("B", KindMagazine)
			b.Efficiency = tc.efficiency
			b.Status = tc.status
			b.Resources[resource.Electricity] = tc.stock

			b.UpdateStatus()
			first, firstEff := b.Status, b.Efficiency
			b.UpdateStatus()

			assert.Equal(t, tc.want, first)
			assert.Equal(t, first, b.Status)
			assert.Equal(t, firstEff, b.Efficiency)
		})
	}
}

func TestUpdateStatus_DestroyedPinsEfficiency(t *testing.T) {
	b := New("B", KindGeneric)
	b.Status = StatusDestroyed
	b.Efficiency = 0.7

	b.UpdateStatus()

	assert.Equal(t, StatusDestroyed, b.Status)
	assert.Equal(t, 0.0, b.Efficiency)
}

func TestTick_ConsumesAndProducesScaledByEfficiency(t *testing.T) {
	b := New("P", KindPowerPlant)
	b.Resources[resource.Water] = 30
	b.Efficiency = 0.9

	require.True(t, b.Tick())

	assert.InDelta(t, 30-4.5, b.Resources.Get(resource.Water), 1e-9)
	assert.InDelta(t, 18.0, b.Resources.Get(resource.Electricity), 1e-9)
}

func TestTick_FailureHasNoSideEffects(t *testing.T) {
	b := New("H", KindHospital)
	b.Resources[resource.Electricity] = 10
	b.Resources[resource.Water] = 1 // short

	assert.False(t, b.Tick())
	assert.Equal(t, 10.0, b.Resources.Get(resource.Electricity))
	assert.Equal(t, 1.0, b.Resources.Get(resource.Water))
}

func TestTick_DestroyedAlwaysFails(t *testing.T) {
	b := New("P", KindPowerPlant)
	b.Resources[resource.Water] = 1000
	b.Status = StatusDestroyed

	for i := 0; i < 3; i++ {
		assert.False(t, b.Tick())
	}
	assert.Equal(t, 1000.0, b.Resources.Get(resource.Water))
}

func TestReceiveSupplies(t *testing.T) {
	b := &Building{ID: "X"}

	b.ReceiveSupplies(resource.Data, 4)
	b.ReceiveSupplies(resource.Data, -10)

	assert.Equal(t, 4.0, b.Resources.Get(resource.Data))
}

func TestParseKindAndStatus(t *testing.T) {
	k, ok := ParseKind("EmergencyCenter")
	require.True(t, ok)
	assert.Equal(t, KindEmergencyCenter, k)

	_, ok = ParseKind("Castle")
	assert.False(t, ok)

	s, ok := ParseStatus("degraded")
	require.True(t, ok)
	assert.Equal(t, StatusDegraded, s)
}
