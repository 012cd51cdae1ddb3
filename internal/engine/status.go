package engine

import (
	"fmt"

	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/network"
	"github.com/talgya/gridsim/internal/resource"
)

// Summary is the aggregate status of a world after a tick.
type Summary struct {
	Tick      uint64          `json:"tick"`
	Buildings string          `json:"buildings"` // "active/total"
	Edges     string          `json:"edges"`     // "active/total"
	Resources resource.Ledger `json:"resources"` // On hand across all buildings, positive types only

	BuildingsActive int             `json:"buildings_active"`
	BuildingsTotal  int             `json:"buildings_total"`
	EdgesActive     int             `json:"edges_active"`
	EdgesTotal      int             `json:"edges_total"`
	BuildingStatus  map[string]int  `json:"building_status"`
	EdgeStatus      map[string]int  `json:"edge_status"`
	InTransit       resource.Ledger `json:"in_transit"`
	Last            TickReport      `json:"last_tick"`
}

// StatusSummary derives the aggregate counters from current state.
func (w *World) StatusSummary() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary()
}

func (w *World) summary() Summary {
	s := Summary{
		Tick:           w.current,
		Resources:      resource.Ledger{},
		BuildingStatus: make(map[string]int, len(building.Statuses)),
		EdgeStatus:     make(map[string]int, 3),
		InTransit:      resource.Ledger{},
		Last:           w.last,
	}

	totals := resource.Ledger{}
	for _, id := range w.order {
		b := w.buildings[id]
		s.BuildingsTotal++
		s.BuildingStatus[string(b.Status)]++
		if b.Status == building.StatusActive {
			s.BuildingsActive++
		}
		for t, v := range b.Resources {
			totals[t] += v
		}
	}
	for _, t := range totals.Positive() {
		s.Resources[t] = totals[t]
	}

	for _, e := range w.edges {
		s.EdgesTotal++
		s.EdgeStatus[string(e.Attributes.Status)]++
		if e.Attributes.Status == network.StatusActive {
			s.EdgesActive++
		}
		for t, v := range e.InTransitTotals() {
			s.InTransit[t] += v
		}
	}

	s.Buildings = fmt.Sprintf("%d/%d", s.BuildingsActive, s.BuildingsTotal)
	s.Edges = fmt.Sprintf("%d/%d", s.EdgesActive, s.EdgesTotal)
	return s
}
