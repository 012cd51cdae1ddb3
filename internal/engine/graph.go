package engine

import (
	"github.com/talgya/gridsim/internal/resource"
)

// NodeView is the read-only projection of a building.
type NodeView struct {
	ID         string          `json:"id"`
	Kind       string          `json:"type"`
	Status     string          `json:"status"`
	Priority   int             `json:"priority"`
	Efficiency float64         `json:"efficiency"`
	Requires   resource.Ledger `json:"requires"`
	Produces   resource.Ledger `json:"produces"`
	Resources  resource.Ledger `json:"resources"`
}

// LinkView is the read-only projection of an edge.
type LinkView struct {
	ID         int             `json:"id"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Layer      string          `json:"layer"`
	Capacity   float64         `json:"capacity"`
	TravelTime int             `json:"travel_time"`
	Status     string          `json:"status"`
	InTransit  resource.Ledger `json:"in_transit"`
}

// GraphView is a directed-graph snapshot for visualization. It shares no
// memory with the world.
type GraphView struct {
	Tick  uint64     `json:"tick"`
	Nodes []NodeView `json:"nodes"`
	Links []LinkView `json:"links"`
}

// Graph projects the current building and edge state.
func (w *World) Graph() GraphView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.graph()
}

func (w *World) graph() GraphView {
	g := GraphView{
		Tick:  w.current,
		Nodes: make([]NodeView, 0, len(w.order)),
		Links: make([]LinkView, 0, len(w.edges)),
	}
	for _, id := range w.order {
		b := w.buildings[id]
		g.Nodes = append(g.Nodes, NodeView{
			ID:         b.ID,
			Kind:       b.Kind.String(),
			Status:     string(b.Status),
			Priority:   b.Priority,
			Efficiency: b.Efficiency,
			Requires:   b.Requires.Clone(),
			Produces:   b.Produces.Clone(),
			Resources:  b.Resources.Clone(),
		})
	}
	for _, e := range w.edges {
		g.Links = append(g.Links, LinkView{
			ID:         e.ID,
			From:       e.From,
			To:         e.To,
			Layer:      e.Attributes.Layer,
			Capacity:   e.Attributes.Capacity,
			TravelTime: e.Attributes.TravelTime,
			Status:     string(e.Attributes.Status),
			InTransit:  e.InTransitTotals(),
		})
	}
	return g
}
