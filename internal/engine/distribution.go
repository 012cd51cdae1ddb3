package engine

import (
	"log/slog"
	"math"

	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/network"
	"github.com/talgya/gridsim/internal/resource"
)

// distribute pushes a producer's fresh output onto its outgoing edges and
// returns what was loaded.
//
// For each produced type the nominal output (capped by stock, not scaled by
// efficiency) is split
// evenly across every non-destroyed outgoing edge. An edge whose destination
// requires the type carries at most one tick of that requirement. Edges are
// served in edge-list order, so scarce stock favours earlier edges. Whatever
// is not shipped stays on the producer.
func (w *World) distribute(src *building.Building) resource.Ledger {
	shipped := resource.Ledger{}

	var out []*network.Edge
	for _, e := range w.outgoing[src.ID] {
		if e.Attributes.Status != network.StatusDestroyed {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return shipped
	}

	for _, t := range src.Produces.Types() {
		avail := src.Resources.Get(t)
		if avail <= 0 {
			continue
		}
		share := math.Min(avail, src.Produces[t]) / float64(len(out))
		if share <= 0 {
			continue
		}

		for _, e := range out {
			if src.Resources.Get(t) <= 0 {
				break
			}
			amount := share
			if need, ok := w.buildings[e.To].Requires[t]; ok && need < amount {
				amount = need
			}
			if amount <= 0 {
				continue
			}

			reserved := src.Resources.Take(t, amount)
			accepted, ok := e.Send(t, reserved)
			if !ok {
				accepted = 0
			}
			if refund := reserved - accepted; refund > 0 {
				src.Resources.Add(t, refund)
				slog.Debug("edge refused part of shipment",
					"edge", e.Key(), "layer", e.Attributes.Layer,
					"resource", t.String(), "offered", reserved, "accepted", accepted)
			}
			shipped[t] += accepted
		}
	}
	return shipped
}
