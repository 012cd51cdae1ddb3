// Package network models the transport side of the simulation: named
// infrastructure layers and the directed, capacity- and delay-bound edges
// they create between buildings.
package network

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/gridsim/internal/resource"
)

// ErrInvalidAttributes reports edge attributes that violate the transport
// invariants (travel time below one tick, negative capacity, unknown status).
var ErrInvalidAttributes = errors.New("invalid edge attributes")

// Status is the operating state of an edge.
type Status string

const (
	StatusActive    Status = "active"
	StatusDamaged   Status = "damaged"
	StatusDestroyed Status = "destroyed"
)

// ParseStatus validates an edge status name.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusDamaged, StatusDestroyed:
		return Status(s), true
	}
	return "", false
}

// Attributes is the fixed attribute set of an edge.
type Attributes struct {
	Capacity   float64 `json:"capacity"`
	TravelTime int     `json:"travel_time"` // Ticks, >= 1
	Status     Status  `json:"status"`
	Layer      string  `json:"layer"`

	// OriginalCapacity is the undamaged baseline, captured by the first
	// capacity reduction and never overwritten afterwards.
	OriginalCapacity *float64 `json:"original_capacity,omitempty"`
}

// Validate checks the transport invariants.
func (a Attributes) Validate() error {
	if a.TravelTime < 1 {
		return fmt.Errorf("%w: travel_time %d < 1", ErrInvalidAttributes, a.TravelTime)
	}
	if a.Capacity < 0 || math.IsNaN(a.Capacity) {
		return fmt.Errorf("%w: capacity %v", ErrInvalidAttributes, a.Capacity)
	}
	if _, ok := ParseStatus(string(a.Status)); !ok {
		return fmt.Errorf("%w: status %q", ErrInvalidAttributes, a.Status)
	}
	return nil
}

// Overrides are per-edge values merged over a layer's defaults.
type Overrides struct {
	Capacity   *float64 `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	TravelTime *int     `json:"travel_time,omitempty" yaml:"travel_time,omitempty"`
	Status     *Status  `json:"status,omitempty" yaml:"status,omitempty"`
}

// Shipment is one load of cargo on an edge.
type Shipment struct {
	Amount         float64 `json:"amount"`
	TicksRemaining int     `json:"ticks_remaining"`
	// Departed is false for cargo loaded during the current tick; it leaves
	// at the end of that tick without losing a tick of travel.
	Departed bool `json:"departed"`
}

// Receiver accepts delivered cargo.
type Receiver interface {
	ReceiveSupplies(t resource.Type, amount float64)
}

// Edge is a directed transport link between two buildings, referenced by id.
type Edge struct {
	ID         int                          `json:"id"`
	From       string                       `json:"from"`
	To         string                       `json:"to"`
	Attributes Attributes                   `json:"attributes"`
	InTransit  map[resource.Type][]Shipment `json:"in_transit"`
}

// NewEdge creates an edge with validated attributes.
func NewEdge(id int, from, to string, attrs Attributes) (*Edge, error) {
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	return &Edge{
		ID:         id,
		From:       from,
		To:         to,
		Attributes: attrs,
		InTransit:  make(map[resource.Type][]Shipment),
	}, nil
}

// Key returns the "from-to" form used by endpoint-pair targeting.
func (e *Edge) Key() string {
	return e.From + "-" + e.To
}

// EffectiveCapacity is the per-shipment cap: halved while damaged.
func (e *Edge) EffectiveCapacity() float64 {
	c := e.Attributes.Capacity
	if e.Attributes.Status == StatusDamaged {
		c /= 2
	}
	return c
}

// EffectiveTravelTime is the shipment delay: 1.5x (truncated) while damaged.
func (e *Edge) EffectiveTravelTime() int {
	tt := e.Attributes.TravelTime
	if e.Attributes.Status == StatusDamaged {
		tt = int(float64(tt) * 1.5)
	}
	if tt < 1 {
		tt = 1
	}
	return tt
}

// Send loads up to amount of t onto the edge and returns the quantity
// accepted. The caller has already reserved the stock at the source; the
// edge only checks its own state. A destroyed edge, a non-positive amount
// or a zero capacity accept nothing.
func (e *Edge) Send(t resource.Type, amount float64) (float64, bool) {
	if e.Attributes.Status == StatusDestroyed || amount <= 0 {
		return 0, false
	}
	accepted := math.Min(amount, e.EffectiveCapacity())
	if accepted <= 0 {
		return 0, false
	}
	if e.InTransit == nil {
		e.InTransit = make(map[resource.Type][]Shipment)
	}
	e.InTransit[t] = append(e.InTransit[t], Shipment{
		Amount:         accepted,
		TicksRemaining: e.EffectiveTravelTime(),
	})
	return accepted, true
}

// Tick advances every shipment by one time unit and hands arrivals to dst.
// Cargo loaded this tick departs without being decremented. The returned
// ledger holds the quantities delivered. The orchestrator never calls Tick
// on a destroyed edge.
func (e *Edge) Tick(dst Receiver) resource.Ledger {
	arrived := resource.Ledger{}

	for _, t := range resource.All() {
		queue := e.InTransit[t]
		if len(queue) == 0 {
			continue
		}
		kept := queue[:0]
		for _, s := range queue {
			if !s.Departed {
				s.Departed = true
				kept = append(kept, s)
				continue
			}
			s.TicksRemaining--
			if s.TicksRemaining <= 0 {
				arrived[t] += s.Amount
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(e.InTransit, t)
		} else {
			e.InTransit[t] = kept
		}
	}

	if dst != nil {
		for _, t := range arrived.Types() {
			if arrived[t] > 0 {
				dst.ReceiveSupplies(t, arrived[t])
			}
		}
	}
	return arrived
}

// InTransitTotals sums loaded and moving cargo per resource type.
func (e *Edge) InTransitTotals() resource.Ledger {
	out := resource.Ledger{}
	for t, queue := range e.InTransit {
		for _, s := range queue {
			out[t] += s.Amount
		}
	}
	return out
}

// Destroy severs the link. Cargo on board is lost and returned for reporting.
func (e *Edge) Destroy() resource.Ledger {
	lost := e.InTransitTotals()
	e.Attributes.Status = StatusDestroyed
	e.InTransit = make(map[resource.Type][]Shipment)
	return lost
}

// Degrade reduces capacity by severity, truncating toward zero. The
// undamaged baseline is captured on the first reduction only. When mark is
// set the edge is flagged damaged; otherwise its status is left as is.
func (e *Edge) Degrade(severity float64, mark bool) {
	if e.Attributes.OriginalCapacity == nil {
		orig := e.Attributes.Capacity
		e.Attributes.OriginalCapacity = &orig
	}
	e.Attributes.Capacity = truncCapacity(e.Attributes.Capacity * (1 - severity))
	if mark {
		e.Attributes.Status = StatusDamaged
	}
}

// RestoreFull reactivates the edge and restores its baseline capacity.
func (e *Edge) RestoreFull() {
	e.Attributes.Status = StatusActive
	if e.Attributes.OriginalCapacity != nil {
		e.Attributes.Capacity = *e.Attributes.OriginalCapacity
	}
}

// RestorePartial recomputes a damaged edge's capacity as a fraction of its
// baseline. The edge stays damaged. It reports whether capacity changed.
func (e *Edge) RestorePartial(level float64) bool {
	if e.Attributes.Status != StatusDamaged || e.Attributes.OriginalCapacity == nil {
		return false
	}
	e.Attributes.Capacity = truncCapacity(*e.Attributes.OriginalCapacity * level)
	return true
}

func truncCapacity(v float64) float64 {
	v = math.Trunc(v)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// Clone returns a deep copy including in-flight cargo.
func (e *Edge) Clone() *Edge {
	c := *e
	if e.Attributes.OriginalCapacity != nil {
		orig := *e.Attributes.OriginalCapacity
		c.Attributes.OriginalCapacity = &orig
	}
	c.InTransit = make(map[resource.Type][]Shipment, len(e.InTransit))
	for t, queue := range e.InTransit {
		c.InTransit[t] = append([]Shipment(nil), queue...)
	}
	return &c
}
