// Package building models the production and consumption facilities of the
// infrastructure network: their requirements, outputs, stock and health.
package building

import (
	"github.com/talgya/gridsim/internal/resource"
)

// Status is the derived operating state of a building.
type Status string

const (
	StatusActive    Status = "active"
	StatusDegraded  Status = "degraded"
	StatusOffline   Status = "offline"
	StatusDestroyed Status = "destroyed"
)

// Statuses lists every status in severity order.
var Statuses = []Status{StatusActive, StatusDegraded, StatusOffline, StatusDestroyed}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// ActiveEfficiency is the efficiency a building must exceed to run at full
// status; at or below it an operational building is degraded.
const ActiveEfficiency = 0.8

// Building is a typed production/consumption node.
type Building struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"type"`
	Requires   resource.Ledger `json:"requires"`   // Consumed per successful tick
	Produces   resource.Ledger `json:"produces"`   // Generated per successful tick
	Priority   int             `json:"priority"`   // Lower runs earlier within a phase
	Status     Status          `json:"status"`
	Efficiency float64         `json:"efficiency"` // [0, 1], scales draw and output
	Resources  resource.Ledger `json:"resources"`  // On-hand stock
}

// New creates an active building at full efficiency carrying the default
// templates of kind. Callers may replace Requires, Produces, Priority and
// Resources before registering it with a world.
func New(id string, kind Kind) *Building {
	t := DefaultTemplate(kind)
	return &Building{
		ID:         id,
		Kind:       kind,
		Requires:   t.Requires,
		Produces:   t.Produces,
		Priority:   t.Priority,
		Status:     StatusActive,
		Efficiency: 1.0,
		Resources:  resource.Ledger{},
	}
}

// IsProducer reports whether the building has any output.
func (b *Building) IsProducer() bool {
	return len(b.Produces) > 0
}

// IsOperational reports whether on-hand stock covers every requirement.
// A building with no requirements is always operational.
func (b *Building) IsOperational() bool {
	return b.Resources.Covers(b.Requires)
}

// UpdateStatus derives the status from stock and efficiency. Destroyed is
// terminal and pins efficiency at zero. Calling it repeatedly without a
// ledger change is a no-op.
func (b *Building) UpdateStatus() {
	if b.Status == StatusDestroyed {
		b.Efficiency = 0
		return
	}
	if !b.IsOperational() {
		b.Status = StatusOffline
		return
	}
	if b.Efficiency > ActiveEfficiency {
		b.Status = StatusActive
	} else {
		b.Status = StatusDegraded
	}
}

// Tick consumes the efficiency-scaled requirements and, on success, credits
// the efficiency-scaled output. It returns false without side effects when
// the building is destroyed or short of any input.
func (b *Building) Tick() bool {
	if b.Status == StatusDestroyed {
		return false
	}

	for t, amount := range b.Requires {
		if b.Resources.Get(t) < amount*b.Efficiency {
			return false
		}
	}
	for t, amount := range b.Requires {
		b.Resources.Take(t, amount*b.Efficiency)
	}
	for t, amount := range b.Produces {
		b.Resources.Add(t, amount*b.Efficiency)
	}
	return true
}

// ReceiveSupplies credits an arriving shipment. Negative amounts are ignored.
func (b *Building) ReceiveSupplies(t resource.Type, amount float64) {
	if amount <= 0 {
		return
	}
	if b.Resources == nil {
		b.Resources = resource.Ledger{}
	}
	b.Resources.Add(t, amount)
}

// Clone returns a deep copy.
func (b *Building) Clone() *Building {
	c := *b
	c.Requires = cloneOrEmpty(b.Requires)
	c.Produces = cloneOrEmpty(b.Produces)
	c.Resources = cloneOrEmpty(b.Resources)
	return &c
}
