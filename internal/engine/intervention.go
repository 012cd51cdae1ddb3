package engine

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/network"
)

// Severity and repair bands. Comparisons are strict.
const (
	DestroyThreshold = 0.8 // severity above: destroyed
	DisableThreshold = 0.5 // severity above: offline building / damaged edge
	RepairThreshold  = 0.8 // repair level above: full restore

	disabledEfficiency = 0.2
)

// CommandKind distinguishes attacks from recoveries.
type CommandKind string

const (
	CommandAttack   CommandKind = "attack"
	CommandRecovery CommandKind = "recovery"
)

// EntityResult reports what one command did to one matched entity.
type EntityResult struct {
	Kind    string `json:"kind"` // "building" or "edge"
	ID      string `json:"id"`   // Building id or "from-to"
	Layer   string `json:"layer,omitempty"`
	Applied bool   `json:"applied"`
	Before  string `json:"before"`
	After   string `json:"after"`
	Note    string `json:"note,omitempty"`
}

// Outcome is the result of ExecuteAttack or ExecuteRecovery. Applied is true
// when at least one matched entity was mutated.
type Outcome struct {
	Target   string         `json:"target"`
	Kind     CommandKind    `json:"kind"`
	Level    float64        `json:"level"`
	Tick     uint64         `json:"tick"`
	Entities []EntityResult `json:"entities"`
	Applied  bool           `json:"applied"`
}

// Matched reports whether the target resolved to any entity.
func (o Outcome) Matched() bool { return len(o.Entities) > 0 }

func validLevel(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidLevel, v)
	}
	return nil
}

// resolve finds the building and edges a command target names: a building
// id, any edge whose layer, source or destination equals the target, and,
// for targets with a single '-', edges with that exact from-to pair. Edges
// are returned once each, in edge-list order.
func (w *World) resolve(target string) (*building.Building, []*network.Edge) {
	b := w.buildings[target]

	var from, to string
	pair := strings.Count(target, "-") == 1
	if pair {
		from, to, _ = strings.Cut(target, "-")
	}

	var edges []*network.Edge
	for _, e := range w.edges {
		switch {
		case e.Attributes.Layer == target, e.From == target, e.To == target:
			edges = append(edges, e)
		case pair && e.From == from && e.To == to:
			edges = append(edges, e)
		}
	}
	return b, edges
}

// ExecuteAttack damages every entity target resolves to. Building and edge
// rules apply independently in the same call. An unmatched target is not an
// error; the outcome simply reports nothing applied.
func (w *World) ExecuteAttack(target string, severity float64) (Outcome, error) {
	if err := validLevel(severity); err != nil {
		return Outcome{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	out := Outcome{Target: target, Kind: CommandAttack, Level: severity, Tick: w.current}
	b, edges := w.resolve(target)
	if b != nil {
		out.add(w.attackBuilding(b, severity))
	}
	for _, e := range edges {
		out.add(w.attackEdge(e, severity))
	}
	w.finish(out)
	return out, nil
}

// ExecuteRecovery repairs every entity target resolves to. Destroyed
// entities are reported as not recovered and skipped.
func (w *World) ExecuteRecovery(target string, level float64) (Outcome, error) {
	if err := validLevel(level); err != nil {
		return Outcome{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	out := Outcome{Target: target, Kind: CommandRecovery, Level: level, Tick: w.current}
	b, edges := w.resolve(target)
	if b != nil {
		out.add(w.recoverBuilding(b, level))
	}
	for _, e := range edges {
		out.add(w.recoverEdge(e, level))
	}
	w.finish(out)
	return out, nil
}

func (o *Outcome) add(r EntityResult) {
	o.Entities = append(o.Entities, r)
	if r.Applied {
		o.Applied = true
	}
}

func (w *World) attackBuilding(b *building.Building, severity float64) EntityResult {
	r := EntityResult{Kind: "building", ID: b.ID, Before: string(b.Status)}
	if b.Status == building.StatusDestroyed {
		r.After, r.Note = r.Before, "already destroyed"
		return r
	}

	switch {
	case severity > DestroyThreshold:
		b.Status = building.StatusDestroyed
		b.Efficiency = 0
	case severity > DisableThreshold:
		b.Status = building.StatusOffline
		b.Efficiency = disabledEfficiency
	default:
		b.Status = building.StatusDegraded
		b.Efficiency = 1 - severity
		b.Resources.Scale(1 - severity)
	}
	r.Applied = true
	r.After = string(b.Status)
	return r
}

func (w *World) attackEdge(e *network.Edge, severity float64) EntityResult {
	r := EntityResult{Kind: "edge", ID: e.Key(), Layer: e.Attributes.Layer, Before: string(e.Attributes.Status)}
	if e.Attributes.Status == network.StatusDestroyed {
		r.After, r.Note = r.Before, "already destroyed"
		return r
	}

	switch {
	case severity > DestroyThreshold:
		if lost := e.Destroy(); lost.Total() > 0 {
			r.Note = fmt.Sprintf("%.2f units in transit lost", lost.Total())
		}
	case severity > DisableThreshold:
		e.Degrade(severity, true)
	default:
		e.Degrade(severity, false)
	}
	r.Applied = true
	r.After = string(e.Attributes.Status)
	return r
}

func (w *World) recoverBuilding(b *building.Building, level float64) EntityResult {
	r := EntityResult{Kind: "building", ID: b.ID, Before: string(b.Status)}
	if b.Status == building.StatusDestroyed {
		r.After, r.Note = r.Before, "destroyed entities cannot be recovered"
		return r
	}

	if level > RepairThreshold {
		b.Status = building.StatusActive
		b.Efficiency = 1.0
	} else {
		b.Status = building.StatusDegraded
		b.Efficiency = level
	}
	r.Applied = true
	r.After = string(b.Status)
	return r
}

func (w *World) recoverEdge(e *network.Edge, level float64) EntityResult {
	r := EntityResult{Kind: "edge", ID: e.Key(), Layer: e.Attributes.Layer, Before: string(e.Attributes.Status)}
	if e.Attributes.Status == network.StatusDestroyed {
		r.After, r.Note = r.Before, "destroyed entities cannot be recovered"
		return r
	}

	if level > RepairThreshold {
		e.RestoreFull()
		r.Applied = true
	} else {
		r.Applied = e.RestorePartial(level)
		if !r.Applied {
			r.Note = "not damaged"
		}
	}
	r.After = string(e.Attributes.Status)
	return r
}

// finish logs the command and records one event per mutated entity.
func (w *World) finish(o Outcome) {
	if !o.Matched() {
		slog.Warn("command target not found", "kind", o.Kind, "target", o.Target)
		return
	}
	for _, r := range o.Entities {
		if !r.Applied {
			slog.Info("command skipped entity", "kind", o.Kind, "entity", r.ID, "note", r.Note)
			continue
		}
		w.emit(Event{
			Tick:        w.current,
			Description: fmt.Sprintf("%s on %s %s at %.2f: %s -> %s", o.Kind, r.Kind, r.ID, o.Level, r.Before, r.After),
			Category:    string(o.Kind),
			Meta: map[string]any{
				"target": o.Target,
				"entity": r.ID,
				"kind":   r.Kind,
				"level":  o.Level,
				"before": r.Before,
				"after":  r.After,
			},
		})
	}
	slog.Info(string(o.Kind)+" executed",
		"target", o.Target,
		"level", o.Level,
		"matched", len(o.Entities),
		"applied", o.Applied,
		"tick", o.Tick,
	)
}
