// Simulation: the per-tick phase sequence and the observability buffers it
// feeds.
package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/network"
	"github.com/talgya/gridsim/internal/resource"
)

// Event is a notable occurrence in the world.
type Event struct {
	Seq         uint64         `json:"seq"` // Monotonic per world, survives save/load
	Tick        uint64         `json:"tick"`
	Description string         `json:"description"`
	Category    string         `json:"category"` // "attack", "recovery", "status", "scenario", "campaign"
	Meta        map[string]any `json:"meta,omitempty"`
}

// TickReport counts what happened during the most recent tick.
type TickReport struct {
	ConsumersRun    int             `json:"consumers_run"`
	ConsumersFailed int             `json:"consumers_failed"`
	ProducersRun    int             `json:"producers_run"`
	ProducersFailed int             `json:"producers_failed"`
	Shipped         resource.Ledger `json:"shipped"`
	Delivered       resource.Ledger `json:"delivered"`
}

// Tick advances the world by one step and returns the new tick number.
//
// Phases run in a fixed order: status refresh, consumers, producers (each
// distributing its output immediately), then edge advance. Cargo sent in this
// tick departs during this tick's edge advance and cannot be consumed before
// travel_time further ticks have elapsed.
func (w *World) Tick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick()
}

// Run advances n ticks and returns the summary taken after each one.
func (w *World) Run(n int) []Summary {
	out := make([]Summary, 0, n)
	for i := 0; i < n; i++ {
		w.mu.Lock()
		w.tick()
		out = append(out, w.summary())
		w.mu.Unlock()
	}
	return out
}

func (w *World) tick() uint64 {
	w.current++
	report := TickReport{Shipped: resource.Ledger{}, Delivered: resource.Ledger{}}

	w.refreshStatuses()

	consumers, producers := w.phaseQueues()
	for _, b := range consumers {
		report.ConsumersRun++
		if !b.Tick() {
			report.ConsumersFailed++
		}
	}
	for _, b := range producers {
		report.ProducersRun++
		if !b.Tick() {
			report.ProducersFailed++
			continue
		}
		for t, v := range w.distribute(b) {
			report.Shipped[t] += v
		}
	}

	for _, e := range w.edges {
		if e.Attributes.Status == network.StatusDestroyed {
			continue
		}
		dst := w.buildings[e.To]
		for t, v := range e.Tick(dst) {
			report.Delivered[t] += v
		}
	}

	w.last = report
	w.record()

	slog.Debug("tick complete",
		"tick", w.current,
		"consumers", report.ConsumersRun,
		"producers", report.ProducersRun,
		"failed", report.ConsumersFailed+report.ProducersFailed,
		"shipped", report.Shipped.Total(),
		"delivered", report.Delivered.Total(),
	)
	return w.current
}

// refreshStatuses re-derives every building's status and logs transitions.
func (w *World) refreshStatuses() {
	for _, id := range w.order {
		b := w.buildings[id]
		before := b.Status
		b.UpdateStatus()
		if b.Status != before {
			w.emit(Event{
				Tick:        w.current,
				Description: fmt.Sprintf("%s is now %s (was %s)", b.ID, b.Status, before),
				Category:    "status",
				Meta: map[string]any{
					"building": b.ID,
					"from":     string(before),
					"to":       string(b.Status),
				},
			})
		}
	}
}

// phaseQueues selects the active consumers and producers, each sorted by
// priority with insertion order breaking ties.
func (w *World) phaseQueues() (consumers, producers []*building.Building) {
	for _, id := range w.order {
		b := w.buildings[id]
		if b.Status != building.StatusActive {
			continue
		}
		if b.IsProducer() {
			producers = append(producers, b)
		} else {
			consumers = append(consumers, b)
		}
	}
	byPriority := func(q []*building.Building) {
		sort.SliceStable(q, func(i, j int) bool { return q[i].Priority < q[j].Priority })
	}
	byPriority(consumers)
	byPriority(producers)
	return consumers, producers
}

// ── Events ─────────────────────────────────────────────────────────

// EmitEvent appends an event to the bounded in-memory log.
func (w *World) EmitEvent(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit(e)
}

func (w *World) emit(e Event) {
	w.eventSeq++
	e.Seq = w.eventSeq
	if w.opts.EventLimit <= 0 {
		return
	}
	w.events = append(w.events, e)
	if len(w.events) > w.opts.EventLimit {
		w.events = w.events[len(w.events)-w.opts.EventLimit:]
	}
}

// Events returns up to limit of the most recent events, oldest first.
// A non-positive limit returns all retained events.
func (w *World) Events(limit int) []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	start := 0
	if limit > 0 && len(w.events) > limit {
		start = len(w.events) - limit
	}
	return append([]Event(nil), w.events[start:]...)
}

// EventsAfter returns retained events with Seq > seq, oldest first.
func (w *World) EventsAfter(seq uint64) []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Event
	for _, e := range w.events {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// ── History and snapshots ──────────────────────────────────────────

func (w *World) record() {
	if w.opts.HistoryLimit > 0 {
		w.history = append(w.history, w.summary())
		if len(w.history) > w.opts.HistoryLimit {
			w.history = w.history[len(w.history)-w.opts.HistoryLimit:]
		}
	}
	if w.opts.SnapshotEvery > 0 && w.current%w.opts.SnapshotEvery == 0 {
		w.captureSnapshot()
	}
}

func (w *World) captureSnapshot() {
	w.snapshots = append(w.snapshots, w.graph())
	if w.opts.SnapshotLimit > 0 && len(w.snapshots) > w.opts.SnapshotLimit {
		w.snapshots = w.snapshots[len(w.snapshots)-w.opts.SnapshotLimit:]
	}
}

// CaptureSnapshot records the current graph regardless of SnapshotEvery and
// returns it.
func (w *World) CaptureSnapshot() GraphView {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.captureSnapshot()
	return w.snapshots[len(w.snapshots)-1]
}

// History returns the retained per-tick summaries, oldest first.
func (w *World) History() []Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Summary(nil), w.history...)
}

// Snapshots returns the retained graph snapshots, oldest first.
func (w *World) Snapshots() []GraphView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]GraphView(nil), w.snapshots...)
}

// LastReport returns the counters of the most recent tick.
func (w *World) LastReport() TickReport {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
