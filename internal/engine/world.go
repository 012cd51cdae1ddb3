package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/network"
	"github.com/talgya/gridsim/internal/resource"
)

var (
	ErrUnknownBuilding   = errors.New("unknown building")
	ErrUnknownLayer      = errors.New("unknown infrastructure layer")
	ErrDuplicateBuilding = errors.New("duplicate building id")
	ErrDuplicateLayer    = errors.New("duplicate infrastructure layer")
	ErrInvalidLevel      = errors.New("level must be within [0, 1]")

	// ErrInvalidAttributes is re-exported so callers need not import network.
	ErrInvalidAttributes = network.ErrInvalidAttributes
)

// Options tune the observability buffers a World keeps.
type Options struct {
	HistoryLimit  int    // Summaries kept in memory; 0 keeps none
	SnapshotEvery uint64 // Capture a graph snapshot every N ticks; 0 disables
	SnapshotLimit int    // Snapshots kept in memory
	EventLimit    int    // Events kept in memory
}

// DefaultOptions returns the buffer sizes used by the commands.
func DefaultOptions() Options {
	return Options{
		HistoryLimit:  1000,
		SnapshotEvery: 0,
		SnapshotLimit: 100,
		EventLimit:    1000,
	}
}

// World owns every building, edge and layer, and runs the tick, distribution
// and attack/recovery algorithms over them. All exported methods are safe
// for concurrent use; each one holds the world lock for its duration.
type World struct {
	mu sync.Mutex

	RunID string

	buildings map[string]*building.Building
	order     []string // Insertion order of building ids
	edges     []*network.Edge
	outgoing  map[string][]*network.Edge // Source id -> edges, in edge-list order
	layers    map[string]*network.Layer
	layerList []string
	nextEdge  int

	current uint64
	last    TickReport

	opts      Options
	eventSeq  uint64
	events    []Event
	history   []Summary
	snapshots []GraphView
}

// NewWorld creates an empty world with the standard layers registered.
func NewWorld(opts Options) *World {
	w := newBareWorld(opts)
	for _, l := range network.StandardLayers() {
		w.layers[l.Name] = l
		w.layerList = append(w.layerList, l.Name)
	}
	return w
}

func newBareWorld(opts Options) *World {
	return &World{
		RunID:     uuid.NewString(),
		buildings: make(map[string]*building.Building),
		outgoing:  make(map[string][]*network.Edge),
		layers:    make(map[string]*network.Layer),
		opts:      opts,
	}
}

// AddBuilding registers b by id and returns it.
func (w *World) AddBuilding(b *building.Building) (*building.Building, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addBuilding(b)
}

func (w *World) addBuilding(b *building.Building) (*building.Building, error) {
	if b == nil || b.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrUnknownBuilding)
	}
	if _, ok := w.buildings[b.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBuilding, b.ID)
	}
	if b.Resources == nil {
		b.Resources = resource.Ledger{}
	}
	if b.Requires == nil {
		b.Requires = resource.Ledger{}
	}
	if b.Produces == nil {
		b.Produces = resource.Ledger{}
	}
	if err := checkBuilding(b); err != nil {
		return nil, err
	}
	w.buildings[b.ID] = b
	w.order = append(w.order, b.ID)
	return b, nil
}

// checkBuilding rejects efficiencies outside [0, 1] and negative or unknown
// ledger entries.
func checkBuilding(b *building.Building) error {
	if math.IsNaN(b.Efficiency) || b.Efficiency < 0 || b.Efficiency > 1 {
		return fmt.Errorf("%w: building %s efficiency %v", ErrInvalidAttributes, b.ID, b.Efficiency)
	}
	ledgers := []struct {
		name string
		l    resource.Ledger
	}{
		{"requires", b.Requires},
		{"produces", b.Produces},
		{"resources", b.Resources},
	}
	for _, lg := range ledgers {
		for t, v := range lg.l {
			if !t.Valid() || math.IsNaN(v) || v < 0 {
				return fmt.Errorf("%w: building %s %s %s = %v", ErrInvalidAttributes, b.ID, lg.name, t, v)
			}
		}
	}
	return nil
}

// RegisterLayer adds a custom layer. Names are unique per world.
func (w *World) RegisterLayer(l *network.Layer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.layers[l.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateLayer, l.Name)
	}
	w.layers[l.Name] = l
	w.layerList = append(w.layerList, l.Name)
	return nil
}

// ConnectBuildings creates a directed edge on the named layer. Overrides are
// merged over the layer defaults. Both endpoints must already be registered.
func (w *World) ConnectBuildings(layerName, fromID, toID string, o network.Overrides) (*network.Edge, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.layers[layerName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, layerName)
	}
	if _, ok := w.buildings[fromID]; !ok {
		return nil, fmt.Errorf("connect %s -> %s: %w: %s", fromID, toID, ErrUnknownBuilding, fromID)
	}
	if _, ok := w.buildings[toID]; !ok {
		return nil, fmt.Errorf("connect %s -> %s: %w: %s", fromID, toID, ErrUnknownBuilding, toID)
	}

	e, err := l.Connect(w.nextEdge, fromID, toID, o)
	if err != nil {
		return nil, fmt.Errorf("connect %s -> %s on %s: %w", fromID, toID, layerName, err)
	}
	w.nextEdge++
	w.appendEdge(e)
	return e, nil
}

func (w *World) appendEdge(e *network.Edge) {
	w.edges = append(w.edges, e)
	w.outgoing[e.From] = append(w.outgoing[e.From], e)
}

// CurrentTick returns the number of ticks completed.
func (w *World) CurrentTick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Building returns a copy of the building with the given id.
func (w *World) Building(id string) (*building.Building, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.buildings[id]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// Buildings returns copies of every building in insertion order.
func (w *World) Buildings() []*building.Building {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*building.Building, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.buildings[id].Clone())
	}
	return out
}

// Edges returns copies of every edge in creation order.
func (w *World) Edges() []*network.Edge {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*network.Edge, 0, len(w.edges))
	for _, e := range w.edges {
		out = append(out, e.Clone())
	}
	return out
}

// LayerInfo describes a layer and how many edges it created.
type LayerInfo struct {
	*network.Layer
	EdgeCount int `json:"edge_count"`
}

// Layers returns the registered layers in registration order.
func (w *World) Layers() []LayerInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]LayerInfo, 0, len(w.layerList))
	for _, name := range w.layerList {
		l := w.layers[name]
		out = append(out, LayerInfo{Layer: l.Clone(), EdgeCount: len(l.Edges)})
	}
	return out
}

// ── State export / import ──────────────────────────────────────────

// State is a detached deep copy of everything needed to resume a world.
type State struct {
	RunID     string
	Tick      uint64
	EventSeq  uint64
	Buildings []*building.Building
	Layers    []*network.Layer // Edge lists are empty; edges carry their layer name
	Edges     []*network.Edge
}

// State exports the world.
func (w *World) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := State{RunID: w.RunID, Tick: w.current, EventSeq: w.eventSeq}
	for _, id := range w.order {
		st.Buildings = append(st.Buildings, w.buildings[id].Clone())
	}
	for _, name := range w.layerList {
		st.Layers = append(st.Layers, w.layers[name].Clone())
	}
	for _, e := range w.edges {
		st.Edges = append(st.Edges, e.Clone())
	}
	return st
}

// FromState rebuilds a world from an exported state. Edges keep their ids,
// attributes and in-flight cargo. Layers missing from the state are filled
// from the standard set.
func FromState(st State, opts Options) (*World, error) {
	w := newBareWorld(opts)
	if st.RunID != "" {
		w.RunID = st.RunID
	}
	w.current = st.Tick
	w.eventSeq = st.EventSeq

	for _, l := range st.Layers {
		if _, ok := w.layers[l.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLayer, l.Name)
		}
		w.layers[l.Name] = l.Clone()
		w.layerList = append(w.layerList, l.Name)
	}
	for _, l := range network.StandardLayers() {
		if _, ok := w.layers[l.Name]; !ok {
			w.layers[l.Name] = l
			w.layerList = append(w.layerList, l.Name)
		}
	}

	for _, b := range st.Buildings {
		if _, err := w.addBuilding(b.Clone()); err != nil {
			return nil, err
		}
	}

	for _, src := range st.Edges {
		l, ok := w.layers[src.Attributes.Layer]
		if !ok {
			return nil, fmt.Errorf("edge %d: %w: %q", src.ID, ErrUnknownLayer, src.Attributes.Layer)
		}
		if _, ok := w.buildings[src.From]; !ok {
			return nil, fmt.Errorf("edge %d: %w: %s", src.ID, ErrUnknownBuilding, src.From)
		}
		if _, ok := w.buildings[src.To]; !ok {
			return nil, fmt.Errorf("edge %d: %w: %s", src.ID, ErrUnknownBuilding, src.To)
		}
		if err := src.Attributes.Validate(); err != nil {
			return nil, fmt.Errorf("edge %d: %w", src.ID, err)
		}
		e := src.Clone()
		l.Edges = append(l.Edges, e)
		w.appendEdge(e)
		if e.ID >= w.nextEdge {
			w.nextEdge = e.ID + 1
		}
	}
	return w, nil
}
