// Package scenario loads world definitions from YAML. A scenario lists
// buildings, optional custom layers, edges, and attack/recovery events
// scheduled by tick.
package scenario

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/gridsim/internal/building"
	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/network"
	"github.com/talgya/gridsim/internal/resource"
)

//go:embed scenario.schema.json
var schemaJSON []byte

//go:embed default.yaml
var defaultYAML []byte

const schemaURL = "scenario.schema.json"

// Scenario is a world definition.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Layers      []LayerSpec    `yaml:"layers,omitempty"`
	Buildings   []BuildingSpec `yaml:"buildings"`
	Edges       []EdgeSpec     `yaml:"edges,omitempty"`
	Events      []EventSpec    `yaml:"events,omitempty"`
}

// LayerSpec declares a custom infrastructure layer.
type LayerSpec struct {
	Name       string         `yaml:"name"`
	Supported  []string       `yaml:"supported,omitempty"`
	Capacity   float64        `yaml:"capacity"`
	TravelTime int            `yaml:"travel_time"`
	Status     network.Status `yaml:"status,omitempty"`
}

// BuildingSpec declares a building. Omitted requires/produces/priority fall
// back to the kind's template; an explicit empty map clears it.
type BuildingSpec struct {
	ID         string             `yaml:"id"`
	Type       string             `yaml:"type"`
	Priority   *int               `yaml:"priority,omitempty"`
	Efficiency *float64           `yaml:"efficiency,omitempty"`
	Requires   map[string]float64 `yaml:"requires,omitempty"`
	Produces   map[string]float64 `yaml:"produces,omitempty"`
	Resources  map[string]float64 `yaml:"resources,omitempty"`
}

// EdgeSpec declares a directed edge on a layer.
type EdgeSpec struct {
	Layer             string `yaml:"layer"`
	From              string `yaml:"from"`
	To                string `yaml:"to"`
	network.Overrides `yaml:",inline"`
}

// EventSpec schedules a command after the given tick completes. Tick 0
// runs before the first tick.
type EventSpec struct {
	Tick   uint64             `yaml:"tick"`
	Action engine.CommandKind `yaml:"action"`
	Target string             `yaml:"target"`
	Level  float64            `yaml:"level"`
}

var (
	schemaOnce sync.Once
	compiled   *jsonschema.Schema
	compileErr error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// Schema returns the embedded JSON Schema document.
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Default returns the built-in scenario.
func Default() *Scenario {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded scenario is invalid: %v", err))
	}
	return s
}

// Parse decodes YAML, checks it against the schema, then checks references.
func Parse(data []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("scenario yaml: %w", err)
	}
	// Round-trip through JSON so the validator sees plain JSON values.
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("scenario yaml: %w", err)
	}
	var v any
	if err := json.Unmarshal(asJSON, &v); err != nil {
		return nil, fmt.Errorf("scenario yaml: %w", err)
	}

	sch, err := schema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(v); err != nil {
		return nil, fmt.Errorf("scenario schema: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("scenario yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	sort.SliceStable(s.Events, func(i, j int) bool { return s.Events[i].Tick < s.Events[j].Tick })
	return &s, nil
}

// Validate checks what the schema cannot: unique ids and references.
func (s *Scenario) Validate() error {
	layers := map[string]bool{}
	for _, l := range network.StandardLayers() {
		layers[l.Name] = true
	}
	for _, l := range s.Layers {
		if layers[l.Name] {
			return fmt.Errorf("layer %q: %w", l.Name, engine.ErrDuplicateLayer)
		}
		layers[l.Name] = true
	}

	ids := map[string]bool{}
	for _, b := range s.Buildings {
		if ids[b.ID] {
			return fmt.Errorf("building %q: %w", b.ID, engine.ErrDuplicateBuilding)
		}
		ids[b.ID] = true
	}

	for i, e := range s.Edges {
		if !layers[e.Layer] {
			return fmt.Errorf("edge %d (%s -> %s): %w: %q", i, e.From, e.To, engine.ErrUnknownLayer, e.Layer)
		}
		for _, id := range []string{e.From, e.To} {
			if !ids[id] {
				return fmt.Errorf("edge %d (%s -> %s): %w: %s", i, e.From, e.To, engine.ErrUnknownBuilding, id)
			}
		}
	}

	for i, ev := range s.Events {
		if ev.Action != engine.CommandAttack && ev.Action != engine.CommandRecovery {
			return fmt.Errorf("event %d: unknown action %q", i, ev.Action)
		}
	}
	return nil
}

// Build constructs a world from the scenario.
func (s *Scenario) Build(opts engine.Options) (*engine.World, error) {
	w := engine.NewWorld(opts)

	for _, ls := range s.Layers {
		supported := make([]resource.Type, 0, len(ls.Supported))
		for _, name := range ls.Supported {
			t, ok := resource.Parse(name)
			if !ok {
				return nil, fmt.Errorf("layer %q: unknown resource type %q", ls.Name, name)
			}
			supported = append(supported, t)
		}
		l := network.NewLayer(ls.Name, supported, network.Defaults{
			Capacity:   ls.Capacity,
			TravelTime: ls.TravelTime,
			Status:     ls.Status,
		})
		if err := w.RegisterLayer(l); err != nil {
			return nil, err
		}
	}

	for _, bs := range s.Buildings {
		b, err := bs.building()
		if err != nil {
			return nil, err
		}
		if _, err := w.AddBuilding(b); err != nil {
			return nil, err
		}
	}

	for _, es := range s.Edges {
		if _, err := w.ConnectBuildings(es.Layer, es.From, es.To, es.Overrides); err != nil {
			return nil, err
		}
	}

	slog.Info("scenario built",
		"name", s.Name,
		"buildings", len(s.Buildings),
		"edges", len(s.Edges),
		"events", len(s.Events),
		"run_id", w.RunID,
	)
	return w, nil
}

func (bs BuildingSpec) building() (*building.Building, error) {
	kind, ok := building.ParseKind(bs.Type)
	if !ok {
		return nil, fmt.Errorf("building %q: unknown type %q", bs.ID, bs.Type)
	}
	b := building.New(bs.ID, kind)

	var err error
	if bs.Requires != nil {
		if b.Requires, err = resource.FromNames(bs.Requires); err != nil {
			return nil, fmt.Errorf("building %q requires: %w", bs.ID, err)
		}
	}
	if bs.Produces != nil {
		if b.Produces, err = resource.FromNames(bs.Produces); err != nil {
			return nil, fmt.Errorf("building %q produces: %w", bs.ID, err)
		}
	}
	if bs.Resources != nil {
		if b.Resources, err = resource.FromNames(bs.Resources); err != nil {
			return nil, fmt.Errorf("building %q resources: %w", bs.ID, err)
		}
	}
	if bs.Priority != nil {
		b.Priority = *bs.Priority
	}
	if bs.Efficiency != nil {
		b.Efficiency = *bs.Efficiency
	}
	return b, nil
}

// Due returns the events scheduled for tick, in file order.
func (s *Scenario) Due(tick uint64) []EventSpec {
	var out []EventSpec
	for _, ev := range s.Events {
		if ev.Tick == tick {
			out = append(out, ev)
		}
	}
	return out
}

// Apply executes the events scheduled for tick against w.
func (s *Scenario) Apply(w *engine.World, tick uint64) ([]engine.Outcome, error) {
	var outcomes []engine.Outcome
	for _, ev := range s.Due(tick) {
		var (
			o   engine.Outcome
			err error
		)
		switch ev.Action {
		case engine.CommandAttack:
			o, err = w.ExecuteAttack(ev.Target, ev.Level)
		case engine.CommandRecovery:
			o, err = w.ExecuteRecovery(ev.Target, ev.Level)
		default:
			err = fmt.Errorf("unknown action %q", ev.Action)
		}
		if err != nil {
			return outcomes, fmt.Errorf("scenario event at tick %d on %q: %w", ev.Tick, ev.Target, err)
		}
		w.EmitEvent(engine.Event{
			Tick:        tick,
			Description: fmt.Sprintf("scheduled %s on %s at %.2f", ev.Action, ev.Target, ev.Level),
			Category:    "scenario",
			Meta: map[string]any{
				"scenario": s.Name,
				"action":   string(ev.Action),
				"target":   ev.Target,
				"applied":  o.Applied,
			},
		})
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// LastEventTick returns the tick of the final scheduled event, or 0.
func (s *Scenario) LastEventTick() uint64 {
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[len(s.Events)-1].Tick
}
