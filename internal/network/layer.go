package network

import (
	"github.com/talgya/gridsim/internal/resource"
)

// Standard layer names.
const (
	RoadNetwork    = "Road Network"
	EnergyGrid     = "Energy Grid"
	WaterNetwork   = "Water Network"
	RailwayNetwork = "Railway Network"
	TelecomNetwork = "Telecom Network"
)

// Defaults is the attribute template a layer stamps onto new edges.
type Defaults struct {
	Capacity   float64 `json:"capacity" yaml:"capacity"`
	TravelTime int     `json:"travel_time" yaml:"travel_time"`
	Status     Status  `json:"status" yaml:"status"`
}

// Layer is a named category of transport. Each world owns its own set.
type Layer struct {
	Name      string          `json:"name"`
	Supported []resource.Type `json:"supported_resource_types"`
	Defaults  Defaults        `json:"default_attributes"`
	Edges     []*Edge         `json:"-"`
}

// NewLayer creates a layer with no edges.
func NewLayer(name string, supported []resource.Type, defaults Defaults) *Layer {
	if defaults.Status == "" {
		defaults.Status = StatusActive
	}
	return &Layer{
		Name:      name,
		Supported: append([]resource.Type(nil), supported...),
		Defaults:  defaults,
	}
}

// Supports reports whether t is among the layer's intended resource types.
// It is informational; edges do not enforce it.
func (l *Layer) Supports(t resource.Type) bool {
	for _, s := range l.Supported {
		if s == t {
			return true
		}
	}
	return false
}

// Attributes merges o over the layer defaults and tags the result with the
// layer name.
func (l *Layer) Attributes(o Overrides) Attributes {
	a := Attributes{
		Capacity:   l.Defaults.Capacity,
		TravelTime: l.Defaults.TravelTime,
		Status:     l.Defaults.Status,
		Layer:      l.Name,
	}
	if o.Capacity != nil {
		a.Capacity = *o.Capacity
	}
	if o.TravelTime != nil {
		a.TravelTime = *o.TravelTime
	}
	if o.Status != nil {
		a.Status = *o.Status
	}
	return a
}

// Connect creates an edge from -> to with merged attributes and records it
// on the layer.
func (l *Layer) Connect(id int, from, to string, o Overrides) (*Edge, error) {
	e, err := NewEdge(id, from, to, l.Attributes(o))
	if err != nil {
		return nil, err
	}
	l.Edges = append(l.Edges, e)
	return e, nil
}

// StandardLayers returns fresh instances of the five stock layers.
func StandardLayers() []*Layer {
	return []*Layer{
		NewLayer(RoadNetwork,
			[]resource.Type{resource.Personnel, resource.BasicResources, resource.CriticalResources, resource.HeavyResources},
			Defaults{Capacity: 50, TravelTime: 2}),
		NewLayer(EnergyGrid,
			[]resource.Type{resource.Electricity},
			Defaults{Capacity: 100, TravelTime: 1}),
		NewLayer(WaterNetwork,
			[]resource.Type{resource.Water},
			Defaults{Capacity: 80, TravelTime: 1}),
		NewLayer(RailwayNetwork,
			[]resource.Type{resource.HeavyResources, resource.Personnel},
			Defaults{Capacity: 200, TravelTime: 4}),
		NewLayer(TelecomNetwork,
			[]resource.Type{resource.Data},
			Defaults{Capacity: 1000, TravelTime: 1}),
	}
}

// Clone copies the layer's identity and defaults. The edge list is not
// carried over.
func (l *Layer) Clone() *Layer {
	return NewLayer(l.Name, l.Supported, l.Defaults)
}
