// Package resource defines the closed set of resource types carried by the
// infrastructure network and the per-entity ledger that tracks them.
package resource

import (
	"fmt"
	"sort"
)

// Type enumerates the resources buildings consume, produce and ship.
// New types require a code change; there is no runtime registration.
type Type uint8

const (
	Electricity       Type = iota // Energy Grid
	Water                         // Water Network
	BasicResources                // Food, consumables
	CriticalResources             // Medical stock, spares
	HeavyResources                // Industrial output
	Personnel                     // Crews and staff
	Data                          // Telecom traffic
	NumTypes
)

var typeNames = [NumTypes]string{
	"electricity",
	"water",
	"basic_resources",
	"critical_resources",
	"heavy_resources",
	"personnel",
	"data",
}

// All returns every resource type in declaration order.
func All() []Type {
	out := make([]Type, NumTypes)
	for i := range out {
		out[i] = Type(i)
	}
	return out
}

// String returns the wire name of the type (e.g. "basic_resources").
func (t Type) String() string {
	if t < NumTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("resource(%d)", uint8(t))
}

// Valid reports whether t is one of the enumerated types.
func (t Type) Valid() bool { return t < NumTypes }

// Parse maps a wire name to its Type.
func Parse(name string) (Type, bool) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), true
		}
	}
	return 0, false
}

// MarshalText lets Type serve as a JSON object key and value.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown resource type %d", uint8(t))
	}
	return []byte(typeNames[t]), nil
}

// UnmarshalText parses a wire name.
func (t *Type) UnmarshalText(b []byte) error {
	v, ok := Parse(string(b))
	if !ok {
		return fmt.Errorf("unknown resource type %q", string(b))
	}
	*t = v
	return nil
}

// Ledger maps resource type to quantity. An absent key means zero.
type Ledger map[Type]float64

// Get returns the quantity of t, zero when absent.
func (l Ledger) Get(t Type) float64 {
	return l[t]
}

// Add credits amount to t and returns the new quantity. The stored quantity
// never drops below zero.
func (l Ledger) Add(t Type, amount float64) float64 {
	v := l[t] + amount
	if v < 0 {
		v = 0
	}
	l[t] = v
	return v
}

// Take removes up to amount of t and returns what was actually removed.
func (l Ledger) Take(t Type, amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	have := l[t]
	if amount > have {
		amount = have
	}
	l[t] = have - amount
	return amount
}

// Covers reports whether every requirement in need is satisfied by l.
func (l Ledger) Covers(need Ledger) bool {
	for t, amount := range need {
		if l[t] < amount {
			return false
		}
	}
	return true
}

// Scale multiplies every quantity by factor (clamped to >= 0).
func (l Ledger) Scale(factor float64) {
	if factor < 0 {
		factor = 0
	}
	for t, v := range l {
		l[t] = v * factor
	}
}

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for t, v := range l {
		out[t] = v
	}
	return out
}

// Types returns the keys of l in declaration order.
func (l Ledger) Types() []Type {
	out := make([]Type, 0, len(l))
	for t := range l {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Total sums all quantities.
func (l Ledger) Total() float64 {
	sum := 0.0
	for _, v := range l {
		sum += v
	}
	return sum
}

// FromNames converts a name-keyed map (YAML, JSON columns) into a Ledger.
func FromNames(m map[string]float64) (Ledger, error) {
	out := make(Ledger, len(m))
	for name, v := range m {
		t, ok := Parse(name)
		if !ok {
			return nil, fmt.Errorf("unknown resource type %q", name)
		}
		if v < 0 {
			return nil, fmt.Errorf("negative quantity %v for %s", v, name)
		}
		out[t] = v
	}
	return out, nil
}

// Names converts the ledger into a name-keyed map.
func (l Ledger) Names() map[string]float64 {
	out := make(map[string]float64, len(l))
	for t, v := range l {
		out[t.String()] = v
	}
	return out
}

// Positive returns the types holding a quantity above zero, in declaration order.
func (l Ledger) Positive() []Type {
	out := make([]Type, 0, len(l))
	for _, t := range l.Types() {
		if l[t] > 0 {
			out = append(out, t)
		}
	}
	return out
}
