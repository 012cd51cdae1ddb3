package building

import (
	"fmt"

	"github.com/talgya/gridsim/internal/resource"
)

// Kind tags a building with its default resource templates. It does not
// change engine behavior beyond those defaults.
type Kind uint8

const (
	KindGeneric Kind = iota
	KindPowerPlant
	KindWaterPlant
	KindDataCenter
	KindMagazine
	KindHospital
	KindFactory
	KindEmergencyCenter
	numKinds
)

var kindNames = [numKinds]string{
	"Generic",
	"PowerPlant",
	"WaterPlant",
	"DataCenter",
	"Magazine",
	"Hospital",
	"Factory",
	"EmergencyCenter",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a type name as used in world files to a Kind.
func ParseKind(name string) (Kind, bool) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

func (k Kind) MarshalText() ([]byte, error) {
	if k >= numKinds {
		return nil, fmt.Errorf("unknown building kind %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown building kind %q", string(b))
	}
	*k = v
	return nil
}

// Template holds the per-kind defaults applied by New.
type Template struct {
	Requires resource.Ledger
	Produces resource.Ledger
	Priority int
}

// templates mirror the stock facility tables of the network model.
var templates = map[Kind]Template{
	KindGeneric: {Priority: 1},
	KindHospital: {
		Requires: resource.Ledger{resource.Electricity: 5, resource.Water: 3, resource.BasicResources: 10},
		Priority: 1,
	},
	KindPowerPlant: {
		Requires: resource.Ledger{resource.Water: 5},
		Produces: resource.Ledger{resource.Electricity: 20},
		Priority: 2,
	},
	KindMagazine: {
		Requires: resource.Ledger{resource.Electricity: 3},
		Produces: resource.Ledger{resource.BasicResources: 10},
		Priority: 2,
	},
	KindDataCenter: {
		Requires: resource.Ledger{resource.Electricity: 15, resource.Water: 8},
		Produces: resource.Ledger{resource.Data: 30},
		Priority: 2,
	},
	KindWaterPlant: {
		Requires: resource.Ledger{resource.Electricity: 8},
		Produces: resource.Ledger{resource.Water: 25},
		Priority: 1,
	},
	KindFactory: {
		Requires: resource.Ledger{resource.Electricity: 12, resource.Water: 7, resource.BasicResources: 15},
		Produces: resource.Ledger{resource.HeavyResources: 8},
		Priority: 3,
	},
	KindEmergencyCenter: {
		Requires: resource.Ledger{resource.Electricity: 6, resource.Water: 4, resource.BasicResources: 5},
		Produces: resource.Ledger{resource.Personnel: 10, resource.CriticalResources: 5},
		Priority: 1,
	},
}

// DefaultTemplate returns a copy of the defaults for k.
func DefaultTemplate(k Kind) Template {
	t := templates[k]
	return Template{
		Requires: cloneOrEmpty(t.Requires),
		Produces: cloneOrEmpty(t.Produces),
		Priority: t.Priority,
	}
}

func cloneOrEmpty(l resource.Ledger) resource.Ledger {
	if l == nil {
		return resource.Ledger{}
	}
	return l.Clone()
}
