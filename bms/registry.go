package bms

import (
	"errors"
	"fmt"
	"math"

	"github.com/notnil/canbms/canopen"
)

// Parameter names of the default registry.
const (
	Voltage         = "voltage"
	StateOfCharge   = "soc"
	Temperature     = "temperature"
	Current         = "current"
	Cycles          = "cycles"
	AhSinceEqualize = "ah_since_eq"
	HighestTemp     = "highest_temp"
	VendorID        = "vendor_id"
	ProductCode     = "product_code"
	Revision        = "revision"
	SerialNumber    = "serial"
	AhExpended      = "ah_expended"
	AhReturned      = "ah_returned"
)

// ErrUnknownParameter is returned for names not present in the registry.
var ErrUnknownParameter = errors.New("bms: unknown parameter")

// Definition describes how one named parameter is stored on a node.
type Definition struct {
	Name        string
	Ref         canopen.ObjectRef
	Encoding    canopen.Encoding
	Divisor     float64
	DisplayName string
	Unit        string
}

// Validate checks that the definition can be read and converted.
func (d Definition) Validate() error {
	if d.Name == "" {
		return errors.New("bms: definition without name")
	}
	if !d.Encoding.Valid() {
		return fmt.Errorf("bms: %s: %w: %v", d.Name, canopen.ErrUnsupportedEncoding, d.Encoding)
	}
	if !(d.Divisor > 0) || math.IsInf(d.Divisor, 0) {
		return fmt.Errorf("bms: %s: divisor must be positive, got %v", d.Name, d.Divisor)
	}
	return nil
}

// Convert scales a decoded raw value to the physical quantity.
func (d Definition) Convert(raw int64) float64 {
	return float64(raw) / d.Divisor
}

// Label returns the display name, or the parameter name when none is set.
func (d Definition) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}

func obj(index uint16, sub uint8) canopen.ObjectRef {
	return canopen.ObjectRef{Index: index, Subindex: sub}
}

// DefaultDefinitions returns the parameter table of the supported battery
// management units, in read order. Ah expended and returned are only
// present on newer firmware.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Voltage, obj(0x6060, 0x00), canopen.Int32, 1024, "Battery Voltage", "V"},
		{StateOfCharge, obj(0x6081, 0x00), canopen.Uint8, 1, "State of Charge", "%"},
		{Temperature, obj(0x6010, 0x00), canopen.Int16, 8, "BMS Temperature", "°C"},
		{Current, obj(0x2010, 0x00), canopen.Int32, 1000, "Battery Current", "A"},
		{Cycles, obj(0x6050, 0x00), canopen.Uint16, 1, "Charge Cycles", ""},
		{AhSinceEqualize, obj(0x6053, 0x00), canopen.Int32, 8, "Ah Since Equalization", "Ah"},
		{HighestTemp, obj(0x6020, 0x00), canopen.Int16, 8, "Highest Temperature", "°C"},
		{VendorID, obj(0x1018, 0x01), canopen.Uint32, 1, "Vendor ID", ""},
		{ProductCode, obj(0x1018, 0x02), canopen.Uint32, 1, "Product Code", ""},
		{Revision, obj(0x1018, 0x03), canopen.Uint32, 1, "Revision", ""},
		{SerialNumber, obj(0x1018, 0x04), canopen.Uint32, 1, "Serial Number", ""},
		{AhExpended, obj(0x6051, 0x00), canopen.Int16, 8, "Ah Expended", "Ah"},
		{AhReturned, obj(0x6052, 0x00), canopen.Int16, 8, "Ah Returned", "Ah"},
	}
}

// Registry is an ordered set of uniquely named definitions. It is not
// modified after construction and is safe for concurrent use.
type Registry struct {
	defs   []Definition
	byName map[string]int
}

// NewRegistry validates defs and builds a registry preserving their order.
// Duplicate names are rejected.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		defs:   make([]Definition, 0, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("bms: duplicate parameter %q", d.Name)
		}
		r.byName[d.Name] = len(r.defs)
		r.defs = append(r.defs, d)
	}
	return r, nil
}

// DefaultRegistry returns a registry holding DefaultDefinitions.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultDefinitions()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Extend returns a new registry with extra appended after r's entries.
func (r *Registry) Extend(extra ...Definition) (*Registry, error) {
	all := make([]Definition, 0, len(r.defs)+len(extra))
	all = append(all, r.defs...)
	all = append(all, extra...)
	return NewRegistry(all...)
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

// Definitions returns a copy of the entries in declared order.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.defs...)
}

// Names returns the parameter names in declared order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.defs))
	for i, d := range r.defs {
		out[i] = d.Name
	}
	return out
}

// Len returns the number of definitions.
func (r *Registry) Len() int { return len(r.defs) }
