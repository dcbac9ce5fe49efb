package bms

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/notnil/canbms/canopen"
)

// fakeAccess answers uploads from a per-node object table. Missing objects
// time out; objects listed in aborts are rejected.
type fakeAccess struct {
	objects map[canopen.NodeID]map[canopen.ObjectRef][]byte
	aborts  map[canopen.ObjectRef]bool
	fail    error
	calls   []canopen.ObjectRef
}

func (f *fakeAccess) Upload(node canopen.NodeID, ref canopen.ObjectRef, timeout time.Duration) ([]byte, error) {
	f.calls = append(f.calls, ref)
	if f.fail != nil {
		return nil, f.fail
	}
	if f.aborts[ref] {
		return nil, &canopen.AbortError{Node: node, Ref: ref, Code: canopen.AbortObjectNotExist}
	}
	b, ok := f.objects[node][ref]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", canopen.ErrTimeout, node)
	}
	out := make([]byte, 4)
	copy(out, b)
	return out, nil
}

func (f *fakeAccess) Scan(nodes []canopen.NodeID, timeout time.Duration) ([]canopen.NodeID, error) {
	var out []canopen.NodeID
	for _, n := range nodes {
		if _, ok := f.objects[n]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func ref(index uint16, sub uint8) canopen.ObjectRef {
	return canopen.ObjectRef{Index: index, Subindex: sub}
}

func TestDefaultRegistryTable(t *testing.T) {
	r := DefaultRegistry()
	want := []string{
		"voltage", "soc", "temperature", "current", "cycles", "ah_since_eq", "highest_temp",
		"vendor_id", "product_code", "revision", "serial", "ah_expended", "ah_returned",
	}
	if !reflect.DeepEqual(r.Names(), want) {
		t.Fatalf("names %v", r.Names())
	}
	cases := []struct {
		name    string
		ref     canopen.ObjectRef
		enc     canopen.Encoding
		divisor float64
	}{
		{"voltage", ref(0x6060, 0), canopen.Int32, 1024},
		{"soc", ref(0x6081, 0), canopen.Uint8, 1},
		{"temperature", ref(0x6010, 0), canopen.Int16, 8},
		{"current", ref(0x2010, 0), canopen.Int32, 1000},
		{"cycles", ref(0x6050, 0), canopen.Uint16, 1},
		{"ah_since_eq", ref(0x6053, 0), canopen.Int32, 8},
		{"highest_temp", ref(0x6020, 0), canopen.Int16, 8},
		{"vendor_id", ref(0x1018, 1), canopen.Uint32, 1},
		{"product_code", ref(0x1018, 2), canopen.Uint32, 1},
		{"revision", ref(0x1018, 3), canopen.Uint32, 1},
		{"serial", ref(0x1018, 4), canopen.Uint32, 1},
		{"ah_expended", ref(0x6051, 0), canopen.Int16, 8},
		{"ah_returned", ref(0x6052, 0), canopen.Int16, 8},
	}
	for _, tc := range cases {
		d, ok := r.Lookup(tc.name)
		if !ok || d.Ref != tc.ref || d.Encoding != tc.enc || d.Divisor != tc.divisor {
			t.Fatalf("%s: got %+v", tc.name, d)
		}
	}
}

func TestRegistryValidationAndExtend(t *testing.T) {
	base := DefaultRegistry()
	if _, err := base.Extend(Definition{Name: "voltage", Ref: ref(0x2000, 0), Encoding: canopen.Uint8, Divisor: 1}); err == nil {
		t.Fatalf("duplicate name should be rejected")
	}
	if _, err := NewRegistry(Definition{Name: "x", Ref: ref(0x2000, 0), Encoding: canopen.Uint8, Divisor: 0}); err == nil {
		t.Fatalf("zero divisor should be rejected")
	}
	if _, err := NewRegistry(Definition{Name: "x", Ref: ref(0x2000, 0), Divisor: 1}); !errors.Is(err, canopen.ErrUnsupportedEncoding) {
		t.Fatalf("want ErrUnsupportedEncoding, got %v", err)
	}
	ext, err := base.Extend(
		Definition{Name: "cell_min", Ref: ref(0x2100, 1), Encoding: canopen.Uint16, Divisor: 1000, Unit: "V"},
		Definition{Name: "cell_max", Ref: ref(0x2100, 2), Encoding: canopen.Uint16, Divisor: 1000, Unit: "V"},
	)
	if err != nil {
		t.Fatal(err)
	}
	names := ext.Names()
	if ext.Len() != base.Len()+2 || names[len(names)-2] != "cell_min" || names[len(names)-1] != "cell_max" {
		t.Fatalf("extended names %v", names)
	}
	if base.Len() != 13 {
		t.Fatalf("Extend must not modify the receiver")
	}
	defs := base.Definitions()
	defs[0].Name = "mutated"
	if base.Names()[0] != "voltage" {
		t.Fatalf("Definitions must return a copy")
	}
}

func TestReadNamedCurrent(t *testing.T) {
	fa := &fakeAccess{objects: map[canopen.NodeID]map[canopen.ObjectRef][]byte{
		1: {ref(0x2010, 0): {0xE8, 0x03, 0x00, 0x00}},
	}}
	r := NewReader(fa, nil)
	v, ok, err := r.ReadNamed(1, "current")
	if err != nil || !ok || v != 1.0 {
		t.Fatalf("current = %v ok=%v err=%v", v, ok, err)
	}
}

func TestReadNamedConversions(t *testing.T) {
	fa := &fakeAccess{objects: map[canopen.NodeID]map[canopen.ObjectRef][]byte{
		2: {
			ref(0x6060, 0): {0x00, 0x34, 0x00, 0x00}, // 13312 / 1024
			ref(0x6010, 0): {0xD8, 0xFF},             // -40 / 8
			ref(0x2010, 0): {0x18, 0xFC, 0xFF, 0xFF}, // -1000 / 1000
			ref(0x6081, 0): {0x55},
		},
	}}
	r := NewReader(fa, nil)
	for name, want := range map[string]float64{"voltage": 13.0, "temperature": -5.0, "current": -1.0, "soc": 85} {
		v, ok, err := r.ReadNamed(2, name)
		if err != nil || !ok || v != want {
			t.Fatalf("%s = %v ok=%v err=%v, want %v", name, v, ok, err, want)
		}
	}
}

func TestReadNamedUnavailable(t *testing.T) {
	fa := &fakeAccess{
		objects: map[canopen.NodeID]map[canopen.ObjectRef][]byte{1: {}},
		aborts:  map[canopen.ObjectRef]bool{ref(0x6051, 0): true},
	}
	r := NewReader(fa, nil, WithReadTimeout(10*time.Millisecond))
	if _, ok, err := r.ReadNamed(1, "ah_expended"); ok || err != nil {
		t.Fatalf("abort: ok=%v err=%v", ok, err)
	}
	if _, ok, err := r.ReadNamed(1, "voltage"); ok || err != nil {
		t.Fatalf("timeout: ok=%v err=%v", ok, err)
	}
	if _, _, err := r.ReadNamed(1, "nope"); !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("want ErrUnknownParameter, got %v", err)
	}
	if len(fa.calls) != 2 {
		t.Fatalf("unknown parameter must not touch the bus, %d uploads", len(fa.calls))
	}
}

func TestReadAllPartial(t *testing.T) {
	fa := &fakeAccess{
		objects: map[canopen.NodeID]map[canopen.ObjectRef][]byte{
			4: {
				ref(0x6081, 0): {0x64},
				ref(0x6060, 0): {0x00, 0x34, 0x00, 0x00},
			},
		},
		aborts: map[canopen.ObjectRef]bool{ref(0x6051, 0): true, ref(0x6052, 0): true},
	}
	r := NewReader(fa, nil)
	got, err := r.ReadAll(4)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Names(), []string{"voltage", "soc"}) {
		t.Fatalf("names %v", got.Names())
	}
	m := got.Map()
	if len(m) != 2 || m["voltage"] != 13.0 || m["soc"] != 100 {
		t.Fatalf("values %v", m)
	}
	if len(fa.calls) != r.Registry().Len() {
		t.Fatalf("every parameter should be attempted, got %d uploads", len(fa.calls))
	}
	for i, d := range r.Registry().Definitions() {
		if fa.calls[i] != d.Ref {
			t.Fatalf("upload %d was %v, want %v", i, fa.calls[i], d.Ref)
		}
	}
}

func TestReadAllStopsOnTransportError(t *testing.T) {
	fa := &fakeAccess{fail: canopen.ErrNotConnected}
	r := NewReader(fa, nil)
	got, err := r.ReadAll(1)
	if !errors.Is(err, canopen.ErrNotConnected) || len(got) != 0 || len(fa.calls) != 1 {
		t.Fatalf("got %v err=%v calls=%d", got, err, len(fa.calls))
	}
}

func TestReaderScan(t *testing.T) {
	fa := &fakeAccess{objects: map[canopen.NodeID]map[canopen.ObjectRef][]byte{3: {}, 7: {}}}
	r := NewReader(fa, nil)
	got, err := r.Scan(canopen.NodeRange(1, 9))
	if err != nil || !reflect.DeepEqual(got, []canopen.NodeID{3, 7}) {
		t.Fatalf("scan %v %v", got, err)
	}
}

func TestReadingString(t *testing.T) {
	d, _ := DefaultRegistry().Lookup("voltage")
	if s := (Reading{Definition: d, Value: 13.3}).String(); s != "Battery Voltage: 13.300 V" {
		t.Fatalf("String() = %q", s)
	}
	d, _ = DefaultRegistry().Lookup("cycles")
	if s := (Reading{Definition: d, Value: 12}).String(); s != "Charge Cycles: 12" {
		t.Fatalf("String() = %q", s)
	}
}
