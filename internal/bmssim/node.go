// Package bmssim simulates battery management units answering expedited SDO
// requests on a canbus.Bus.
package bmssim

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/notnil/canbms/bms"
	"github.com/notnil/canbms/canbus"
	"github.com/notnil/canbms/canopen"
)

// DeviceType is the value a simulated node reports at 0x1000:00.
const DeviceType uint32 = 0x000F0191

// Node is one simulated object dictionary. It is safe for concurrent use.
type Node struct {
	ID canopen.NodeID

	mu       sync.Mutex
	objects  map[canopen.ObjectRef][]byte
	readOnly map[canopen.ObjectRef]bool
	silent   map[canopen.ObjectRef]bool
	offline  bool
	delay    time.Duration
}

// NewNode returns a node holding only the device type object.
func NewNode(id canopen.NodeID) *Node {
	n := &Node{
		ID:       id,
		objects:  make(map[canopen.ObjectRef][]byte),
		readOnly: make(map[canopen.ObjectRef]bool),
		silent:   make(map[canopen.ObjectRef]bool),
	}
	b, _ := canopen.Encode(int64(DeviceType), canopen.Uint32)
	n.objects[canopen.IdentityObject] = b
	n.readOnly[canopen.IdentityObject] = true
	return n
}

// State is the physical state of a simulated battery.
type State struct {
	Voltage     float64 // V
	SoC         float64 // %
	Temperature float64 // °C
	Current     float64 // A, positive while charging
	Cycles      float64
	AhSinceEq   float64
	HighestTemp float64
	VendorID    uint32
	ProductCode uint32
	Revision    uint32
	Serial      uint32

	// Newer firmware only; left out of the dictionary when Legacy is set.
	AhExpended float64
	AhReturned float64
	Legacy     bool
}

// NewBattery returns a node populated from s through the default registry.
func NewBattery(id canopen.NodeID, s State) (*Node, error) {
	n := NewNode(id)
	values := map[string]float64{
		bms.Voltage:         s.Voltage,
		bms.StateOfCharge:   s.SoC,
		bms.Temperature:     s.Temperature,
		bms.Current:         s.Current,
		bms.Cycles:          s.Cycles,
		bms.AhSinceEqualize: s.AhSinceEq,
		bms.HighestTemp:     s.HighestTemp,
		bms.VendorID:        float64(s.VendorID),
		bms.ProductCode:     float64(s.ProductCode),
		bms.Revision:        float64(s.Revision),
		bms.SerialNumber:    float64(s.Serial),
	}
	if !s.Legacy {
		values[bms.AhExpended] = s.AhExpended
		values[bms.AhReturned] = s.AhReturned
	}
	for _, d := range bms.DefaultDefinitions() {
		v, ok := values[d.Name]
		if !ok {
			continue
		}
		if err := n.SetValue(d, v); err != nil {
			return nil, err
		}
	}
	for _, ref := range []canopen.ObjectRef{{Index: 0x1018, Subindex: 1}, {Index: 0x1018, Subindex: 2}, {Index: 0x1018, Subindex: 3}, {Index: 0x1018, Subindex: 4}} {
		n.SetReadOnly(ref, true)
	}
	return n, nil
}

// SetValue stores v scaled by the definition's divisor.
func (n *Node) SetValue(d bms.Definition, v float64) error {
	raw := int64(math.Round(v * d.Divisor))
	return n.Set(d.Ref, d.Encoding, raw)
}

// Set stores a raw value with the given encoding.
func (n *Node) Set(ref canopen.ObjectRef, enc canopen.Encoding, raw int64) error {
	b, err := canopen.Encode(raw, enc)
	if err != nil {
		return fmt.Errorf("bmssim: node %d %v: %w", n.ID, ref, err)
	}
	n.SetRaw(ref, b)
	return nil
}

// SetRaw stores 1..4 little-endian bytes.
func (n *Node) SetRaw(ref canopen.ObjectRef, b []byte) {
	n.mu.Lock()
	n.objects[ref] = append([]byte(nil), b...)
	n.mu.Unlock()
}

// Raw returns the stored bytes of ref.
func (n *Node) Raw(ref canopen.ObjectRef) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.objects[ref]
	return append([]byte(nil), b...), ok
}

// Remove deletes ref; later accesses abort with "object does not exist".
func (n *Node) Remove(ref canopen.ObjectRef) {
	n.mu.Lock()
	delete(n.objects, ref)
	n.mu.Unlock()
}

// SetReadOnly makes downloads to ref abort.
func (n *Node) SetReadOnly(ref canopen.ObjectRef, ro bool) {
	n.mu.Lock()
	n.readOnly[ref] = ro
	n.mu.Unlock()
}

// SetSilent makes the node ignore requests for ref.
func (n *Node) SetSilent(ref canopen.ObjectRef, silent bool) {
	n.mu.Lock()
	n.silent[ref] = silent
	n.mu.Unlock()
}

// SetOffline makes the node ignore every request.
func (n *Node) SetOffline(offline bool) {
	n.mu.Lock()
	n.offline = offline
	n.mu.Unlock()
}

// SetDelay delays every response by d.
func (n *Node) SetDelay(d time.Duration) {
	n.mu.Lock()
	n.delay = d
	n.mu.Unlock()
}

// Handle computes the response to one request. ok is false when the node
// stays silent.
func (n *Node) Handle(req canopen.Request) (rsp canbus.Frame, delay time.Duration, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offline || n.silent[req.Ref] {
		return canbus.Frame{}, 0, false
	}
	stored, exists := n.objects[req.Ref]
	var err error
	switch {
	case !exists:
		rsp, err = canopen.AbortResponse(n.ID, req.Ref, canopen.AbortObjectNotExist)
	case req.Upload:
		rsp, err = canopen.UploadResponse(n.ID, req.Ref, stored)
	case n.readOnly[req.Ref]:
		rsp, err = canopen.AbortResponse(n.ID, req.Ref, canopen.AbortReadOnly)
	case len(req.Data) != len(stored):
		rsp, err = canopen.AbortResponse(n.ID, req.Ref, canopen.AbortLengthMismatch)
	default:
		n.objects[req.Ref] = append([]byte(nil), req.Data...)
		rsp, err = canopen.DownloadResponse(n.ID, req.Ref)
	}
	if err != nil {
		return canbus.Frame{}, 0, false
	}
	return rsp, n.delay, true
}
