package bms

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/notnil/canbms/canopen"
)

// ObjectAccess is the part of canopen.Client a Reader depends on.
type ObjectAccess interface {
	Upload(node canopen.NodeID, ref canopen.ObjectRef, timeout time.Duration) ([]byte, error)
	Scan(nodes []canopen.NodeID, timeout time.Duration) ([]canopen.NodeID, error)
}

// Reading is one converted parameter value.
type Reading struct {
	Definition
	Raw   int64
	Value float64
}

// String renders the reading as "Battery Voltage: 13.300 V".
func (r Reading) String() string {
	if r.Unit == "" {
		return fmt.Sprintf("%s: %g", r.Label(), r.Value)
	}
	return fmt.Sprintf("%s: %.3f %s", r.Label(), r.Value, r.Unit)
}

// Readings holds converted values in registry order.
type Readings []Reading

// Get returns the value read for name.
func (rs Readings) Get(name string) (float64, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r.Value, true
		}
	}
	return 0, false
}

// Map returns name -> value.
func (rs Readings) Map() map[string]float64 {
	m := make(map[string]float64, len(rs))
	for _, r := range rs {
		m[r.Name] = r.Value
	}
	return m
}

// Names returns the names that produced a value, in order.
func (rs Readings) Names() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}

// Reader reads registry parameters from nodes.
type Reader struct {
	client      ObjectAccess
	registry    *Registry
	timeout     time.Duration
	scanTimeout time.Duration
	logger      *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReadTimeout sets the per-object upload timeout.
func WithReadTimeout(d time.Duration) ReaderOption {
	return func(r *Reader) { r.timeout = d }
}

// WithScanTimeout sets the per-node probe timeout used by Scan.
func WithScanTimeout(d time.Duration) ReaderOption {
	return func(r *Reader) { r.scanTimeout = d }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReader returns a Reader over client. A nil registry selects
// DefaultRegistry().
func NewReader(client ObjectAccess, registry *Registry, opts ...ReaderOption) *Reader {
	if registry == nil {
		registry = DefaultRegistry()
	}
	r := &Reader{
		client:      client,
		registry:    registry,
		timeout:     canopen.DefaultUploadTimeout,
		scanTimeout: canopen.DefaultScanTimeout,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Registry returns the registry the reader iterates.
func (r *Reader) Registry() *Registry { return r.registry }

// ReadNamed reads one parameter. ok is false when the node aborted the
// access or did not answer; both are logged at debug level only. err is
// ErrUnknownParameter for names outside the registry, or a connection or
// transport failure from the client.
func (r *Reader) ReadNamed(node canopen.NodeID, name string) (value float64, ok bool, err error) {
	d, found := r.registry.Lookup(name)
	if !found {
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	reading, ok, err := r.read(node, d)
	return reading.Value, ok, err
}

func (r *Reader) read(node canopen.NodeID, d Definition) (Reading, bool, error) {
	b, err := r.client.Upload(node, d.Ref, r.timeout)
	var abort *canopen.AbortError
	switch {
	case err == nil:
	case errors.As(err, &abort):
		r.logger.Debug("parameter not supported", "node", node, "param", d.Name,
			"object", d.Ref, "code", fmt.Sprintf("0x%08X", abort.Code))
		return Reading{}, false, nil
	case errors.Is(err, canopen.ErrTimeout):
		r.logger.Debug("no response", "node", node, "param", d.Name, "object", d.Ref)
		return Reading{}, false, nil
	default:
		return Reading{}, false, err
	}
	raw, err := canopen.Decode(b, d.Encoding)
	if err != nil {
		return Reading{}, false, err
	}
	v := d.Convert(raw)
	r.logger.Debug("parameter read", "node", node, "param", d.Name, "raw", raw, "value", v)
	return Reading{Definition: d, Raw: raw, Value: v}, true, nil
}

// ReadAll reads every registry parameter in declared order and returns the
// ones that produced a value. A connection or transport failure stops the
// iteration and is returned with the readings gathered so far.
func (r *Reader) ReadAll(node canopen.NodeID) (Readings, error) {
	var out Readings
	for _, d := range r.registry.defs {
		reading, ok, err := r.read(node, d)
		if err != nil {
			return out, fmt.Errorf("bms: read %s from node %d: %w", d.Name, node, err)
		}
		if ok {
			out = append(out, reading)
		}
	}
	return out, nil
}

// Scan returns the nodes among candidates that answer the device type
// probe, in candidate order.
func (r *Reader) Scan(candidates []canopen.NodeID) ([]canopen.NodeID, error) {
	return r.client.Scan(candidates, r.scanTimeout)
}
