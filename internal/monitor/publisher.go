package monitor

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// Publisher receives snapshots. Implementations must be safe for concurrent
// use; every battery publishes from its own goroutine.
type Publisher interface {
	Publish(Snapshot) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Snapshot) error

func (f PublisherFunc) Publish(s Snapshot) error { return f(s) }

// MultiPublisher publishes to each publisher in turn and joins the errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(s Snapshot) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher logs each snapshot at info level.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(s Snapshot) error {
	l := p.Logger
	if l == nil {
		l = slog.Default()
	}
	if !s.Connected {
		l.Warn("battery disconnected", "node", s.Node, "device_instance", s.DeviceInstance)
		return nil
	}
	attrs := []any{"node", s.Node, "device_instance", s.DeviceInstance}
	for _, f := range []struct {
		key string
		v   *float64
	}{
		{"voltage", s.Voltage},
		{"current", s.Current},
		{"power", s.Power},
		{"soc", s.SoC},
		{"temperature", s.Temperature},
		{"consumed_ah", s.ConsumedAh},
	} {
		if f.v != nil {
			attrs = append(attrs, f.key, *f.v)
		}
	}
	l.Info("battery update", attrs...)
	return nil
}

// StreamPublisher writes each snapshot as a YAML document.
type StreamPublisher struct {
	mu  sync.Mutex
	enc *yaml.Encoder
}

func NewStreamPublisher(w io.Writer) *StreamPublisher {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &StreamPublisher{enc: enc}
}

func (p *StreamPublisher) Publish(s Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(s)
}

// Close flushes the encoder.
func (p *StreamPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Close()
}
