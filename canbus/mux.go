package canbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// FrameFilter decides whether a frame should be delivered to a subscriber.
type FrameFilter func(Frame) bool

// Mux shares one Bus between several consumers. A single goroutine reads the
// bus and hands each frame to every subscriber whose filter accepts it, so a
// simulated network can serve many nodes from one endpoint. Sends go straight
// to the underlying bus.
//
// Subscribers that fall behind lose frames; see Dropped.
type Mux struct {
	bus     Bus
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	dropped atomic.Uint64

	mu   sync.Mutex
	subs map[uint64]*subscriber
	next uint64
}

type subscriber struct {
	filter FrameFilter
	ch     chan Frame
}

// MuxOption configures a Mux.
type MuxOption func(*Mux)

// WithMuxLogger logs dropped frames at debug level.
func WithMuxLogger(l *slog.Logger) MuxOption {
	return func(m *Mux) { m.logger = l }
}

// NewMux starts reading bus. The mux owns bus and closes it on Close.
func NewMux(bus Bus, opts ...MuxOption) *Mux {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mux{
		bus:    bus,
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[uint64]*subscriber),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.run(ctx)
	return m
}

// Send writes frame to the underlying bus.
func (m *Mux) Send(ctx context.Context, frame Frame) error {
	return m.bus.Send(ctx, frame)
}

// Close stops the reader, closes every subscription and then the bus.
func (m *Mux) Close() error {
	m.cancel()
	<-m.done
	return m.bus.Close()
}

// Done is closed once the reader has exited, after Close or a bus failure.
func (m *Mux) Done() <-chan struct{} { return m.done }

// Dropped reports how many deliveries were lost to full subscriber buffers.
func (m *Mux) Dropped() uint64 { return m.dropped.Load() }

// Subscribe returns a channel of frames accepted by filter (nil accepts
// everything) and a function that ends the subscription and closes the
// channel. Subscribing after the reader exited yields a closed channel.
func (m *Mux) Subscribe(filter FrameFilter, buffer int) (<-chan Frame, func()) {
	s := &subscriber{filter: filter, ch: make(chan Frame, max(buffer, 0))}

	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
		close(s.ch)
		return s.ch, func() {}
	default:
	}
	id := m.next
	m.next++
	m.subs[id] = s

	return s.ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(cur.ch)
		}
	}
}

func (m *Mux) run(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		for id, s := range m.subs {
			delete(m.subs, id)
			close(s.ch)
		}
		close(m.done)
		m.mu.Unlock()
	}()
	for {
		f, err := m.bus.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil && m.logger != nil {
				m.logger.Warn("mux reader stopped", "error", err)
			}
			return
		}
		m.dispatch(f)
	}
}

func (m *Mux) dispatch(f Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.filter != nil && !s.filter(f) {
			continue
		}
		select {
		case s.ch <- f:
		default:
			m.dropped.Add(1)
			if m.logger != nil {
				m.logger.Debug("mux dropped frame", "frame", f.String())
			}
		}
	}
}
