package canbus

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// LoopbackBus is an in-memory CAN segment. Every endpoint opened on it hears
// the frames sent by all other endpoints, never its own. It stands in for a
// SocketCAN interface when talking to simulated nodes.
type LoopbackBus struct {
	depth int
	sent  atomic.Uint64

	mu        sync.Mutex
	closed    bool
	endpoints []*loopEndpoint
}

// LoopbackOption configures a LoopbackBus.
type LoopbackOption func(*LoopbackBus)

// WithQueueDepth sets how many frames an endpoint buffers before senders
// block. The default is 64.
func WithQueueDepth(n int) LoopbackOption {
	return func(b *LoopbackBus) {
		if n > 0 {
			b.depth = n
		}
	}
}

// NewLoopbackBus creates an empty segment.
func NewLoopbackBus(opts ...LoopbackOption) *LoopbackBus {
	b := &LoopbackBus{depth: 64}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open attaches a new endpoint. Endpoints opened after Close are already
// closed.
func (b *LoopbackBus) Open() Bus {
	ep := &loopEndpoint{
		bus:   b,
		queue: make(chan Frame, b.depth),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ep.shutdown()
		return ep
	}
	b.endpoints = append(b.endpoints, ep)
	return ep
}

// Close closes every endpoint. It is safe to call more than once.
func (b *LoopbackBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, ep := range b.endpoints {
		ep.shutdown()
	}
	b.endpoints = nil
	return nil
}

// Frames reports how many frames have been put on the segment.
func (b *LoopbackBus) Frames() uint64 { return b.sent.Load() }

func (b *LoopbackBus) peers(from *loopEndpoint) ([]*loopEndpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	out := make([]*loopEndpoint, 0, len(b.endpoints))
	for _, ep := range b.endpoints {
		if ep != from {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (b *LoopbackBus) detach(ep *loopEndpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := slices.Index(b.endpoints, ep); i >= 0 {
		b.endpoints = slices.Delete(b.endpoints, i, i+1)
	}
}

type loopEndpoint struct {
	bus   *LoopbackBus
	queue chan Frame
	once  sync.Once
	done  chan struct{}
}

// shutdown marks the endpoint closed. queue is never closed; both sides
// select on done instead.
func (e *loopEndpoint) shutdown() { e.once.Do(func() { close(e.done) }) }

func (e *loopEndpoint) isClosed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Send delivers frame to every other endpoint, blocking on full queues until
// ctx is done. Peers that close meanwhile are skipped.
func (e *loopEndpoint) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if e.isClosed() {
		return ErrClosed
	}
	peers, err := e.bus.peers(e)
	if err != nil {
		return err
	}
	e.bus.sent.Add(1)
	for _, p := range peers {
		select {
		case p.queue <- frame:
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *loopEndpoint) Receive(ctx context.Context) (Frame, error) {
	if e.isClosed() {
		return Frame{}, ErrClosed
	}
	select {
	case f := <-e.queue:
		return f, nil
	case <-e.done:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (e *loopEndpoint) Close() error {
	e.bus.detach(e)
	e.shutdown()
	return nil
}
