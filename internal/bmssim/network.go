package bmssim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/notnil/canbms/canbus"
	"github.com/notnil/canbms/canopen"
)

// Network serves any number of simulated nodes over one bus endpoint. Each
// node gets its own Mux subscription filtered to its request COB-id.
type Network struct {
	mux    *canbus.Mux
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	nodes map[canopen.NodeID]*served
}

type served struct {
	node   *Node
	cancel func()
}

// NewNetwork starts serving on bus. The network owns bus and closes it on
// Close. A nil logger uses slog.Default().
func NewNetwork(bus canbus.Bus, logger *slog.Logger) *Network {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Network{
		mux:    canbus.NewMux(bus, canbus.WithMuxLogger(logger)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		nodes:  make(map[canopen.NodeID]*served),
	}
}

// Add attaches node, replacing any node with the same id.
func (n *Network) Add(node *Node) {
	ch, unsubscribe := n.mux.Subscribe(canopen.SDORequest(node.ID), 16)
	s := &served{node: node, cancel: unsubscribe}

	n.mu.Lock()
	if prev, ok := n.nodes[node.ID]; ok {
		prev.cancel()
	}
	n.nodes[node.ID] = s
	n.mu.Unlock()

	n.wg.Add(1)
	go n.serve(node, ch)
	n.logger.Debug("simulated node attached", "node", node.ID)
}

// Remove detaches the node with id, if present.
func (n *Network) Remove(id canopen.NodeID) {
	n.mu.Lock()
	s, ok := n.nodes[id]
	delete(n.nodes, id)
	n.mu.Unlock()
	if ok {
		s.cancel()
	}
}

// Node returns the attached node with id.
func (n *Network) Node(id canopen.NodeID) (*Node, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.nodes[id]
	if !ok {
		return nil, false
	}
	return s.node, true
}

// Close stops all nodes and closes the bus.
func (n *Network) Close() error {
	n.cancel()
	err := n.mux.Close()
	n.wg.Wait()
	return err
}

func (n *Network) serve(node *Node, requests <-chan canbus.Frame) {
	defer n.wg.Done()
	for f := range requests {
		req, err := canopen.ParseRequest(f)
		if err != nil {
			// Unsupported command: CiA 301 servers answer with an abort.
			ref := canopen.ObjectRef{Index: uint16(f.Data[1]) | uint16(f.Data[2])<<8, Subindex: f.Data[3]}
			if rsp, err := canopen.AbortResponse(node.ID, ref, canopen.AbortCommandSpecifier); err == nil {
				n.send(rsp, 0)
			}
			continue
		}
		rsp, delay, ok := node.Handle(req)
		if !ok {
			continue
		}
		n.send(rsp, delay)
	}
}

func (n *Network) send(rsp canbus.Frame, delay time.Duration) {
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-n.ctx.Done():
			t.Stop()
			return
		}
	}
	ctx, cancel := context.WithTimeout(n.ctx, time.Second)
	defer cancel()
	if err := n.mux.Send(ctx, rsp); err != nil && n.ctx.Err() == nil {
		n.logger.Warn("simulated node send failed", "frame", rsp.String(), "error", err)
	}
}
