// internal/monitor/service.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/notnil/canbms/bms"
	"github.com/notnil/canbms/canopen"
)

// Reader abstracts the parameter reader operations the service needs.
type Reader interface {
	ReadAll(node canopen.NodeID) (bms.Readings, error)
	Scan(candidates []canopen.NodeID) ([]canopen.NodeID, error)
}

// Config is the runtime configuration of a Service.
type Config struct {
	Candidates []canopen.NodeID
	// Discover probes Candidates and monitors only the nodes that answer.
	Discover bool

	Interval            time.Duration
	DeviceInstanceStart int
	ProductName         string
	Capacity            float64 // Ah
}

// Battery is one monitored node.
type Battery struct {
	Node           canopen.NodeID
	DeviceInstance int
	ProductName    string
}

// ErrNoNodes is returned by Setup when no node is left to monitor.
var ErrNoNodes = errors.New("monitor: no canopen nodes found")

// Service polls every battery on its own timer and publishes snapshots.
type Service struct {
	cfg       Config
	reader    Reader
	pub       Publisher
	logger    *slog.Logger
	batteries []Battery
}

// New creates a service with immutable config.
func New(cfg Config, reader Reader, pub Publisher, logger *slog.Logger) (*Service, error) {
	if reader == nil {
		return nil, errors.New("monitor: reader required")
	}
	if pub == nil {
		return nil, errors.New("monitor: publisher required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("monitor: interval must be > 0")
	}
	if len(cfg.Candidates) == 0 {
		return nil, errors.New("monitor: at least one candidate node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, reader: reader, pub: pub, logger: logger}, nil
}

// Setup selects the nodes to monitor and assigns device instances in node
// order starting at DeviceInstanceStart.
func (s *Service) Setup() ([]Battery, error) {
	nodes := s.cfg.Candidates
	if s.cfg.Discover {
		s.logger.Info("auto-detecting bms nodes", "candidates", len(nodes))
		found, err := s.reader.Scan(nodes)
		if err != nil {
			return nil, fmt.Errorf("monitor: scan: %w", err)
		}
		nodes = found
	}
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}

	s.batteries = make([]Battery, 0, len(nodes))
	instance := s.cfg.DeviceInstanceStart
	for _, n := range nodes {
		b := Battery{
			Node:           n,
			DeviceInstance: instance,
			ProductName:    fmt.Sprintf("%s (Node %d)", s.cfg.ProductName, n),
		}
		s.batteries = append(s.batteries, b)
		s.logger.Info("battery monitor initialized", "node", n, "device_instance", instance)
		instance++
	}
	return append([]Battery(nil), s.batteries...), nil
}

// PollOnce performs exactly one poll cycle for b. A cycle without any value
// yields a disconnected snapshot.
func (s *Service) PollOnce(b Battery) Snapshot {
	snap := Snapshot{
		Node:           b.Node,
		DeviceInstance: b.DeviceInstance,
		ProductName:    b.ProductName,
		At:             time.Now(),
	}
	readings, err := s.reader.ReadAll(b.Node)
	if err != nil {
		s.logger.Error("update error", "node", b.Node, "error", err)
		snap.Err = err
	}
	snap.Derive(readings, s.cfg.Capacity)
	if !snap.Connected && err == nil {
		s.logger.Warn("no data received", "node", b.Node)
	}
	return snap
}

// Run sets up the batteries when Setup has not been called and polls each
// on its own ticker until ctx is done. One goroutine per battery, no
// overlap within a battery, no retries.
func (s *Service) Run(ctx context.Context) error {
	if s.batteries == nil {
		if _, err := s.Setup(); err != nil {
			return err
		}
	}
	s.logger.Info("service running", "batteries", len(s.batteries), "interval", s.cfg.Interval)

	var wg sync.WaitGroup
	for _, b := range s.batteries {
		wg.Add(1)
		go func(b Battery) {
			defer wg.Done()
			s.poll(ctx, b)
		}(b)
	}
	wg.Wait()
	s.logger.Info("service stopped")
	return nil
}

func (s *Service) poll(ctx context.Context, b Battery) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.PollOnce(b)
			if err := s.pub.Publish(snap); err != nil {
				s.logger.Error("publish failed", "node", b.Node, "error", err)
			}
			s.logger.Debug("battery polled", "node", b.Node,
				"voltage", snap.Values[bms.Voltage], "current", snap.Values[bms.Current], "soc", snap.Values[bms.StateOfCharge])
		}
	}
}
