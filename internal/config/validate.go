// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/notnil/canbms/bms"
	"github.com/notnil/canbms/canopen"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	c := cfg.CAN
	if strings.TrimSpace(c.Interface) == "" {
		return fmt.Errorf("can: interface is required")
	}
	if c.Bitrate < 0 {
		return fmt.Errorf("can: bitrate must not be negative, got %d", c.Bitrate)
	}
	if c.NodeIDs.Auto {
		if c.ScanFirst < int(canopen.MinNodeID) || c.ScanFirst > int(canopen.MaxNodeID) {
			return fmt.Errorf("can: scan_first %d outside 1..127", c.ScanFirst)
		}
		if c.ScanLast < int(canopen.MinNodeID) || c.ScanLast > int(canopen.MaxNodeID) {
			return fmt.Errorf("can: scan_last %d outside 1..127", c.ScanLast)
		}
		if c.ScanLast < c.ScanFirst {
			return fmt.Errorf("can: scan_last %d before scan_first %d", c.ScanLast, c.ScanFirst)
		}
	} else {
		if len(c.NodeIDs.Nodes) == 0 {
			return fmt.Errorf("can: node_ids is empty")
		}
		seen := make(map[canopen.NodeID]bool, len(c.NodeIDs.Nodes))
		for _, n := range c.NodeIDs.Nodes {
			if err := n.Validate(); err != nil {
				return fmt.Errorf("can: node_ids: %w", err)
			}
			if seen[n] {
				return fmt.Errorf("can: node_ids: node %d listed twice", n)
			}
			seen[n] = true
		}
	}
	for _, t := range []struct {
		name string
		d    Duration
	}{
		{"scan_timeout", c.ScanTimeout},
		{"read_timeout", c.ReadTimeout},
		{"write_timeout", c.WriteTimeout},
	} {
		if t.d <= 0 {
			return fmt.Errorf("can: %s must be positive, got %v", t.name, t.d)
		}
	}

	if cfg.Monitor.UpdateInterval <= 0 {
		return fmt.Errorf("monitor: update_interval must be positive, got %v", cfg.Monitor.UpdateInterval)
	}
	if cfg.Monitor.DeviceInstanceStart < 0 {
		return fmt.Errorf("monitor: device_instance_start must not be negative")
	}

	if cfg.Battery.Capacity < 0 {
		return fmt.Errorf("battery: capacity must not be negative, got %v", cfg.Battery.Capacity)
	}
	if cfg.Battery.NumberOfCells < 0 {
		return fmt.Errorf("battery: number_of_cells must not be negative")
	}

	if lvl := strings.ToLower(strings.TrimSpace(cfg.Log.Level)); lvl != "" && !logLevels[lvl] {
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}

	if _, err := cfg.Registry(); err != nil {
		return fmt.Errorf("objects: %w", err)
	}
	return nil
}

// Registry returns the default registry extended with the configured
// objects, in declared order.
func (cfg *Config) Registry() (*bms.Registry, error) {
	extra := make([]bms.Definition, 0, len(cfg.Objects))
	for _, o := range cfg.Objects {
		extra = append(extra, o.Definition())
	}
	return bms.DefaultRegistry().Extend(extra...)
}

// Definition converts the entry to a registry definition. A zero divisor
// means 1.
func (o ObjectConfig) Definition() bms.Definition {
	div := o.Divisor
	if div == 0 {
		div = 1
	}
	return bms.Definition{
		Name:        strings.TrimSpace(o.Name),
		Ref:         canopen.ObjectRef{Index: o.Index, Subindex: o.Subindex},
		Encoding:    o.Encoding,
		Divisor:     div,
		DisplayName: o.DisplayName,
		Unit:        o.Unit,
	}
}
