// internal/config/normalize.go
package config

import (
	"log/slog"
	"strings"

	"github.com/notnil/canbms/canopen"
)

// Normalize applies post-validation normalization.
// It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.CAN.Interface = strings.TrimSpace(cfg.CAN.Interface)
	cfg.Monitor.ProductName = strings.TrimSpace(cfg.Monitor.ProductName)

	lvl := strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	switch lvl {
	case "":
		lvl = "info"
	case "warning":
		lvl = "warn"
	}
	cfg.Log.Level = lvl

	for i := range cfg.Objects {
		cfg.Objects[i].Name = strings.TrimSpace(cfg.Objects[i].Name)
		if cfg.Objects[i].Divisor == 0 {
			cfg.Objects[i].Divisor = 1
		}
	}
}

// Candidates returns the nodes to poll or probe: the scan range for "auto",
// otherwise the configured list.
func (c CANConfig) Candidates() []canopen.NodeID {
	if c.NodeIDs.Auto {
		return canopen.NodeRange(canopen.NodeID(c.ScanFirst), canopen.NodeID(c.ScanLast))
	}
	return append([]canopen.NodeID(nil), c.NodeIDs.Nodes...)
}

// SlogLevel maps the configured level name onto slog.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
