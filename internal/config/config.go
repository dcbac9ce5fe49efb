// internal/config/config.go
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/notnil/canbms/canopen"
)

type Config struct {
	CAN     CANConfig      `toml:"can" yaml:"can"`
	Monitor MonitorConfig  `toml:"monitor" yaml:"monitor"`
	Battery BatteryConfig  `toml:"battery" yaml:"battery"`
	Log     LogConfig      `toml:"log" yaml:"log"`
	Objects []ObjectConfig `toml:"objects" yaml:"objects"`
}

// ---- CAN ----

type CANConfig struct {
	Interface          string `toml:"interface" yaml:"interface"`
	Bitrate            int    `toml:"bitrate" yaml:"bitrate"`
	ConfigureInterface bool   `toml:"configure_interface" yaml:"configure_interface"`

	// "auto" scans ScanFirst..ScanLast; otherwise an explicit list.
	NodeIDs   NodeSelection `toml:"node_ids" yaml:"node_ids"`
	ScanFirst int           `toml:"scan_first" yaml:"scan_first"`
	ScanLast  int           `toml:"scan_last" yaml:"scan_last"`

	ScanTimeout  Duration `toml:"scan_timeout" yaml:"scan_timeout"`
	ReadTimeout  Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout" yaml:"write_timeout"`
}

// ---- MONITOR ----

type MonitorConfig struct {
	UpdateInterval      Duration `toml:"update_interval" yaml:"update_interval"`
	DeviceInstanceStart int      `toml:"device_instance_start" yaml:"device_instance_start"`
	ProductName         string   `toml:"product_name" yaml:"product_name"`
}

// ---- BATTERY ----

type BatteryConfig struct {
	Capacity      float64 `toml:"capacity" yaml:"capacity"` // Ah
	Chemistry     string  `toml:"chemistry" yaml:"chemistry"`
	NumberOfCells int     `toml:"number_of_cells" yaml:"number_of_cells"`
}

// ---- LOG ----

type LogConfig struct {
	Level       string `toml:"level" yaml:"level"`
	File        string `toml:"file" yaml:"file"`
	TraceFrames bool   `toml:"trace_frames" yaml:"trace_frames"`
	Capture     string `toml:"capture" yaml:"capture"` // pcap path
}

// ---- OBJECTS ----

// ObjectConfig declares an extra registry parameter.
type ObjectConfig struct {
	Name        string           `toml:"name" yaml:"name"`
	Index       uint16           `toml:"index" yaml:"index"`
	Subindex    uint8            `toml:"subindex" yaml:"subindex"`
	Encoding    canopen.Encoding `toml:"encoding" yaml:"encoding"`
	Divisor     float64          `toml:"divisor" yaml:"divisor"`
	DisplayName string           `toml:"display_name" yaml:"display_name"`
	Unit        string           `toml:"unit" yaml:"unit"`
}

// Duration accepts Go duration strings ("250ms") or a bare number of
// seconds ("1.5").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// NodeSelection is either automatic discovery or a fixed node list.
type NodeSelection struct {
	Auto  bool
	Nodes []canopen.NodeID
}

func (n NodeSelection) String() string {
	if n.Auto {
		return "auto"
	}
	parts := make([]string, len(n.Nodes))
	for i, id := range n.Nodes {
		parts[i] = strconv.Itoa(int(id))
	}
	return strings.Join(parts, ",")
}

func (n NodeSelection) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

func (n *NodeSelection) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.EqualFold(s, "auto") || s == "" {
		*n = NodeSelection{Auto: true}
		return nil
	}
	nodes, err := canopen.ParseNodeList(s)
	if err != nil {
		return err
	}
	*n = NodeSelection{Nodes: nodes}
	return nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		CAN: CANConfig{
			Interface:    "can0",
			Bitrate:      250000,
			NodeIDs:      NodeSelection{Auto: true},
			ScanFirst:    1,
			ScanLast:     9,
			ScanTimeout:  Duration(canopen.DefaultScanTimeout),
			ReadTimeout:  Duration(canopen.DefaultUploadTimeout),
			WriteTimeout: Duration(canopen.DefaultDownloadTimeout),
		},
		Monitor: MonitorConfig{
			UpdateInterval:      Duration(time.Second),
			DeviceInstanceStart: 1,
			ProductName:         "SuperB Epsilon V2",
		},
		Battery: BatteryConfig{
			Capacity:      200,
			Chemistry:     "LiFePO4",
			NumberOfCells: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
