package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/notnil/canbms/canopen"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	got := cfg.CAN.Candidates()
	if len(got) != 9 || got[0] != 1 || got[8] != 9 {
		t.Fatalf("default candidates %v", got)
	}
	if cfg.Monitor.ProductName != "SuperB Epsilon V2" || cfg.Battery.Capacity != 200 || cfg.CAN.Bitrate != 250000 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("missing file should yield defaults")
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "bms.toml", `
[can]
interface = "vecan0"
bitrate = 500000
node_ids = "2, 3,0x0A"
read_timeout = "250ms"

[monitor]
update_interval = 2.5
product_name = "  Pack A "

[battery]
capacity = 100.0

[log]
level = "WARNING"

[[objects]]
name = "cell_min"
index = 0x2100
subindex = 1
encoding = "UINT16"
divisor = 1000
unit = "V"
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CAN.Interface != "vecan0" || cfg.CAN.Bitrate != 500000 {
		t.Fatalf("can section %+v", cfg.CAN)
	}
	if cfg.CAN.NodeIDs.Auto || !reflect.DeepEqual(cfg.CAN.Candidates(), []canopen.NodeID{2, 3, 10}) {
		t.Fatalf("node ids %v", cfg.CAN.NodeIDs)
	}
	if cfg.CAN.ReadTimeout.Std() != 250*time.Millisecond || cfg.CAN.WriteTimeout.Std() != canopen.DefaultDownloadTimeout {
		t.Fatalf("timeouts %v %v", cfg.CAN.ReadTimeout, cfg.CAN.WriteTimeout)
	}
	if cfg.Monitor.UpdateInterval.Std() != 2500*time.Millisecond {
		t.Fatalf("update interval %v", cfg.Monitor.UpdateInterval)
	}
	if cfg.Monitor.ProductName != "Pack A" || cfg.Monitor.DeviceInstanceStart != 1 {
		t.Fatalf("monitor %+v", cfg.Monitor)
	}
	if cfg.Battery.Capacity != 100 || cfg.Battery.Chemistry != "LiFePO4" {
		t.Fatalf("battery %+v", cfg.Battery)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("log level %q", cfg.Log.Level)
	}
	reg, err := cfg.Registry()
	if err != nil {
		t.Fatal(err)
	}
	d, ok := reg.Lookup("cell_min")
	if !ok || d.Ref != (canopen.ObjectRef{Index: 0x2100, Subindex: 1}) || d.Encoding != canopen.Uint16 || d.Divisor != 1000 {
		t.Fatalf("custom object %+v", d)
	}
	if names := reg.Names(); names[len(names)-1] != "cell_min" {
		t.Fatalf("custom object should be last, got %v", names)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "bms.yaml", `
can:
  interface: can1
  node_ids: auto
  scan_first: 5
  scan_last: 7
  scan_timeout: 50ms
monitor:
  update_interval: 1s
  device_instance_start: 10
objects:
  - name: heater
    index: 0x2200
    encoding: u8
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg.CAN.Candidates(), []canopen.NodeID{5, 6, 7}) {
		t.Fatalf("candidates %v", cfg.CAN.Candidates())
	}
	if cfg.CAN.ScanTimeout.Std() != 50*time.Millisecond || cfg.Monitor.DeviceInstanceStart != 10 {
		t.Fatalf("cfg %+v", cfg)
	}
	if len(cfg.Objects) != 1 || cfg.Objects[0].Divisor != 1 || cfg.Objects[0].Encoding != canopen.Uint8 {
		t.Fatalf("objects %+v", cfg.Objects)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		name, file, body, want string
	}{
		{"unknown toml key", "a.toml", "[can]\nbogus = 1\n", "unknown keys"},
		{"unknown yaml key", "a.yaml", "can:\n  bogus: 1\n", "bogus"},
		{"bad node", "a.toml", "[can]\nnode_ids = \"1,200\"\n", "node"},
		{"duplicate node", "a.toml", "[can]\nnode_ids = \"4,4\"\n", "twice"},
		{"scan range", "a.toml", "[can]\nscan_first = 9\nscan_last = 2\n", "scan_last"},
		{"zero interval", "a.toml", "[monitor]\nupdate_interval = \"0s\"\n", "update_interval"},
		{"bad level", "a.yaml", "log:\n  level: loud\n", "level"},
		{"bad encoding", "a.toml", "[[objects]]\nname = \"x\"\nindex = 1\nencoding = \"float\"\n", "encoding"},
		{"duplicate object", "a.toml", "[[objects]]\nname = \"soc\"\nindex = 0x2000\nencoding = \"u8\"\n", "duplicate"},
		{"format", "a.ini", "[can]\n", "unsupported config format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.file, tc.body), nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	cfg := Default()
	cfg.CAN.Interface = " can0 "
	cfg.Log.Level = "WARNING"
	before := cfg
	if err := Validate(&cfg); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, before) {
		t.Fatalf("Validate mutated the config")
	}
	Normalize(&cfg)
	if cfg.CAN.Interface != "can0" || cfg.Log.Level != "warn" {
		t.Fatalf("normalize %+v", cfg)
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	for in, want := range map[string]time.Duration{
		"1s": time.Second, "250ms": 250 * time.Millisecond, "1.5": 1500 * time.Millisecond, " 2 ": 2 * time.Second,
	} {
		if err := d.UnmarshalText([]byte(in)); err != nil || d.Std() != want {
			t.Fatalf("%q -> %v, %v", in, d, err)
		}
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatalf("expected error")
	}
}
