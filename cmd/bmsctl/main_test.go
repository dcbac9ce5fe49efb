package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/gopacket/pcapgo"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScanSim(t *testing.T) {
	out, err := execute(t, "--sim", "--sim-nodes", "2,4", "scan")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out, "Found 2 node(s)") || !strings.Contains(out, "0x602") || !strings.Contains(out, "0x584") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestReadSim(t *testing.T) {
	out, err := execute(t, "--sim", "read", "1", "soc")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(out) != "State of Charge: 90 %" {
		t.Fatalf("output %q", out)
	}
	out, err = execute(t, "--sim", "read", "1", "1000:00")
	if err != nil || !strings.Contains(out, "1000:00 = 983441 (0xF0191)") {
		t.Fatalf("raw read %q %v", out, err)
	}
	// Node 2 runs legacy firmware without Ah counters.
	if _, err := execute(t, "--sim", "read", "2", "ah_expended"); err == nil || !strings.Contains(err.Error(), "unavailable") {
		t.Fatalf("legacy read error %v", err)
	}
	if _, err := execute(t, "--sim", "read", "1", "bogus"); err == nil {
		t.Fatalf("unknown parameter should fail")
	}
}

func TestWriteSim(t *testing.T) {
	out, err := execute(t, "--sim", "write", "1", "6081:00", "50", "--encoding", "u8")
	if err != nil || !strings.Contains(out, "6081:00 on node 1 set to 50") {
		t.Fatalf("write %q %v", out, err)
	}
	_, err = execute(t, "--sim", "write", "1", "1018:04", "1", "--encoding", "u32")
	if err == nil || !strings.Contains(err.Error(), "0x06010002") {
		t.Fatalf("read-only write error %v", err)
	}
	_, err = execute(t, "--sim", "write", "1", "6081:00", "1")
	if err == nil || !strings.Contains(err.Error(), "required flag") {
		t.Fatalf("missing encoding error %v", err)
	}
}

func TestDumpSim(t *testing.T) {
	out, err := execute(t, "--sim", "dump")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	for _, want := range []string{"Node 1", "Node 2", "Battery Voltage", "13.2", "Ah Expended", "6051:00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	node2 := out[strings.Index(out, "Node 2"):]
	if strings.Contains(node2, "Ah Expended") {
		t.Fatalf("legacy node should not report Ah Expended:\n%s", node2)
	}
}

func TestMonitorSimYAML(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "bms.yaml")
	body := "can:\n  node_ids: \"1\"\nmonitor:\n  update_interval: 20ms\nbattery:\n  capacity: 100\n"
	if err := os.WriteFile(cfg, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "--sim", "--config", cfg, "monitor", "--output", "yaml", "--duration", "150ms")
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	for _, want := range []string{"node: 1", "connected: true", "consumed_ah: 10", "product_name: SuperB Epsilon V2 (Node 1)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestObjectsWithConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "bms.toml")
	body := "[[objects]]\nname = \"cell_min\"\nindex = 0x2100\nsubindex = 1\nencoding = \"u16\"\ndivisor = 1000\nunit = \"V\"\n"
	if err := os.WriteFile(cfg, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "--config", cfg, "objects")
	if err != nil {
		t.Fatalf("objects: %v", err)
	}
	if !strings.Contains(out, "14 parameters") || !strings.Contains(out, "cell_min") || !strings.Contains(out, "2100:01") {
		t.Fatalf("output:\n%s", out)
	}
	if strings.Index(out, "ah_returned") > strings.Index(out, "cell_min") {
		t.Fatalf("custom objects must follow the built-in table")
	}

	out, err = execute(t, "--sim", "--config", cfg, "read", "1", "cell_min")
	if err != nil || strings.TrimSpace(out) != "cell_min: 0 V" {
		t.Fatalf("custom read %q %v", out, err)
	}
}

func TestCaptureSim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sdo.pcap")
	if _, err := execute(t, "--sim", "--capture", path, "read", "1", "voltage"); err != nil {
		t.Fatalf("read: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	var packets int
	for {
		if _, _, err := r.ReadPacketData(); err != nil {
			break
		}
		packets++
	}
	if packets != 2 {
		t.Fatalf("captured %d packets, want request and response", packets)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || !strings.HasPrefix(out, "bmsctl version dev") {
		t.Fatalf("version %q %v", out, err)
	}
}
