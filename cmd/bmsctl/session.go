package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notnil/canbms/bms"
	"github.com/notnil/canbms/canbus"
	"github.com/notnil/canbms/canopen"
	"github.com/notnil/canbms/internal/bmssim"
	"github.com/notnil/canbms/internal/config"
)

type globalFlags struct {
	configPath  string
	iface       string
	bitrate     int
	logLevel    string
	logFile     string
	traceFrames bool
	capture     string
	sim         bool
	simNodes    string
}

func (g *globalFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file (.toml, .yaml or .yml)")
	pf.StringVar(&g.iface, "interface", "", "CAN interface (overrides config, default can0)")
	pf.IntVar(&g.bitrate, "bitrate", 0, "CAN bitrate (overrides config, default 250000)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&g.logFile, "log-file", "", "Also write logs to this file")
	pf.BoolVar(&g.traceFrames, "trace-frames", false, "Log every SDO frame sent and received")
	pf.StringVar(&g.capture, "capture", "", "Write all CAN traffic to this pcap file")
	pf.BoolVar(&g.sim, "sim", false, "Use simulated batteries instead of a CAN interface")
	pf.StringVar(&g.simNodes, "sim-nodes", "1,2", "Node ids of the simulated batteries")
}

// session is the per-command wiring of config, logging and the bus client.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *bms.Registry
	client   *canopen.Client
	reader   *bms.Reader
	closers  []func() error
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command, g *globalFlags) (config.Config, error) {
	boot := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.Load(g.configPath, boot)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("interface") {
		cfg.CAN.Interface = g.iface
	}
	if flags.Changed("bitrate") {
		cfg.CAN.Bitrate = g.bitrate
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = g.logFile
	}
	if flags.Changed("trace-frames") {
		cfg.Log.TraceFrames = g.traceFrames
	}
	if flags.Changed("capture") {
		cfg.Log.Capture = g.capture
	}
	if err := config.Validate(&cfg); err != nil {
		return config.Config{}, err
	}
	config.Normalize(&cfg)
	return cfg, nil
}

// newLogger writes text logs to stderr and, when path can be opened, to
// path as well.
func newLogger(stderr io.Writer, path string, level slog.Level) (*slog.Logger, func() error) {
	w := stderr
	closeFn := func() error { return nil }
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: cannot write to %s, logging to console only\n", path)
		} else {
			w = io.MultiWriter(stderr, f)
			closeFn = f.Close
		}
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, closeFn
}

// openSession loads config, sets up logging, dials the bus and connects.
func openSession(cmd *cobra.Command, g *globalFlags) (*session, error) {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return nil, err
	}
	logger, closeLog := newLogger(cmd.ErrOrStderr(), cfg.Log.File, cfg.Log.SlogLevel())
	s := &session{cfg: cfg, logger: logger, closers: []func() error{closeLog}}

	s.registry, err = cfg.Registry()
	if err != nil {
		s.Close()
		return nil, err
	}

	var dial canopen.Dialer
	if g.sim {
		dial, err = s.simDialer(g.simNodes)
	} else {
		dial, err = s.socketCANDialer()
	}
	if err != nil {
		s.Close()
		return nil, err
	}

	s.client = canopen.NewClient(s.wrap(dial), logger)
	if err := s.client.Connect(); err != nil {
		s.Close()
		return nil, err
	}
	s.reader = bms.NewReader(s.client, s.registry,
		bms.WithReadTimeout(cfg.CAN.ReadTimeout.Std()),
		bms.WithScanTimeout(cfg.CAN.ScanTimeout.Std()),
		bms.WithLogger(logger),
	)
	return s, nil
}

func (s *session) socketCANDialer() (canopen.Dialer, error) {
	c := s.cfg.CAN
	if c.ConfigureInterface && !strings.HasPrefix(c.Interface, "vecan") {
		s.logger.Info("configuring can interface", "interface", c.Interface, "bitrate", c.Bitrate)
		if err := canbus.PrepareInterface(c.Interface, uint32(c.Bitrate)); err != nil {
			return nil, fmt.Errorf("configure %s: %w", c.Interface, err)
		}
	}
	return func() (canbus.Bus, error) {
		bus, err := canbus.DialSocketCAN(c.Interface)
		if err != nil {
			return nil, err
		}
		s.logger.Info("connected to can interface", "interface", c.Interface)
		return bus, nil
	}, nil
}

// simDialer starts simulated batteries at the given node ids on a loopback
// bus.
func (s *session) simDialer(nodeList string) (canopen.Dialer, error) {
	ids, err := canopen.ParseNodeList(nodeList)
	if err != nil {
		return nil, fmt.Errorf("--sim-nodes: %w", err)
	}
	builtin := bms.DefaultRegistry()
	lb := canbus.NewLoopbackBus()
	net := bmssim.NewNetwork(lb.Open(), s.logger)
	for i, id := range ids {
		node, err := bmssim.NewBattery(id, simState(i))
		if err != nil {
			_ = net.Close()
			return nil, err
		}
		// Objects declared in the config file read as zero.
		for _, d := range s.registry.Definitions() {
			if _, ok := builtin.Lookup(d.Name); !ok {
				_ = node.SetValue(d, 0)
			}
		}
		net.Add(node)
	}
	s.closers = append(s.closers, net.Close, lb.Close)
	s.logger.Info("simulated batteries started", "nodes", nodeList)
	return func() (canbus.Bus, error) { return lb.Open(), nil }, nil
}

func simState(i int) bmssim.State {
	return bmssim.State{
		Voltage:     13.2 + 0.05*float64(i),
		SoC:         float64(90 - 5*i),
		Temperature: 21.5,
		Current:     -3.5,
		Cycles:      float64(40 + i),
		AhSinceEq:   18.25,
		HighestTemp: 24,
		VendorID:    0x000002A5,
		ProductCode: 0x00000100,
		Revision:    0x00020001,
		Serial:      uint32(100200 + i),
		AhExpended:  812.5,
		AhReturned:  790.25,
		Legacy:      i%2 == 1,
	}
}

// wrap layers frame tracing and capture over dial as configured.
func (s *session) wrap(dial canopen.Dialer) canopen.Dialer {
	return func() (canbus.Bus, error) {
		bus, err := dial()
		if err != nil {
			return nil, err
		}
		if s.cfg.Log.TraceFrames {
			bus = canbus.NewLoggedBus(bus, s.logger, slog.LevelInfo, canbus.LogAll, canopen.SDOAny())
		}
		if path := s.cfg.Log.Capture; path != "" {
			f, err := os.Create(path)
			if err != nil {
				_ = bus.Close()
				return nil, fmt.Errorf("capture: %w", err)
			}
			captured, err := canbus.NewCaptureBus(bus, f)
			if err != nil {
				_ = f.Close()
				_ = bus.Close()
				return nil, err
			}
			s.closers = append(s.closers, f.Close)
			bus = captured
		}
		return bus, nil
	}
}

// nodes returns the explicit node arguments, or the configured candidates.
func (s *session) nodes(args []string) ([]canopen.NodeID, bool, error) {
	if len(args) > 0 {
		ids, err := canopen.ParseNodeList(strings.Join(args, ","))
		return ids, false, err
	}
	return s.cfg.CAN.Candidates(), s.cfg.CAN.NodeIDs.Auto, nil
}

// Close disconnects and releases everything in reverse order of setup.
func (s *session) Close() error {
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Disconnect())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}
