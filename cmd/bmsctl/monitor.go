package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/notnil/canbms/internal/monitor"
)

type monitorFlags struct {
	output   string
	duration time.Duration
}

func newMonitorCmd(g *globalFlags) *cobra.Command {
	flags := &monitorFlags{}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll every battery and publish derived state",
		Long: `Poll each configured battery on its own timer (monitor.update_interval) and
publish a snapshot per poll: voltage, current, power, temperature, state of
charge, consumed Ah, charge cycles and total Ah drawn.

With --output log snapshots are logged; with --output yaml they are written
to stdout as a stream of YAML documents. The monitor runs until interrupted
or until --duration elapses.`,
		Example: `  bmsctl monitor --config /etc/bms/config.toml
  bmsctl --sim monitor --output yaml --duration 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, g, flags)
		},
	}
	cmd.Flags().StringVar(&flags.output, "output", "log", "Snapshot output: log|yaml")
	cmd.Flags().DurationVar(&flags.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

func runMonitor(cmd *cobra.Command, g *globalFlags, flags *monitorFlags) error {
	if flags.output != "log" && flags.output != "yaml" {
		return fmt.Errorf("invalid output format '%s'; must be 'log' or 'yaml'", flags.output)
	}
	s, err := openSession(cmd, g)
	if err != nil {
		return err
	}
	defer s.Close()

	var pub monitor.Publisher = monitor.LogPublisher{Logger: s.logger}
	if flags.output == "yaml" {
		stream := monitor.NewStreamPublisher(cmd.OutOrStdout())
		defer stream.Close()
		pub = stream
	}

	cfg := s.cfg
	svc, err := monitor.New(monitor.Config{
		Candidates:          cfg.CAN.Candidates(),
		Discover:            cfg.CAN.NodeIDs.Auto,
		Interval:            cfg.Monitor.UpdateInterval.Std(),
		DeviceInstanceStart: cfg.Monitor.DeviceInstanceStart,
		ProductName:         cfg.Monitor.ProductName,
		Capacity:            cfg.Battery.Capacity,
	}, s.reader, pub, s.logger)
	if err != nil {
		return err
	}
	if _, err := svc.Setup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flags.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.duration)
		defer cancel()
	}
	return svc.Run(ctx)
}
