package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notnil/canbms/canopen"
)

type scanFlags struct {
	first int
	last  int
}

func newScanCmd(g *globalFlags) *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover CANopen nodes",
		Long: `Probe each candidate node id by reading its device type object (0x1000:00).

Without --first/--last the configured candidates are probed: the scan range
when node_ids is "auto", otherwise the configured node list.`,
		Example: `  # Probe the default range 1..9
  bmsctl scan

  # Probe the whole node id space on can1
  bmsctl scan --interface can1 --first 1 --last 127`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, g, flags)
		},
	}
	cmd.Flags().IntVar(&flags.first, "first", 0, "First node id to probe")
	cmd.Flags().IntVar(&flags.last, "last", 0, "Last node id to probe")
	return cmd
}

func runScan(cmd *cobra.Command, g *globalFlags, flags *scanFlags) error {
	s, err := openSession(cmd, g)
	if err != nil {
		return err
	}
	defer s.Close()

	candidates := s.cfg.CAN.Candidates()
	if flags.first > 0 || flags.last > 0 {
		first, last := flags.first, flags.last
		if first == 0 {
			first = int(canopen.MinNodeID)
		}
		if last == 0 {
			last = int(canopen.MaxNodeID)
		}
		if first > int(canopen.MaxNodeID) || last < first {
			return fmt.Errorf("invalid scan range %d..%d", first, last)
		}
		candidates = canopen.NodeRange(canopen.NodeID(first), canopen.NodeID(min(last, 255)))
	}

	found, err := s.reader.Scan(candidates)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(found) == 0 {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("No nodes found among %d candidate(s)", len(candidates))))
		return nil
	}
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Found %d node(s)", len(found))))
	t := table{headers: []string{"NODE", "REQUEST", "RESPONSE"}}
	for _, n := range found {
		t.add(fmt.Sprintf("%d", n), fmt.Sprintf("0x%03X", n.RequestID()), fmt.Sprintf("0x%03X", n.ResponseID()))
	}
	fmt.Fprint(out, t.render())
	return nil
}
