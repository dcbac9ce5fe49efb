package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newDumpCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dump [node...]",
		Short: "Read every registry parameter from one or more nodes",
		Long: `Read all registry parameters in order and print the ones each node answered.
Parameters a node does not support are left out.

Without node arguments the configured nodes are used; with node_ids "auto"
they are discovered by a scan first.`,
		Example: `  bmsctl dump 1 2
  bmsctl --sim dump`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, g, args)
		},
	}
}

func runDump(cmd *cobra.Command, g *globalFlags, args []string) error {
	s, err := openSession(cmd, g)
	if err != nil {
		return err
	}
	defer s.Close()

	nodes, discover, err := s.nodes(args)
	if err != nil {
		return err
	}
	if discover {
		if nodes, err = s.reader.Scan(nodes); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if len(nodes) == 0 {
			return fmt.Errorf("no canopen nodes found")
		}
	}

	out := cmd.OutOrStdout()
	for i, node := range nodes {
		readings, err := s.reader.ReadAll(node)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		if len(readings) == 0 {
			fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("Node %d: no data received", node)))
			continue
		}
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Node %d", node)))
		t := table{headers: []string{"PARAMETER", "VALUE", "UNIT", "OBJECT"}}
		for _, r := range readings {
			t.add(r.Label(), strconv.FormatFloat(r.Value, 'f', -1, 64), r.Unit, r.Ref.String())
		}
		fmt.Fprint(out, t.render())
	}
	return nil
}
