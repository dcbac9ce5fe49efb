package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "bmsctl",
		Short: "Read and monitor CANopen battery management units",
		Long: `bmsctl talks to battery management units over CANopen expedited SDO.

It can discover nodes on a CAN interface, read and write single objects,
dump every known battery parameter and run a polling monitor that publishes
derived battery state (power, consumed Ah) per node.

Use --sim to run against simulated batteries instead of a CAN interface.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	g.register(rootCmd)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newScanCmd(g))
	rootCmd.AddCommand(newReadCmd(g))
	rootCmd.AddCommand(newWriteCmd(g))
	rootCmd.AddCommand(newDumpCmd(g))
	rootCmd.AddCommand(newMonitorCmd(g))
	rootCmd.AddCommand(newObjectsCmd(g))
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "bmsctl version %s\n", version)
			fmt.Fprintf(out, "commit: %s\n", commit)
			fmt.Fprintf(out, "date: %s\n", date)
		},
	}
}
