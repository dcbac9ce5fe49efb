package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/notnil/canbms/canopen"
)

type writeFlags struct {
	encoding string
}

func newWriteCmd(g *globalFlags) *cobra.Command {
	flags := &writeFlags{}

	cmd := &cobra.Command{
		Use:   "write <node> <index:sub> <value>",
		Short: "Write an integer to an object with an expedited download",
		Example: `  bmsctl write 1 2100:01 1234 --encoding u16
  bmsctl write 1 0x2100:02 -5 --encoding i8`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, g, flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.encoding, "encoding", "", "Value encoding: u8|i8|u16|i16|u32|i32")
	_ = cmd.MarkFlagRequired("encoding")
	return cmd
}

func runWrite(cmd *cobra.Command, g *globalFlags, flags *writeFlags, args []string) error {
	node, err := canopen.ParseNodeID(args[0])
	if err != nil {
		return err
	}
	ref, err := canopen.ParseObjectRef(args[1])
	if err != nil {
		return err
	}
	value, err := strconv.ParseInt(args[2], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q", args[2])
	}
	enc, err := canopen.ParseEncoding(flags.encoding)
	if err != nil {
		return err
	}
	s, err := openSession(cmd, g)
	if err != nil {
		return err
	}
	defer s.Close()

	err = s.client.WriteValue(node, ref, enc, value, s.cfg.CAN.WriteTimeout.Std())
	var abort *canopen.AbortError
	switch {
	case errors.As(err, &abort):
		return fmt.Errorf("node %d aborted write of %v: 0x%08X %s", node, ref, abort.Code, abort.Description())
	case err != nil:
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("%v on node %d set to %d", ref, node, value)))
	return nil
}
