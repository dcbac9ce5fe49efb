package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/notnil/canbms/canopen"
)

type readFlags struct {
	encoding string
}

func newReadCmd(g *globalFlags) *cobra.Command {
	flags := &readFlags{}

	cmd := &cobra.Command{
		Use:   "read <node> <parameter|index:sub>",
		Short: "Read one parameter or object from a node",
		Long: `Read a named registry parameter (see "bmsctl objects") and print the
converted value, or read a raw object given as index:sub in hex and print the
decoded integer using --encoding.`,
		Example: `  bmsctl read 1 voltage
  bmsctl read 1 1018:04 --encoding u32`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, g, flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.encoding, "encoding", "u32", "Encoding for raw objects: u8|i8|u16|i16|u32|i32")
	return cmd
}

func runRead(cmd *cobra.Command, g *globalFlags, flags *readFlags, args []string) error {
	node, err := canopen.ParseNodeID(args[0])
	if err != nil {
		return err
	}
	s, err := openSession(cmd, g)
	if err != nil {
		return err
	}
	defer s.Close()
	out := cmd.OutOrStdout()

	if d, ok := s.registry.Lookup(args[1]); ok {
		v, ok, err := s.reader.ReadNamed(node, d.Name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s unavailable on node %d (no response or not supported)", d.Name, node)
		}
		if d.Unit == "" {
			fmt.Fprintf(out, "%s: %s\n", d.Label(), strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			fmt.Fprintf(out, "%s: %s %s\n", d.Label(), strconv.FormatFloat(v, 'f', -1, 64), d.Unit)
		}
		return nil
	}

	ref, err := canopen.ParseObjectRef(args[1])
	if err != nil {
		return fmt.Errorf("%q is neither a known parameter nor an object reference", args[1])
	}
	enc, err := canopen.ParseEncoding(flags.encoding)
	if err != nil {
		return err
	}
	v, err := s.client.ReadValue(node, ref, enc, s.cfg.CAN.ReadTimeout.Std())
	var abort *canopen.AbortError
	switch {
	case errors.As(err, &abort):
		return fmt.Errorf("node %d aborted read of %v: 0x%08X %s", node, ref, abort.Code, abort.Description())
	case err != nil:
		return err
	}
	fmt.Fprintf(out, "%v = %d (0x%X) %s\n", ref, v, v, mutedStyle.Render(enc.String()))
	return nil
}
