package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newObjectsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "objects",
		Short: "List the parameter registry",
		Long:  `List every named parameter in read order: the built-in table followed by the objects declared in the config file.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			reg, err := cfg.Registry()
			if err != nil {
				return err
			}
			t := table{headers: []string{"NAME", "OBJECT", "ENCODING", "DIVISOR", "UNIT", "DESCRIPTION"}}
			for _, d := range reg.Definitions() {
				t.add(d.Name, d.Ref.String(), d.Encoding.String(), strconv.FormatFloat(d.Divisor, 'f', -1, 64), d.Unit, d.DisplayName)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d parameters", reg.Len())))
			fmt.Fprint(out, t.render())
			return nil
		},
	}
}
