package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/units"
)

func newConvertCmd(e *env) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "convert <amount> <from> <to>",
		Short: "Convert an amount between kitchen units",
		Example: `  kitchencompanion convert 1 cup tbsp
  kitchencompanion convert --list`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			table := units.Default()
			out := cmd.OutOrStdout()
			if list {
				for _, p := range table.Pairs() {
					f, _ := table.Factor(p.From, p.To)
					fmt.Fprintf(out, "%-5s -> %-5s x %g\n", p.From, p.To, f)
				}
				return nil
			}

			amount, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("amount %q is not a number", args[0])
			}
			c, err := table.Convert(amount, args[1], args[2])
			if err != nil {
				return fmt.Errorf("I'm not sure how to convert %s to %s", args[1], args[2])
			}
			e.log.Debug("converted", zap.String("from", c.From), zap.String("to", c.To))
			fmt.Fprintln(out, c.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list supported conversions")
	return cmd
}
