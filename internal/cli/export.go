package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kitchencompanion/kitchencompanion/internal/export"
)

func newExportCmd(e *env) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the passages in the knowledge store",
		Long: `Render the knowledge store's passages for reading or re-ingesting.

Formats: ` + strings.Join(export.ValidFormats(), ", "),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, ok := export.Get(format)
			if !ok {
				return fmt.Errorf("unknown format %q; valid formats: %s", format, strings.Join(export.ValidFormats(), ", "))
			}

			mgr := e.manager()
			defer mgr.Close()
			store, release := mgr.Acquire()
			defer release()
			if store == nil {
				return fmt.Errorf("no cookbook found at %s. Run `kitchencompanion ingest <file>` first", mgr.Dir())
			}

			text, err := exp.Export(export.FromStore(store))
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			}
			if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", format, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "output format")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}
