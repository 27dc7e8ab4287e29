package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kitchencompanion/kitchencompanion/internal/knowledge"
)

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cookbook knowledge store state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := e.manager()
			defer mgr.Close()
			mgr.ReloadIfStale()
			info := mgr.Info()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nStore:    %s\n", info.Path)
			fmt.Fprintf(out, "State:    %s\n", info.State)
			if info.State == knowledge.StateUnloaded {
				fmt.Fprintf(out, "Searched: %s\n", strings.Join(knowledge.SearchPaths(os.Getenv("KITCHEN_VECTORSTORE_PATH")), ", "))
				fmt.Fprintln(out, "\nRun `kitchencompanion ingest <file>` to build one.")
				return nil
			}

			var size int64
			if fi, err := os.Stat(filepath.Join(info.Path, knowledge.IndexFile)); err == nil {
				size = fi.Size()
			}
			fmt.Fprintf(out, "Passages: %d\n", info.VectorCount)
			fmt.Fprintf(out, "Version:  %s\n", info.Version.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Embedder: %s (%d dimensions)\n", orNone(info.EmbedModel), info.Dimension)
			fmt.Fprintf(out, "Size:     %s\n", formatBytes(size))
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// formatBytes returns a human-readable byte size.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
