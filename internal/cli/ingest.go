package cli

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kitchencompanion/kitchencompanion/internal/ingest"
)

func newIngestCmd(e *env) *cobra.Command {
	var (
		dir     string
		merge   bool
		size    int
		overlap int
	)

	cmd := &cobra.Command{
		Use:   "ingest <file|dir>...",
		Short: "Build the cookbook knowledge store from text files",
		Long: `Chunk and embed plain text or markdown cookbooks into the knowledge store.
Directories are walked recursively; patterns in a .kitchenignore file are skipped.

Without --merge the store is rebuilt from the given files alone. With --merge
passages already in the store are kept, and those from files ingested again
are replaced. A running chat or serve picks up the new store on its next turn.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			emb, err := e.embedder()
			if err != nil {
				return err
			}
			if emb == nil {
				return fmt.Errorf("%w: set [llm] embedder to openai or ollama", ingest.ErrNoEmbedder)
			}
			if dir == "" {
				dir = e.storeDir()
			}

			opts := ingest.Options{
				ChunkSize: size,
				Overlap:   overlap,
				Merge:     merge,
			}
			if term.IsTerminal(int(os.Stderr.Fd())) {
				bar := progressbar.NewOptions(-1,
					progressbar.OptionSetDescription("  Embedding passages"),
					progressbar.OptionSpinnerType(14),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				defer bar.Finish()
				opts.Progress = func(delta int) { _ = bar.Add(delta) }
			}

			sum, err := ingest.New(emb, e.log).Ingest(cmd.Context(), dir, args, opts)
			for _, skipped := range sum.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "  skipped: %v\n", skipped)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingested %d documents into %s\n", sum.Documents, sum.Dir)
			fmt.Fprintf(out, "  passages: %d added", sum.Added)
			if merge {
				fmt.Fprintf(out, ", %d kept, %d replaced", sum.Kept, sum.Replaced)
			}
			fmt.Fprintf(out, " (%d total)\n", sum.Total())
			fmt.Fprintf(out, "  embeddings: %s, %d dimensions\n", sum.EmbedModel, sum.Dimension)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "store directory (default from config or discovery)")
	cmd.Flags().BoolVar(&merge, "merge", false, "add to the existing store instead of replacing it")
	cmd.Flags().IntVar(&size, "chunk-size", ingest.DefaultChunkSize, "maximum characters per passage")
	cmd.Flags().IntVar(&overlap, "overlap", ingest.DefaultOverlap, "characters shared by adjacent passages; negative disables")
	return cmd
}
