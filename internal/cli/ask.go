package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kitchencompanion/kitchencompanion/internal/rag"
)

func newAskCmd(e *env) *cobra.Command {
	var (
		showSources bool
		k           int
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one cooking question from the cookbook",
		Long: `Answer a single question from the loaded cookbook without starting a chat.

Examples:
  kitchencompanion ask "why does salt make meat juicier?"
  kitchencompanion ask "how hot should the oil be for frying?" --sources`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			gen, emb, err := e.providers()
			if err != nil {
				return err
			}
			mgr := e.manager()
			defer mgr.Close()

			if k <= 0 {
				k = e.cfg.Knowledge.TopK
			}
			res, err := e.synthesizer(gen, emb).AnswerFrom(cmd.Context(), mgr, question, k)
			if errors.Is(err, rag.ErrStoreUnavailable) {
				return fmt.Errorf("no cookbook found at %s. Run `kitchencompanion ingest <file>` first", mgr.Dir())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Empty() {
				fmt.Fprintln(out, "The cookbook doesn't cover that.")
				return nil
			}
			fmt.Fprintln(out, strings.TrimSpace(res.AnswerText))
			if showSources {
				fmt.Fprintln(out)
				fmt.Fprint(out, formatSources(res))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSources, "sources", false, "print the passages the answer was drawn from")
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "passages to retrieve (default from config)")
	return cmd
}

func formatSources(res rag.Result) string {
	var b strings.Builder
	for i, m := range res.SourcePassages {
		src := m.Passage.Source
		if src == "" {
			src = "cookbook"
		}
		fmt.Fprintf(&b, "[%d] %s (score %.2f)\n", i+1, src, m.Score)
		fmt.Fprintf(&b, "    %s\n", excerpt(m.Passage.Text, 160))
	}
	return b.String()
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
