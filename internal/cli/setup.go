package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kitchencompanion/kitchencompanion/internal/config"
)

func newSetupCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-time configuration",
		Long:  "Choose the language model, embedding provider, and API keys kitchencompanion uses.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := e.configPath
			if path == "" {
				p, err := config.Path()
				if err != nil {
					return fmt.Errorf("locate config: %w", err)
				}
				path = p
			}

			cfg, err := runSetup(cmd.InOrStdin(), cmd.OutOrStdout(), e.cfg)
			if err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration saved to %s\n", path)
			fmt.Fprintln(out, "Run `kitchencompanion ingest <cookbook.txt>` to load a cookbook.")
			return nil
		},
	}
}

// runSetup asks for provider choices on in, starting from cfg.
func runSetup(in io.Reader, out io.Writer, cfg config.Config) (config.Config, error) {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "Welcome to kitchencompanion! Let's pick your models.")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Which language model should answer?")
	fmt.Fprintln(out, "  [1] OpenAI (gpt-4o-mini)")
	fmt.Fprintln(out, "  [2] Claude (Anthropic)")
	fmt.Fprintln(out, "  [3] Gemini (Google)")
	fmt.Fprintln(out, "  [4] Ollama (local)")
	fmt.Fprint(out, "> ")

	switch readLineBuf(reader) {
	case "2":
		cfg.LLM.Provider, cfg.LLM.Model = "claude", "claude-3-5-haiku-latest"
		fmt.Fprint(out, "Enter your Anthropic API key (or press Enter to set ANTHROPIC_API_KEY later): ")
		if key := readLineBuf(reader); key != "" {
			cfg.Keys.Anthropic = key
		}
	case "3":
		cfg.LLM.Provider, cfg.LLM.Model = "gemini", "gemini-1.5-flash"
		fmt.Fprint(out, "Enter your Gemini API key (or press Enter to set GEMINI_API_KEY later): ")
		if key := readLineBuf(reader); key != "" {
			cfg.Keys.Gemini = key
		}
	case "4":
		cfg.LLM.Provider, cfg.LLM.Model = "ollama", cfg.Ollama.CompletionModel
	case "", "1":
		cfg.LLM.Provider, cfg.LLM.Model = "openai", config.Default().LLM.Model
		fmt.Fprint(out, "Enter your OpenAI API key (or press Enter to set OPENAI_API_KEY later): ")
		if key := readLineBuf(reader); key != "" {
			cfg.Keys.OpenAI = key
		}
	default:
		fmt.Fprintln(out, "Unrecognized choice; keeping", cfg.LLM.Provider)
	}

	fmt.Fprintln(out)

	fmt.Fprintln(out, "For cookbook embeddings, use:")
	fmt.Fprintln(out, "  [1] OpenAI embeddings")
	fmt.Fprintln(out, "  [2] Local embeddings via Ollama (private, requires Ollama)")
	fmt.Fprint(out, "> ")

	switch readLineBuf(reader) {
	case "2":
		cfg.LLM.Embedder = "ollama"
		fmt.Fprintf(out, "Ollama host (press Enter for %s): ", cfg.Ollama.Host)
		if host := readLineBuf(reader); host != "" {
			cfg.Ollama.Host = host
		}
	default:
		cfg.LLM.Embedder = "openai"
		if cfg.Keys.OpenAI == "" {
			fmt.Fprint(out, "Enter your OpenAI API key: ")
			cfg.Keys.OpenAI = readLineBuf(reader)
		}
	}
	fmt.Fprintln(out)

	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// readLineBuf reads a trimmed line from a bufio.Reader.
func readLineBuf(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}
