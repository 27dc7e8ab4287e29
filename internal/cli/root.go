// Package cli defines the Cobra command tree for the kitchencompanion CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/config"
	"github.com/kitchencompanion/kitchencompanion/internal/logging"
)

var (
	// version, commit, date are set via -ldflags at build time.
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// env is the configuration and logger shared by every command. It is
// filled in by the root command's PersistentPreRunE.
type env struct {
	configPath string
	verbose    bool

	cfg config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "kitchencompanion",
		Short: "Cooking assistant backed by your own cookbooks",
		Long: `kitchencompanion answers cooking questions from the cookbooks you ingest,
converts kitchen units, and finds grocery stores near you.

Run 'kitchencompanion ingest <file>' to load a cookbook, then
'kitchencompanion chat' to start talking.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.log != nil {
				_ = e.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&e.configPath, "config", "", "config file (default ~/.config/kitchencompanion/config.toml)")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newSetupCmd(e),
		newIngestCmd(e),
		newChatCmd(e),
		newAskCmd(e),
		newConvertCmd(e),
		newStatusCmd(e),
		newExportCmd(e),
		newServeCmd(e),
		newVersionCmd(),
	)
	return root
}

func (e *env) load() error {
	log, err := logging.New(e.verbose)
	if err != nil {
		return err
	}
	e.log = log

	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

// Execute runs the root command.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kitchencompanion %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
