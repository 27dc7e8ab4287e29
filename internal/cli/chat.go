package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kitchencompanion/kitchencompanion/internal/session"
	"github.com/kitchencompanion/kitchencompanion/internal/worker"
)

func newChatCmd(e *env) *cobra.Command {
	var system string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk with the kitchen assistant",
		Long: `Start a conversation. Each line you type is one turn; cooking questions are
answered with notes from your cookbook when it covers them.

Slash commands reach the kitchen tools directly, for example:
  /convert 2 cup ml
  /city Portland, Oregon
  /grocery

Ctrl-C cancels the reply in progress. /quit or Ctrl-D ends the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			gen, emb, err := e.providers()
			if err != nil {
				return err
			}

			mgr := e.manager()
			defer mgr.Close()
			e.watch(ctx, mgr)

			pool := worker.New(e.cfg.Worker.Size, e.log)
			defer pool.Close()

			syn := e.synthesizer(gen, emb)
			sess := session.New(session.Options{
				Controller:  e.controller(syn, mgr, pool),
				Generator:   gen,
				Tools:       e.toolbox(syn, mgr, pool),
				Pool:        pool,
				System:      system,
				MaxTokens:   e.cfg.LLM.MaxTokens,
				Temperature: e.cfg.LLM.Temperature,
				Logger:      e.log,
			})

			out := cmd.OutOrStdout()
			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			if interactive {
				if s := mgr.ReloadIfStale(); s != nil {
					fmt.Fprintf(out, "Cookbook loaded: %d passages from %s\n", s.VectorCount(), mgr.Dir())
				} else {
					fmt.Fprintf(out, "No cookbook at %s; answers come from general knowledge.\n", mgr.Dir())
				}
				fmt.Fprintln(out, "Type /help for commands, /quit to leave.")
			}

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, os.Interrupt)
			defer signal.Stop(sigc)
			interrupts := make(chan struct{})
			go func() {
				for {
					select {
					case <-sigc:
						select {
						case interrupts <- struct{}{}:
						default:
						}
					case <-ctx.Done():
						return
					}
				}
			}()

			opts := session.RunOptions{Interrupts: interrupts}
			if interactive {
				opts.Prompt = "you> "
			}
			return sess.Run(ctx, cmd.InOrStdin(), out, opts)
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "override the assistant's system prompt")
	return cmd
}
