package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/mcp"
	"github.com/kitchencompanion/kitchencompanion/internal/tools"
	"github.com/kitchencompanion/kitchencompanion/internal/worker"
)

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the kitchen tools over MCP on stdio",
		Long: `Start an MCP server on stdin/stdout exposing convert_units, set_location_city,
set_location_gps, use_my_ip_location, find_nearby_grocery_here and ask_cookbook
to a voice or chat front end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr := e.manager()
			defer mgr.Close()
			e.watch(ctx, mgr)

			pool := worker.New(e.cfg.Worker.Size, e.log)
			defer pool.Close()

			var ans tools.Answerer
			if gen, emb, err := e.providers(); err != nil {
				e.log.Warn("ask_cookbook disabled", zap.Error(err))
			} else {
				ans = e.synthesizer(gen, emb)
			}

			return mcp.NewServer(e.toolbox(ans, mgr, pool), version, e.log).ServeStdio()
		},
	}
}
