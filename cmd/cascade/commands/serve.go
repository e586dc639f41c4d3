package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carebridge/shift-cascade/pkg/api"
)

// ServeCmd creates the serve command: the HTTP API plus the in-process
// expiry sweeper, running until interrupted
func ServeCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cascade HTTP API with the expiry sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(app.Ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				if err := app.Sweeper.Run(ctx); err != nil && ctx.Err() == nil {
					app.Logger.Error("Sweeper exited", zap.Error(err))
				}
			}()

			handler := api.NewHandler(app.Engine, app.Logger)
			server := api.NewServer(app.Cfg.ListenAddr, handler, app.Logger)

			return server.ListenAndServe(ctx)
		},
	}
}
