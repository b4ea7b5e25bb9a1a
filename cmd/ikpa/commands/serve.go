package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"ikpa/internal/cli"
	apphttp "ikpa/internal/http"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			logger := cli.SetupLogger(cfg)

			app, err := cli.Bootstrap(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			app.Caches.StartCleanup(time.Minute)

			srv := apphttp.NewServer(":"+cfg.Port, app.HTTPDeps())
			srv.MaxHeaderBytes = 1 << 16 // 64KB

			ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
				if err := srv.Shutdown(ctx); err != nil {
					logger.Error("Server shutdown error", "error", err)
				}
			})

			logger.Info("Starting ikpa server",
				"port", cfg.Port,
				"db_driver", cfg.DBDriver,
				"amqp", app.Broker != nil,
				"llm", cfg.LLMEnabled(),
				"sheets", cfg.SheetsEnabled())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server error", "error", err, "port", cfg.Port)
				return err
			}

			cli.WaitForShutdown(ctx, done)
			logger.Info("Server stopped gracefully")
			return nil
		},
	}
	return cmd
}
