package cmd

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mimir-go/internal/storage/server"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve index state, document exports and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Server
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if a.cfg.Logger.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			srv := server.New(cfg, a.storage, a.tel, a.logger)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			// Wait for interrupt signal
			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			a.logger.Info("Shutting down mimir server...")

			// Graceful shutdown with timeout
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				a.logger.Error("Server forced to shutdown", "error", err)
				return err
			}

			a.logger.Info("Mimir server exited")
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Listen port, overrides the configuration")
	return cmd
}
