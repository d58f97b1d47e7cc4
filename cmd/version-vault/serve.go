package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/version-vault/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: withApp(func(a *app, cmd *cobra.Command, args []string) error {
			server := api.NewServer(a.cfg.Server, a.store, a.snapshots, a.tracking, a.switcher)

			// Setup graceful shutdown
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				log.Info("shutdown signal received, stopping server")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					log.WithField("err", err).Error("error during server shutdown")
				}
			}()

			log.WithField("addr", server.Addr).Info("starting web server")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}

			log.Info("version-vault server stopped")
			return nil
		}),
	}
}
