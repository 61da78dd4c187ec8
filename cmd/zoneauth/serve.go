package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/zoneauth/app"
	"github.com/upb/zoneauth/config"
	"github.com/upb/zoneauth/routes"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var zoneFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server for one zone",
		Long: `Starts the HTTP server for the zone selected by --zone or ZONE.
The front door serves sign-in and proxies /user, /admin and /tenant to
the zone origins.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("zone") {
				zone, err := config.ParseZone(zoneFlag)
				if err != nil {
					return err
				}
				cfg.Zones.Active = zone
			}
			return serve(cmd.Context(), cfg, opts.logger)
		},
	}

	cmd.Flags().StringVar(&zoneFlag, "zone", "", "zone to serve: frontdoor, user or admin (env: ZONE)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	handler, err := routes.SetupRoutes(deps)
	if err != nil {
		_ = deps.Close(ctx)
		return fmt.Errorf("failed to set up routes: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		deps.Logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.Server.TLS.Enabled))
		if cfg.Server.TLS.Enabled {
			serverErrors <- srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		serverErrors <- srv.ListenAndServe()
	}()

	stop, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	case <-stop.Done():
		deps.Logger.Info("shutting down server")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer done()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		deps.Logger.Error("graceful shutdown failed", zap.Error(err))
		_ = srv.Close()
	}
	if err := deps.Close(shutdownCtx); err != nil {
		deps.Logger.Error("failed to close dependencies", zap.Error(err))
	}

	return serveErr
}
