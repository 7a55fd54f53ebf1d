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
	"go.uber.org/zap"

	"github.com/warp/point-ledger/api"
	"github.com/warp/point-ledger/auth"
	"github.com/warp/point-ledger/backup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the backup scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

// serve runs until SIGINT/SIGTERM, then:
//  1. stops accepting new connections
//  2. waits for active requests (30s timeout)
//  3. stops the scheduler and waits for a running snapshot
func serve(ctx context.Context) error {
	cfg, logger := app.cfg, app.logger

	authn, err := auth.NewManager(auth.Config{
		AdminPIN:     cfg.Auth.AdminPIN,
		ViewPassword: cfg.Auth.ViewPassword,
		Secret:       cfg.Auth.TokenSecret,
		TTL:          cfg.Auth.TokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}
	if cfg.Auth.TokenSecret == "" {
		logger.Warn("no token secret configured, tokens will not survive a restart")
	}

	scheduler := backup.NewScheduler(app.backup, cfg.Backup.Interval, logger)
	scheduler.Enabled = cfg.Backup.Enabled

	handler := api.NewHandler(app.ledger, app.backup, scheduler, authn, logger)
	handler.Ping = app.store.Ping
	handler.Metrics = app.metrics.Handler()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.CORS.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("key_policy", string(app.ledger.Policy())),
			zap.Bool("viewer_gate", authn.ViewerGate()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-ctx.Done():
	case err := <-errCh:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	scheduler.Stop()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
