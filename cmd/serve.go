package cmd

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

	"github.com/yashasviy/bank-ledger-api/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// serve runs the server until ctx is cancelled, then drains in-flight
// requests for at most cfg.ShutdownTimeout.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running",
			zap.Int("port", cfg.Port),
			zap.String("store", cfg.StoreDriver),
			zap.String("lockMode", cfg.LockMode),
			zap.Bool("redis", cfg.RedisEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
