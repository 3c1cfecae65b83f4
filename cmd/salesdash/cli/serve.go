package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/salesdash/salesdash/internal/app"
	"github.com/salesdash/salesdash/internal/observability"
	"github.com/salesdash/salesdash/jobs"
)

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Example: `  # Serve on the address from APP_ADDR
  salesdash serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.InTestMode() {
				rt.logger.Info("test mode detected, skipping server startup")
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt.cfg, rt.logger)
		},
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	server, cleanup, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}

// newServer wires the dashboard, job health and metrics routes. cleanup releases
// the Redis connections opened for them.
func newServer(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*http.Server, func(), error) {
	metrics := observability.NewMetrics()

	components, err := app.Wire(ctx, cfg, logger, metrics.Registerer())
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() {
		if err := components.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}}

	var inspector jobs.QueueInspector
	if cfg.RedisAddr != "" {
		ins := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		closers = append(closers, func() {
			if err := ins.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		})
		inspector = ins
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DashboardHandler: components.DashboardHandler(),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		LedgerStatus:     components.Ledger.Online,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return server, cleanup, nil
}
