package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"moneytrack/internal/amqp"
	"moneytrack/internal/config"
	apphttp "moneytrack/internal/http"
	"moneytrack/internal/log"
	"moneytrack/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON view API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.App()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), app)
		},
	}
}

func serve(parent context.Context, app *App) error {
	cfg, logger := app.Config, app.Logger

	srv := apphttp.NewServer(app.Coordinator, apphttp.Options{
		Addr:           ":" + cfg.Port,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:        app.Metrics,
		Logger:         logger,
	})

	sched := scheduler.New(logger)
	if cfg.RefreshSchedule != "" {
		if err := sched.AddRefresh(cfg.RefreshSchedule, app.Coordinator); err != nil {
			return err
		}
	}
	if cfg.FallbackMode == config.FallbackCache {
		if err := sched.AddMaintenance(scheduler.MaintenanceSpec, cfg.CacheTTL, app.Snapshots, app.Caches); err != nil {
			return err
		}
		app.Caches.StartCleanup(cacheCleanupInterval)
	}

	parent, stop := context.WithCancel(parent)
	defer stop()
	ctx, done := GracefulShutdown(parent, logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("HTTP server shutdown failed", log.FieldError, err.Error())
		}
		if err := sched.Stop(ctx); err != nil {
			logger.Warn("Scheduler did not stop in time", log.FieldError, err.Error())
		}
	})

	if err := app.Coordinator.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("Initial load failed, serving fallback data", log.FieldError, err.Error())
	}
	sched.Start()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("View API listening", "addr", srv.Addr, log.FieldConnectivity, string(app.Coordinator.Connectivity()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	WaitForShutdown(ctx, done)
	if err, ok := <-serveErr; ok && err != nil {
		return fmt.Errorf("view API: %w", err)
	}
	return nil
}

func newWatchCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print transaction change events from AMQP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.App()
			if err != nil {
				return err
			}
			if app.Config.AMQPURL == "" {
				return errors.New("watch needs AMQP_URL to be set")
			}
			if app.Events == nil {
				return errors.New("AMQP broker unavailable")
			}

			parent, stop := context.WithCancel(cmd.Context())
			defer stop()
			ctx, done := GracefulShutdown(parent, app.Logger, shutdownTimeout, nil)
			err = app.Events.ConsumeChanges(ctx, func(msg *amqp.TransactionChangeMessage) error {
				return printChange(rt, msg)
			})
			stop()
			WaitForShutdown(ctx, done)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func printChange(rt *Runtime, msg *amqp.TransactionChangeMessage) error {
	tx := msg.Transaction
	_, err := fmt.Fprintf(rt.Out, "%s %-7s %s %s %s\n",
		msg.Timestamp.Format(time.RFC3339), msg.Kind, tx.ID, tx.Amount.Fixed(), tx.Title)
	return err
}
