package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moneytrack/internal/amqp"
	"moneytrack/internal/cache"
	"moneytrack/internal/config"
	"moneytrack/internal/export/sheets"
	"moneytrack/internal/log"
	"moneytrack/internal/metrics"
	"moneytrack/internal/remote"
	"moneytrack/internal/services"
	"moneytrack/internal/storage"
	"moneytrack/internal/store"
)

const cacheCleanupInterval = 10 * time.Minute

// App holds everything a command needs. Optional parts are nil when their
// configuration is absent.
type App struct {
	Config      *config.Config
	Logger      *log.Logger
	Metrics     *metrics.Collector
	Remote      *remote.Client
	Coordinator *services.SyncCoordinator

	Memory    *cache.LRUCache[store.Snapshot]
	Caches    *cache.Manager
	Snapshots *storage.SnapshotRepository
	Events    *amqp.Client

	now func() time.Time
}

// NewApp builds the coordinator and its collaborators from cfg.
func NewApp(cfg *config.Config, logger *log.Logger, now func() time.Time) (*App, error) {
	if now == nil {
		now = time.Now
	}
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Caches:  cache.NewManager(logger),
		now:     now,
	}

	app.Remote = remote.New(cfg.APIBaseURL,
		remote.WithTimeout(cfg.HTTPTimeout),
		remote.WithLogger(logger),
		remote.WithObserver(app.Metrics))

	demo := services.NewDemoFallback(now)
	var fallback services.FallbackSource = demo
	if cfg.FallbackMode == config.FallbackCache {
		repo, err := storage.NewSnapshotRepository(cfg.SQLiteDBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		app.Snapshots = repo
		app.Memory = cache.NewLRUCache[store.Snapshot](cfg.CacheSize, cfg.CacheTTL).WithClock(now)
		app.Caches.Register(app.Memory)
		fallback = services.NewCachedFallback(app.Memory, repo, demo, logger)
		logger.Info("Cached fallback enabled",
			"db_path", cfg.SQLiteDBPath,
			"cache_size", cfg.CacheSize,
			"cache_ttl", cfg.CacheTTL.String())
	}

	opts := services.Options{
		Fallback: fallback,
		Metrics:  app.Metrics,
		Logger:   logger,
		Now:      now,
	}
	if cfg.AMQPURL != "" {
		events, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change events", log.FieldError, err.Error())
		} else {
			app.Events = events
			opts.Notifier = events
		}
	}

	app.Coordinator = services.NewSyncCoordinator(app.Remote, opts)
	return app, nil
}

// SheetsExporter connects to Google Sheets using the configured service account.
func (a *App) SheetsExporter(ctx context.Context) (*sheets.Exporter, error) {
	if !a.Config.SheetsEnabled() {
		return nil, errors.New("sheets export is not configured (set GOOGLE_SPREADSHEET_ID)")
	}
	svc, err := sheets.NewService(ctx, sheets.Credentials{
		JSON: a.Config.GoogleServiceAccountJSON,
		File: a.Config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	return sheets.NewExporter(svc, a.Config.GoogleSpreadsheetID, a.Config.GoogleSheetName, a.Logger), nil
}

func (a *App) Close() error {
	a.Caches.Stop()
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
	}
	if a.Snapshots != nil {
		errs = append(errs, a.Snapshots.Close())
	}
	return errors.Join(errs...)
}
