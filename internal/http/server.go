// Package http serves the coordinator's state and operations as a small JSON
// API for the browser front end.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"moneytrack/internal/core"
	"moneytrack/internal/log"
	"moneytrack/internal/metrics"
	"moneytrack/internal/services"
	"moneytrack/internal/store"
)

// Coordinator is the slice of *services.SyncCoordinator the API drives.
type Coordinator interface {
	State() services.State
	Snapshot() store.Snapshot
	Connectivity() core.Connectivity
	Refresh(ctx context.Context) error
	ApplyFilters(ctx context.Context, f core.FilterCriteria) error
	ResetFilters(ctx context.Context) error
	Add(ctx context.Context, draft core.Transaction) (core.Transaction, error)
	Update(ctx context.Context, id string, changes core.TransactionUpdate) (core.Transaction, error)
	Delete(ctx context.Context, id string) error
	DismissError()
}

type Options struct {
	Addr           string
	AllowedOrigins []string
	Metrics        *metrics.Collector
	Logger         *log.Logger
	Now            func() time.Time
}

type Server struct {
	http.Server
	coord       Coordinator
	metrics     *metrics.Collector
	logger      *log.Logger
	now         func() time.Time
	rateLimiter *rateLimiter
	secMetrics  *securityMetrics
	started     time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run server.
func NewServer(coord Coordinator, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		coord:       coord,
		metrics:     opts.Metrics,
		logger:      opts.Logger.WithComponent(log.ComponentHTTP),
		now:         opts.Now,
		rateLimiter: newRateLimiter(),
		secMetrics:  &securityMetrics{},
		started:     opts.Now(),
	}
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(opts.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(newCORS(allowedOrigins).Handler)
	r.Use(s.withSecurityHeaders)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/categories", s.handleCategories)
		r.Get("/export.csv", s.handleExportCSV)

		r.Group(func(r chi.Router) {
			r.Use(s.withRateLimit)

			r.Put("/filters", s.handleApplyFilters)
			r.Delete("/filters", s.handleResetFilters)
			r.Post("/refresh", s.handleRefresh)
			r.Delete("/error", s.handleDismissError)

			r.Post("/transactions", s.handleCreateTransaction)
			r.Put("/transactions/{id}", s.handleUpdateTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)
		})
	})

	return r
}

func newCORS(allowedOrigins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", log.RequestIDHeader},
		ExposedHeaders: []string{"Content-Disposition", log.RequestIDHeader},
		MaxAge:         300,
	})
}

// Shutdown stops the rate limiter cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
