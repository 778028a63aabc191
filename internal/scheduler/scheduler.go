// Package scheduler runs the periodic refresh and snapshot maintenance jobs
// on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"moneytrack/internal/log"
	"moneytrack/internal/services"
)

// MaintenanceSpec runs the snapshot prune once a day at 03:00.
const MaintenanceSpec = "0 3 * * *"

const defaultJobTimeout = 2 * time.Minute

type Refresher interface {
	Refresh(ctx context.Context) error
}

type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Cleaner drops expired in-memory entries and reports how many went.
type Cleaner interface {
	CleanNow() int
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.jobTimeout = d }
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron       *cron.Cron
	logger     *log.Logger
	now        func() time.Time
	jobTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger *log.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentScheduler)

	s := &Scheduler{
		logger:     logger,
		now:        time.Now,
		jobTimeout: defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cl := cronLogger{logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// AddRefresh reloads with the current filters on spec. A refresh that falls
// back to cached or demo data is still a completed run.
func (s *Scheduler) AddRefresh(spec string, r Refresher) error {
	if _, err := s.cron.AddFunc(spec, func() { s.runRefresh(r) }); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	s.logger.Info("Scheduled refresh", "schedule", spec)
	return nil
}

// AddMaintenance prunes persisted snapshots older than ttl and cleans the
// in-memory tier. Either target may be nil.
func (s *Scheduler) AddMaintenance(spec string, ttl time.Duration, p Pruner, c Cleaner) error {
	if _, err := s.cron.AddFunc(spec, func() { s.runMaintenance(p, c, ttl) }); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", spec, err)
	}
	s.logger.Info("Scheduled snapshot maintenance", "schedule", spec, "ttl", ttl.String())
	return nil
}

func (s *Scheduler) runRefresh(r Refresher) {
	ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()

	start := s.now()
	err := r.Refresh(ctx)
	switch {
	case err == nil:
		s.logger.Debug("Scheduled refresh complete", log.FieldDuration, s.now().Sub(start).Milliseconds())
	case errors.Is(err, services.ErrSuperseded), errors.Is(err, context.Canceled):
		s.logger.Debug("Scheduled refresh abandoned", log.FieldError, err.Error())
	default:
		s.logger.Warn("Scheduled refresh served fallback data", log.FieldError, err.Error())
	}
}

func (s *Scheduler) runMaintenance(p Pruner, c Cleaner, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()

	var pruned int64
	if p != nil {
		n, err := p.Prune(ctx, s.now().Add(-ttl))
		if err != nil {
			s.logger.Error("Snapshot prune failed", log.FieldError, err.Error())
		}
		pruned = n
	}
	cleaned := 0
	if c != nil {
		cleaned = c.CleanNow()
	}
	s.logger.Info("Snapshot maintenance complete", "pruned", pruned, "cleaned", cleaned)
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's own messages through the structured logger.
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, log.FieldError, err.Error())...)
}
