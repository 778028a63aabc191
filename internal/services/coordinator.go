// Package services holds the synchronization coordinator that decides what
// the user sees when the backend misbehaves.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"moneytrack/internal/core"
	"moneytrack/internal/log"
	"moneytrack/internal/remote"
	"moneytrack/internal/store"
)

var (
	// ErrSuperseded is returned by a load whose results were discarded
	// because a newer load started.
	ErrSuperseded = errors.New("load superseded by a newer request")

	ErrBackendUnreachable = errors.New("backend unreachable")
)

// Load outcomes reported to Metrics.
const (
	LoadLive       = "live"
	LoadFallback   = "fallback"
	LoadSuperseded = "superseded"
	LoadCanceled   = "canceled"
)

// Remote is the backend surface the coordinator needs. *remote.Client
// satisfies it.
type Remote interface {
	CheckHealth(ctx context.Context) bool
	ListTransactions(ctx context.Context, f core.FilterCriteria) (remote.TransactionList, error)
	FetchSummary(ctx context.Context, f core.FilterCriteria) (core.Summary, error)
	FetchCategoryAnalytics(ctx context.Context, f core.FilterCriteria) []core.CategoryAggregate
	CreateTransaction(ctx context.Context, draft core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, changes core.TransactionUpdate) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) (remote.Ack, error)
}

// ChangeNotifier is told about every server-confirmed mutation.
type ChangeNotifier interface {
	PublishChange(ctx context.Context, kind core.ChangeKind, tx core.Transaction) error
}

type Metrics interface {
	SetConnectivity(state core.Connectivity)
	ObserveLoad(outcome string, duration time.Duration)
	ObserveMutation(op string, success bool)
}

type noopMetrics struct{}

func (noopMetrics) SetConnectivity(core.Connectivity) {}
func (noopMetrics) ObserveLoad(string, time.Duration) {}
func (noopMetrics) ObserveMutation(string, bool)      {}

// LoadError names the endpoint whose failure forced the fallback snapshot.
type LoadError struct {
	Endpoint string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load data from %s: %v", e.Endpoint, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type Options struct {
	Store    *store.Store
	Fallback FallbackSource
	Notifier ChangeNotifier
	Metrics  Metrics
	Logger   *log.Logger
	Now      func() time.Time
}

// SyncCoordinator is the only writer of connectivity and the transaction
// store. All methods are safe for concurrent use.
type SyncCoordinator struct {
	remote   Remote
	store    *store.Store
	fallback FallbackSource
	notifier ChangeNotifier
	metrics  Metrics
	logger   *log.Logger
	now      func() time.Time

	probe singleflight.Group

	mu           sync.Mutex
	connectivity core.Connectivity
	filters      core.FilterCriteria
	lastErr      error
	generation   uint64
	cancelLoad   context.CancelFunc
}

func NewSyncCoordinator(r Remote, opts Options) *SyncCoordinator {
	c := &SyncCoordinator{
		remote:       r,
		store:        opts.Store,
		fallback:     opts.Fallback,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		now:          opts.Now,
		connectivity: core.Connecting,
	}
	if c.store == nil {
		c.store = store.New()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.fallback == nil {
		c.fallback = NewDemoFallback(c.now)
	}
	if c.metrics == nil {
		c.metrics = noopMetrics{}
	}
	if c.logger == nil {
		c.logger = log.Discard()
	}
	c.logger = c.logger.WithComponent(log.ComponentSync)
	c.metrics.SetConnectivity(core.Connecting)
	return c
}

// Start runs the startup probe, then the first load with the current filters.
func (c *SyncCoordinator) Start(ctx context.Context) error {
	healthy, err := c.checkHealth(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if healthy {
		c.setConnectivityLocked(core.Connected)
	} else {
		c.setConnectivityLocked(core.Disconnected)
	}
	f := c.filters
	c.mu.Unlock()

	return c.LoadAll(ctx, f)
}

// CheckHealth probes the backend. Concurrent probes share one request.
func (c *SyncCoordinator) CheckHealth(ctx context.Context) bool {
	healthy, _ := c.checkHealth(ctx)
	return healthy
}

func (c *SyncCoordinator) checkHealth(ctx context.Context) (bool, error) {
	ch := c.probe.DoChan("health", func() (any, error) {
		// The probe outlives any single waiter; each waiter still honours
		// its own ctx below.
		return c.remote.CheckHealth(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// LoadAll fetches transactions, summary and analytics in that order and
// commits them to the store in one step. On failure the store receives the
// fallback snapshot, connectivity becomes disconnected and a *LoadError is
// returned. If a newer load started meanwhile, nothing is committed and
// ErrSuperseded is returned. If ctx is canceled, ctx.Err() is returned and
// nothing changes.
func (c *SyncCoordinator) LoadAll(ctx context.Context, f core.FilterCriteria) error {
	start := c.now()
	gen, loadCtx, done := c.beginLoad(ctx)
	defer done()

	logger := c.log(ctx).With(log.FieldGeneration, gen)

	snap, endpoint, err := c.fetchAll(loadCtx, f)
	if err == nil {
		if cerr := c.commit(ctx, gen, func() {
			c.store.Replace(snap)
			c.lastErr = nil
			c.setConnectivityLocked(core.Connected)
		}); cerr != nil {
			c.observeAbandoned(cerr, start)
			return cerr
		}
		c.fallback.Remember(ctx, f, snap)
		c.metrics.ObserveLoad(LoadLive, c.now().Sub(start))
		logger.InfoContext(ctx, "Data loaded",
			log.FieldFilters, f.Key(),
			log.FieldCount, len(snap.Transactions))
		return nil
	}

	// Cancellation caused by a newer load or by the caller is not a backend failure.
	if cerr := c.abandoned(ctx, gen); cerr != nil {
		c.observeAbandoned(cerr, start)
		return cerr
	}

	loadErr := &LoadError{Endpoint: endpoint, Err: err}
	fb := c.fallback.Fallback(ctx, f)
	if cerr := c.commit(ctx, gen, func() {
		c.store.Replace(fb)
		c.lastErr = loadErr
		c.setConnectivityLocked(core.Disconnected)
	}); cerr != nil {
		c.observeAbandoned(cerr, start)
		return cerr
	}

	c.metrics.ObserveLoad(LoadFallback, c.now().Sub(start))
	logger.WarnContext(ctx, "Load failed, showing fallback data",
		log.FieldEndpoint, endpoint,
		log.FieldSource, string(fb.Source),
		log.FieldError, err.Error())
	return loadErr
}

func (c *SyncCoordinator) fetchAll(ctx context.Context, f core.FilterCriteria) (store.Snapshot, string, error) {
	healthy, err := c.checkHealth(ctx)
	if err != nil {
		return store.Snapshot{}, remote.EndpointHealth, err
	}
	if !healthy {
		return store.Snapshot{}, remote.EndpointHealth, ErrBackendUnreachable
	}

	list, err := c.remote.ListTransactions(ctx, f)
	if err != nil {
		return store.Snapshot{}, remote.EndpointTransactions, err
	}
	summary, err := c.remote.FetchSummary(ctx, f)
	if err != nil {
		return store.Snapshot{}, remote.EndpointSummary, err
	}
	categories := c.remote.FetchCategoryAnalytics(ctx, f)

	return store.Snapshot{
		Transactions: list.Transactions,
		Summary:      summary,
		Categories:   categories,
		Source:       store.SourceLive,
		Filters:      f,
		LoadedAt:     c.now(),
	}, "", nil
}

// beginLoad takes the next generation token and cancels the load it supersedes.
func (c *SyncCoordinator) beginLoad(ctx context.Context) (uint64, context.Context, func()) {
	loadCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	c.generation++
	gen := c.generation
	c.cancelLoad = cancel
	c.mu.Unlock()

	return gen, loadCtx, func() {
		c.mu.Lock()
		if c.generation == gen {
			c.cancelLoad = nil
		}
		c.mu.Unlock()
		cancel()
	}
}

// commit applies fn under the lock only while gen is still current.
func (c *SyncCoordinator) commit(ctx context.Context, gen uint64, fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return ErrSuperseded
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

func (c *SyncCoordinator) abandoned(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return ErrSuperseded
	}
	return ctx.Err()
}

func (c *SyncCoordinator) observeAbandoned(err error, start time.Time) {
	outcome := LoadCanceled
	if errors.Is(err, ErrSuperseded) {
		outcome = LoadSuperseded
	}
	c.metrics.ObserveLoad(outcome, c.now().Sub(start))
	c.logger.Debug("Load results discarded", "outcome", outcome)
}

// Refresh reloads with the current filters. It backs the banner's retry action.
func (c *SyncCoordinator) Refresh(ctx context.Context) error {
	return c.LoadAll(ctx, c.Filters())
}

// ApplyFilters replaces the filters wholesale and reloads.
func (c *SyncCoordinator) ApplyFilters(ctx context.Context, f core.FilterCriteria) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.filters = f
	c.mu.Unlock()
	return c.LoadAll(ctx, f)
}

// ResetFilters clears every filter and reloads.
func (c *SyncCoordinator) ResetFilters(ctx context.Context) error {
	return c.ApplyFilters(ctx, core.FilterCriteria{})
}

// Add creates draft on the server, prepends the confirmed record and resyncs.
// On failure the store is left untouched and the error is returned.
func (c *SyncCoordinator) Add(ctx context.Context, draft core.Transaction) (core.Transaction, error) {
	if err := draft.Validate(); err != nil {
		return core.Transaction{}, err
	}
	created, err := c.remote.CreateTransaction(ctx, draft)
	c.metrics.ObserveMutation(log.OpCreate, err == nil)
	if err != nil {
		c.logMutationFailure(ctx, log.OpCreate, draft.ID, err)
		return core.Transaction{}, err
	}

	c.store.Prepend(created)
	c.afterMutation(ctx, log.OpCreate, core.ChangeCreated, created)
	return created, nil
}

// Update sends the changed fields, swaps the confirmed record in place and resyncs.
func (c *SyncCoordinator) Update(ctx context.Context, id string, changes core.TransactionUpdate) (core.Transaction, error) {
	if err := changes.Validate(); err != nil {
		return core.Transaction{}, err
	}
	updated, err := c.remote.UpdateTransaction(ctx, id, changes)
	c.metrics.ObserveMutation(log.OpUpdate, err == nil)
	if err != nil {
		c.logMutationFailure(ctx, log.OpUpdate, id, err)
		return core.Transaction{}, err
	}

	c.store.ReplaceTransaction(updated)
	c.afterMutation(ctx, log.OpUpdate, core.ChangeUpdated, updated)
	return updated, nil
}

// Delete removes the record on the server, then locally, then resyncs.
// An id that is not loaded leaves the store unchanged.
func (c *SyncCoordinator) Delete(ctx context.Context, id string) error {
	if _, err := c.remote.DeleteTransaction(ctx, id); err != nil {
		c.metrics.ObserveMutation(log.OpDelete, false)
		c.logMutationFailure(ctx, log.OpDelete, id, err)
		return err
	}
	c.metrics.ObserveMutation(log.OpDelete, true)

	removed, ok := c.store.Remove(id)
	if !ok {
		removed = core.Transaction{ID: id}
	}
	c.afterMutation(ctx, log.OpDelete, core.ChangeDeleted, removed)
	return nil
}

// afterMutation publishes the change and resyncs aggregates. A failed resync
// is already reflected in connectivity and LastError, so it is only logged.
func (c *SyncCoordinator) afterMutation(ctx context.Context, op string, kind core.ChangeKind, tx core.Transaction) {
	logger := c.log(ctx)
	logger.InfoContext(ctx, "Transaction change confirmed",
		log.NewFields().
			WithOperation(op).
			WithTransaction(tx.ID, tx.Title, tx.Amount.String(), string(tx.Type), tx.Category).
			ToSlice()...)

	if c.notifier != nil {
		if err := c.notifier.PublishChange(ctx, kind, tx); err != nil {
			logger.WarnContext(ctx, "Failed to publish change event",
				log.FieldOperation, op,
				log.FieldTxID, tx.ID,
				log.FieldError, err.Error())
		}
	}

	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		logger.WarnContext(ctx, "Resync after mutation failed",
			log.FieldOperation, op,
			log.FieldError, err.Error())
	}
}

func (c *SyncCoordinator) logMutationFailure(ctx context.Context, op, id string, err error) {
	c.log(ctx).WarnContext(ctx, "Transaction change rejected",
		log.FieldOperation, op,
		log.FieldTxID, id,
		log.FieldError, err.Error())
}

// log prefers the request-scoped logger so entries carry its request_id.
func (c *SyncCoordinator) log(ctx context.Context) *log.Logger {
	return log.FromContextOr(ctx, c.logger).WithComponent(log.ComponentSync)
}

func (c *SyncCoordinator) setConnectivityLocked(next core.Connectivity) {
	if c.connectivity == next {
		return
	}
	c.logger.Info("Connectivity changed",
		"from", string(c.connectivity),
		log.FieldConnectivity, string(next))
	c.connectivity = next
	c.metrics.SetConnectivity(next)
}

func (c *SyncCoordinator) Connectivity() core.Connectivity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectivity
}

func (c *SyncCoordinator) Filters() core.FilterCriteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters
}

func (c *SyncCoordinator) Snapshot() store.Snapshot {
	return c.store.Snapshot()
}

// LastError is the banner message source; nil when there is nothing to show.
func (c *SyncCoordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// DismissError hides the banner without touching data or connectivity.
func (c *SyncCoordinator) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

// State is everything a presentation layer renders.
type State struct {
	Connectivity core.Connectivity   `json:"connectivity"`
	Filters      core.FilterCriteria `json:"filters"`
	Error        string              `json:"error,omitempty"`
	store.Snapshot
}

// State returns connectivity, filters, banner and data in one read.
func (c *SyncCoordinator) State() State {
	c.mu.Lock()
	st := State{
		Connectivity: c.connectivity,
		Filters:      c.filters,
		Snapshot:     c.store.Snapshot(),
	}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	c.mu.Unlock()
	return st
}
