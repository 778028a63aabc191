package services

import (
	"context"
	"encoding/json"
	"time"

	"moneytrack/internal/cache"
	"moneytrack/internal/core"
	"moneytrack/internal/log"
	"moneytrack/internal/store"
)

// FallbackSource supplies the snapshot shown when a load fails. Remember is
// called with every successful live snapshot.
type FallbackSource interface {
	Fallback(ctx context.Context, f core.FilterCriteria) store.Snapshot
	Remember(ctx context.Context, f core.FilterCriteria, snap store.Snapshot)
}

// DemoFallback always answers with the fixed demo data set.
type DemoFallback struct {
	now func() time.Time
}

func NewDemoFallback(now func() time.Time) *DemoFallback {
	if now == nil {
		now = time.Now
	}
	return &DemoFallback{now: now}
}

func (d *DemoFallback) Fallback(_ context.Context, f core.FilterCriteria) store.Snapshot {
	snap := DemoSnapshot(d.now())
	snap.Filters = f
	return snap
}

func (d *DemoFallback) Remember(context.Context, core.FilterCriteria, store.Snapshot) {}

// DemoSnapshot is the deterministic offline data set: three transactions
// dated today, totals 50000/20000 and a three-month series.
func DemoSnapshot(now time.Time) store.Snapshot {
	today := core.DateOf(now)
	return store.Snapshot{
		Transactions: []core.Transaction{
			{ID: "1", Title: "Salary", Amount: core.NewMoney(50000), Type: core.Income, Category: "Salary", Date: today},
			{ID: "2", Title: "Rent", Amount: core.NewMoney(15000), Type: core.Expense, Category: "Home Rent", Date: today},
			{ID: "3", Title: "Groceries", Amount: core.NewMoney(5000), Type: core.Expense, Category: "Food & Essentials", Date: today},
		},
		Summary: core.Summary{
			Totals:     core.NewTotals(core.NewMoney(50000), core.NewMoney(20000)),
			ByCategory: json.RawMessage(`{}`),
			Monthly: []core.MonthlyPoint{
				{Month: "2024-01", Income: core.NewMoney(50000), Expense: core.NewMoney(20000)},
				{Month: "2024-02", Income: core.NewMoney(45000), Expense: core.NewMoney(18000)},
				{Month: "2024-03", Income: core.NewMoney(52000), Expense: core.NewMoney(22000)},
			},
		},
		Categories: []core.CategoryAggregate{
			{Category: "Salary", Total: core.NewMoney(50000), Count: 1},
			{Category: "Home Rent", Total: core.NewMoney(15000), Count: 1},
			{Category: "Food & Essentials", Total: core.NewMoney(5000), Count: 1},
		},
		Source:   store.SourceFallback,
		LoadedAt: now,
	}
}

// SnapshotRepository is the durable tier behind CachedFallback.
// *storage.SnapshotRepository satisfies it.
type SnapshotRepository interface {
	Save(ctx context.Context, key string, snap store.Snapshot) error
	Load(ctx context.Context, key string) (store.Snapshot, bool, error)
}

// CachedFallback serves the last live snapshot for the same filters, first
// from memory, then from the repository, and only then the demo set.
type CachedFallback struct {
	mem    *cache.LRUCache[store.Snapshot]
	repo   SnapshotRepository
	demo   *DemoFallback
	logger *log.Logger
}

// NewCachedFallback builds the tiered source. repo may be nil for a
// memory-only cache.
func NewCachedFallback(mem *cache.LRUCache[store.Snapshot], repo SnapshotRepository, demo *DemoFallback, logger *log.Logger) *CachedFallback {
	if demo == nil {
		demo = NewDemoFallback(nil)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &CachedFallback{
		mem:    mem,
		repo:   repo,
		demo:   demo,
		logger: logger.WithComponent(log.ComponentCache),
	}
}

func (c *CachedFallback) Fallback(ctx context.Context, f core.FilterCriteria) store.Snapshot {
	key := f.Key()

	if c.mem != nil {
		if snap, ok := c.mem.Get(key); ok {
			c.logger.DebugContext(ctx, "Fallback served from memory", "filter_key", key)
			return asCached(snap, f)
		}
	}

	if c.repo != nil {
		snap, ok, err := c.repo.Load(ctx, key)
		switch {
		case err != nil:
			c.logger.WarnContext(ctx, "Failed to read stored snapshot",
				"filter_key", key,
				log.FieldError, err.Error())
		case ok:
			if c.mem != nil {
				c.mem.Set(key, snap)
			}
			c.logger.DebugContext(ctx, "Fallback served from storage", "filter_key", key)
			return asCached(snap, f)
		}
	}

	return c.demo.Fallback(ctx, f)
}

func (c *CachedFallback) Remember(ctx context.Context, f core.FilterCriteria, snap store.Snapshot) {
	key := f.Key()
	snap = snap.Clone()
	if c.mem != nil {
		c.mem.Set(key, snap)
	}
	if c.repo != nil {
		if err := c.repo.Save(ctx, key, snap); err != nil {
			c.logger.WarnContext(ctx, "Failed to persist snapshot",
				"filter_key", key,
				log.FieldError, err.Error())
		}
	}
}

func asCached(snap store.Snapshot, f core.FilterCriteria) store.Snapshot {
	snap = snap.Clone()
	snap.Source = store.SourceCache
	snap.Filters = f
	return snap
}
