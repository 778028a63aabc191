package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"moneytrack/internal/core"
	"moneytrack/internal/store"
)

func newTestRepo(t *testing.T) *SnapshotRepository {
	t.Helper()
	repo, err := NewSnapshotRepository(filepath.Join(t.TempDir(), "nested", "snapshots.db"), nil)
	if err != nil {
		t.Fatalf("NewSnapshotRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleSnapshot() store.Snapshot {
	txs := []core.Transaction{
		{ID: "a", Title: `Dinner "special"`, Amount: core.Money{Cents: 12345}, Type: core.Expense, Category: "Food & Essentials", Date: core.NewDate(2024, 2, 14)},
		{ID: "b", Title: "Salary", Amount: core.NewMoney(50000), Type: core.Income, Category: "Salary", Date: core.NewDate(2024, 2, 1)},
	}
	summary, cats := core.Summarize(txs)
	summary.ByCategory = json.RawMessage(`{"Salary":50000}`)
	return store.Snapshot{
		Transactions: txs,
		Summary:      summary,
		Categories:   cats,
		Source:       store.SourceLive,
		Filters:      core.FilterCriteria{Year: 2024},
		LoadedAt:     time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestSnapshotRepository_SaveLoad(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	want := sampleSnapshot()

	if _, ok, err := repo.Load(ctx, "year=2024"); err != nil || ok {
		t.Fatalf("Load on empty db = ok %v, err %v", ok, err)
	}

	if err := repo.Save(ctx, "year=2024", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := repo.Load(ctx, "year=2024")
	if err != nil || !ok {
		t.Fatalf("Load = ok %v, err %v", ok, err)
	}

	if len(got.Transactions) != 2 || got.Transactions[0].Title != `Dinner "special"` {
		t.Fatalf("transactions not restored: %+v", got.Transactions)
	}
	if got.Transactions[0].Amount.Cents != 12345 {
		t.Fatalf("amount = %d cents", got.Transactions[0].Amount.Cents)
	}
	if got.Summary.Totals != want.Summary.Totals {
		t.Fatalf("totals = %+v, want %+v", got.Summary.Totals, want.Summary.Totals)
	}
	if string(got.Summary.ByCategory) != `{"Salary":50000}` {
		t.Fatalf("byCategory = %s", got.Summary.ByCategory)
	}
	if got.Filters.Year != 2024 || !got.LoadedAt.Equal(want.LoadedAt) {
		t.Fatalf("metadata not restored: filters %+v loadedAt %v", got.Filters, got.LoadedAt)
	}
}

func TestSnapshotRepository_Upsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := sampleSnapshot()
	if err := repo.Save(ctx, "all", first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := sampleSnapshot()
	second.Transactions = second.Transactions[:1]
	if err := repo.Save(ctx, "all", second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, _, err := repo.Load(ctx, "all")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Transactions) != 1 {
		t.Fatalf("expected overwrite, got %d transactions", len(got.Transactions))
	}
	keys, err := repo.Keys(ctx)
	if err != nil || len(keys) != 1 || keys[0] != "all" {
		t.Fatalf("Keys = %v, %v", keys, err)
	}
}

func TestSnapshotRepository_Prune(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return base }
	if err := repo.Save(ctx, "old", sampleSnapshot()); err != nil {
		t.Fatalf("Save old: %v", err)
	}
	repo.now = func() time.Time { return base.Add(48 * time.Hour) }
	if err := repo.Save(ctx, "new", sampleSnapshot()); err != nil {
		t.Fatalf("Save new: %v", err)
	}

	n, err := repo.Prune(ctx, base.Add(24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v; want 1", n, err)
	}
	if _, ok, _ := repo.Load(ctx, "old"); ok {
		t.Fatalf("old snapshot survived prune")
	}
	if _, ok, _ := repo.Load(ctx, "new"); !ok {
		t.Fatalf("new snapshot was pruned")
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	for i := 0; i < 2; i++ {
		if err := RunMigrations(path); err != nil {
			t.Fatalf("RunMigrations pass %d: %v", i+1, err)
		}
	}
}
