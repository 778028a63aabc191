// Package storage persists last-known-good snapshots in SQLite so an offline
// start can show the most recent real data instead of the demo set.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"moneytrack/internal/log"
	"moneytrack/internal/store"

	_ "modernc.org/sqlite"
)

const (
	upsertSnapshot = `
INSERT INTO snapshots (filter_key, payload, source, tx_count, loaded_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(filter_key) DO UPDATE SET
    payload    = excluded.payload,
    source     = excluded.source,
    tx_count   = excluded.tx_count,
    loaded_at  = excluded.loaded_at,
    updated_at = excluded.updated_at`

	selectSnapshot = `SELECT payload, loaded_at FROM snapshots WHERE filter_key = ?`

	selectKeys = `SELECT filter_key FROM snapshots ORDER BY updated_at DESC`

	deleteOlderThan = `DELETE FROM snapshots WHERE updated_at < ?`
)

type SnapshotRepository struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

func NewSnapshotRepository(dbPath string, logger *log.Logger) (*SnapshotRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SnapshotRepository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
		now:    time.Now,
	}, nil
}

func (r *SnapshotRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Save stores snap under key, replacing any previous snapshot for it.
func (r *SnapshotRepository) Save(ctx context.Context, key string, snap store.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	loadedAt := snap.LoadedAt
	if loadedAt.IsZero() {
		loadedAt = r.now()
	}
	_, err = r.db.ExecContext(ctx, upsertSnapshot,
		key, string(payload), string(snap.Source), len(snap.Transactions),
		loadedAt.UnixMilli(), r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}

	r.logger.DebugContext(ctx, "Snapshot saved",
		"filter_key", key,
		log.FieldCount, len(snap.Transactions))
	return nil
}

// Load returns the snapshot stored under key. ok is false when there is none.
func (r *SnapshotRepository) Load(ctx context.Context, key string) (snap store.Snapshot, ok bool, err error) {
	var (
		payload  string
		loadedAt int64
	)
	err = r.db.QueryRowContext(ctx, selectSnapshot, key).Scan(&payload, &loadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Snapshot{}, false, nil
	}
	if err != nil {
		return store.Snapshot{}, false, fmt.Errorf("load snapshot %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return store.Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	if snap.LoadedAt.IsZero() {
		snap.LoadedAt = time.UnixMilli(loadedAt).UTC()
	}
	return snap, true, nil
}

// Keys lists stored filter keys, most recently updated first.
func (r *SnapshotRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, selectKeys)
	if err != nil {
		return nil, fmt.Errorf("list snapshot keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan snapshot key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Prune drops snapshots not updated since before. It returns the count removed.
func (r *SnapshotRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteOlderThan, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "Old snapshots pruned", log.FieldCount, n)
	}
	return n, nil
}
