// Package store holds the loaded transaction list together with the summary
// and category aggregates fetched in the same cycle.
package store

import (
	"sync"
	"time"

	"moneytrack/internal/core"
)

// Source tells where the current snapshot came from.
type Source string

const (
	SourceNone     Source = ""
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
	SourceCache    Source = "cache"
)

// Snapshot is one consistent load cycle. Transactions keep server order.
type Snapshot struct {
	Transactions []core.Transaction       `json:"transactions"`
	Summary      core.Summary             `json:"summary"`
	Categories   []core.CategoryAggregate `json:"categories"`
	Source       Source                   `json:"source"`
	Filters      core.FilterCriteria      `json:"filters"`
	LoadedAt     time.Time                `json:"loadedAt"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Transactions = append(make([]core.Transaction, 0, len(s.Transactions)), s.Transactions...)
	out.Categories = append(make([]core.CategoryAggregate, 0, len(s.Categories)), s.Categories...)
	out.Summary.Monthly = append(make([]core.MonthlyPoint, 0, len(s.Summary.Monthly)), s.Summary.Monthly...)
	if s.Summary.ByCategory != nil {
		out.Summary.ByCategory = append([]byte(nil), s.Summary.ByCategory...)
	}
	return out
}

// Find returns the transaction with the given id.
func (s Snapshot) Find(id string) (core.Transaction, bool) {
	for _, t := range s.Transactions {
		if t.ID == id {
			return t, true
		}
	}
	return core.Transaction{}, false
}

// Store is safe for concurrent use. Readers always observe a whole snapshot;
// Replace swaps all three parts under one lock.
type Store struct {
	mu      sync.RWMutex
	snap    Snapshot
	version uint64
}

func New() *Store {
	return &Store{snap: Snapshot{}.Clone()}
}

// Replace installs s as the current snapshot.
func (st *Store) Replace(s Snapshot) {
	s = s.Clone()
	s.Summary.Normalize()
	st.mu.Lock()
	defer st.mu.Unlock()
	st.snap = s
	st.version++
}

// Prepend puts a confirmed record at the head of the list.
func (st *Store) Prepend(t core.Transaction) {
	st.mu.Lock()
	defer st.mu.Unlock()
	txs := make([]core.Transaction, 0, len(st.snap.Transactions)+1)
	txs = append(txs, t)
	st.snap.Transactions = append(txs, st.snap.Transactions...)
	st.version++
}

// ReplaceTransaction swaps the record with the same id in place. It reports
// false, leaving the list untouched, when no record matches.
func (st *Store) ReplaceTransaction(t core.Transaction) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i := range st.snap.Transactions {
		if st.snap.Transactions[i].ID == t.ID {
			txs := append([]core.Transaction(nil), st.snap.Transactions...)
			txs[i] = t
			st.snap.Transactions = txs
			st.version++
			return true
		}
	}
	return false
}

// Remove deletes the record with the given id. An unknown id is a no-op.
func (st *Store) Remove(id string) (core.Transaction, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, t := range st.snap.Transactions {
		if t.ID == id {
			txs := make([]core.Transaction, 0, len(st.snap.Transactions)-1)
			txs = append(txs, st.snap.Transactions[:i]...)
			st.snap.Transactions = append(txs, st.snap.Transactions[i+1:]...)
			st.version++
			return t, true
		}
	}
	return core.Transaction{}, false
}

// Snapshot returns a deep copy of the current state.
func (st *Store) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snap.Clone()
}

// Version increases on every change.
func (st *Store) Version() uint64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.version
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.snap.Transactions)
}
