package store

import (
	"sort"
	"strings"

	"moneytrack/internal/core"
)

// RecentTransactions returns up to n records sorted by date, newest first.
// Ties keep server order. n <= 0 returns all of them.
func (s Snapshot) RecentTransactions(n int) []core.Transaction {
	out := append([]core.Transaction(nil), s.Transactions...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date.Time)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// TopCategories returns up to n aggregates by total, largest first.
func (s Snapshot) TopCategories(n int) []core.CategoryAggregate {
	out := append([]core.CategoryAggregate(nil), s.Categories...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.Cents > out[j].Total.Cents
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SearchLocal matches q case-insensitively against title, category and
// description of the loaded records. An empty query matches everything.
func (s Snapshot) SearchLocal(q string) []core.Transaction {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]core.Transaction, 0, len(s.Transactions))
	for _, t := range s.Transactions {
		if q == "" ||
			strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.Category), q) ||
			strings.Contains(strings.ToLower(t.Description), q) {
			out = append(out, t)
		}
	}
	return out
}
