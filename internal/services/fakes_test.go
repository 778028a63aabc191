package services

import (
	"context"
	"sync"
	"time"

	"moneytrack/internal/core"
	"moneytrack/internal/remote"
	"moneytrack/internal/store"
)

// fakeRemote is a scriptable backend. Nil hooks fall back to canned data.
type fakeRemote struct {
	mu      sync.Mutex
	healthy bool
	txs     []core.Transaction
	calls   map[string]int
	filters []core.FilterCriteria

	listHook    func(ctx context.Context, f core.FilterCriteria) (remote.TransactionList, error)
	summaryErr  error
	createFn    func(draft core.Transaction) (core.Transaction, error)
	updateFn    func(id string, u core.TransactionUpdate) (core.Transaction, error)
	deleteErr   error
	analyticsOK bool
}

func newFakeRemote(txs ...core.Transaction) *fakeRemote {
	return &fakeRemote{healthy: true, txs: txs, calls: map[string]int{}, analyticsOK: true}
}

func (f *fakeRemote) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeRemote) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) setTransactions(txs ...core.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = txs
}

func (f *fakeRemote) CheckHealth(ctx context.Context) bool {
	f.record("health")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeRemote) ListTransactions(ctx context.Context, c core.FilterCriteria) (remote.TransactionList, error) {
	f.record("list")
	f.mu.Lock()
	f.filters = append(f.filters, c)
	hook := f.listHook
	txs := append([]core.Transaction(nil), f.txs...)
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, c)
	}
	if err := ctx.Err(); err != nil {
		return remote.TransactionList{}, err
	}
	return remote.TransactionList{Transactions: txs, Total: len(txs)}, nil
}

func (f *fakeRemote) FetchSummary(ctx context.Context, c core.FilterCriteria) (core.Summary, error) {
	f.record("summary")
	f.mu.Lock()
	err := f.summaryErr
	txs := append([]core.Transaction(nil), f.txs...)
	f.mu.Unlock()
	if err != nil {
		return core.Summary{}, err
	}
	s, _ := core.Summarize(txs)
	return s, nil
}

func (f *fakeRemote) FetchCategoryAnalytics(ctx context.Context, c core.FilterCriteria) []core.CategoryAggregate {
	f.record("analytics")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.analyticsOK {
		return []core.CategoryAggregate{}
	}
	_, cats := core.Summarize(f.txs)
	return cats
}

func (f *fakeRemote) CreateTransaction(ctx context.Context, draft core.Transaction) (core.Transaction, error) {
	f.record("create")
	if f.createFn != nil {
		return f.createFn(draft)
	}
	draft.ID = "srv-1"
	return draft, nil
}

func (f *fakeRemote) UpdateTransaction(ctx context.Context, id string, u core.TransactionUpdate) (core.Transaction, error) {
	f.record("update")
	if f.updateFn != nil {
		return f.updateFn(id, u)
	}
	return core.Transaction{}, nil
}

func (f *fakeRemote) DeleteTransaction(ctx context.Context, id string) (remote.Ack, error) {
	f.record("delete")
	if f.deleteErr != nil {
		return remote.Ack{}, f.deleteErr
	}
	return remote.Ack{Message: "deleted"}, nil
}

type publishedChange struct {
	kind core.ChangeKind
	tx   core.Transaction
}

type fakeNotifier struct {
	mu      sync.Mutex
	changes []publishedChange
	err     error
}

func (n *fakeNotifier) PublishChange(_ context.Context, kind core.ChangeKind, tx core.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, publishedChange{kind, tx})
	return n.err
}

type fakeMetrics struct {
	mu       sync.Mutex
	states   []core.Connectivity
	loads    []string
	mutation map[string]int
}

func (m *fakeMetrics) SetConnectivity(s core.Connectivity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
}

func (m *fakeMetrics) ObserveLoad(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads = append(m.loads, outcome)
}

func (m *fakeMetrics) ObserveMutation(op string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mutation == nil {
		m.mutation = map[string]int{}
	}
	key := op + ":fail"
	if ok {
		key = op + ":ok"
	}
	m.mutation[key]++
}

type fakeRepo struct {
	mu    sync.Mutex
	saved map[string]store.Snapshot
	err   error
}

func (r *fakeRepo) Save(_ context.Context, key string, snap store.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		r.saved = map[string]store.Snapshot{}
	}
	r.saved[key] = snap
	return r.err
}

func (r *fakeRepo) Load(_ context.Context, key string) (store.Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return store.Snapshot{}, false, r.err
	}
	snap, ok := r.saved[key]
	return snap, ok, nil
}
