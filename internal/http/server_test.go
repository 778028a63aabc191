package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"moneytrack/internal/core"
	"moneytrack/internal/metrics"
	"moneytrack/internal/remote"
	"moneytrack/internal/services"
	"moneytrack/internal/store"
)

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type fakeCoord struct {
	connectivity core.Connectivity
	snap         store.Snapshot
	lastErr      string

	applied   []core.FilterCriteria
	resets    int
	refreshes int
	dismissed int

	added   core.Transaction
	addErr  error
	updID   string
	upd     core.TransactionUpdate
	updErr  error
	deleted string
	delErr  error
}

func (f *fakeCoord) State() services.State {
	return services.State{Connectivity: f.connectivity, Error: f.lastErr, Snapshot: f.snap}
}
func (f *fakeCoord) Snapshot() store.Snapshot           { return f.snap }
func (f *fakeCoord) Connectivity() core.Connectivity    { return f.connectivity }
func (f *fakeCoord) Refresh(context.Context) error      { f.refreshes++; return nil }
func (f *fakeCoord) ResetFilters(context.Context) error { f.resets++; return nil }
func (f *fakeCoord) DismissError()                      { f.dismissed++; f.lastErr = "" }

func (f *fakeCoord) ApplyFilters(_ context.Context, c core.FilterCriteria) error {
	f.applied = append(f.applied, c)
	return nil
}

func (f *fakeCoord) Add(_ context.Context, draft core.Transaction) (core.Transaction, error) {
	f.added = draft
	if f.addErr != nil {
		return core.Transaction{}, f.addErr
	}
	draft.ID = "srv-1"
	return draft, nil
}

func (f *fakeCoord) Update(_ context.Context, id string, u core.TransactionUpdate) (core.Transaction, error) {
	f.updID, f.upd = id, u
	if f.updErr != nil {
		return core.Transaction{}, f.updErr
	}
	return u.Apply(core.Transaction{ID: id, Title: "Old", Type: core.Expense, Category: "Transport"}), nil
}

func (f *fakeCoord) Delete(_ context.Context, id string) error {
	f.deleted = id
	return f.delErr
}

func newTestServer(t *testing.T, coord *fakeCoord, m *metrics.Collector) *Server {
	t.Helper()
	srv := NewServer(coord, Options{Addr: ":0", Metrics: m, Now: func() time.Time { return fixedNow }})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	coord := &fakeCoord{connectivity: core.Disconnected}
	srv := newTestServer(t, coord, nil)

	if rr := do(srv, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
	if rr := do(srv, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz while disconnected: status=%d", rr.Code)
	}
	coord.connectivity = core.Connected
	if rr := do(srv, http.MethodGet, "/readyz", ""); rr.Code != http.StatusOK {
		t.Fatalf("readyz while connected: status=%d", rr.Code)
	}
}

func TestState(t *testing.T) {
	coord := &fakeCoord{
		connectivity: core.Disconnected,
		lastErr:      "failed to load data from /transactions: boom",
		snap:         services.DemoSnapshot(fixedNow),
	}
	srv := newTestServer(t, coord, nil)

	rr := do(srv, http.MethodGet, "/api/state", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}

	var body struct {
		Connectivity string             `json:"connectivity"`
		Error        string             `json:"error"`
		Transactions []core.Transaction `json:"transactions"`
		Source       string             `json:"source"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Connectivity != "disconnected" || body.Error == "" {
		t.Fatalf("unexpected state %+v", body)
	}
	if len(body.Transactions) != 3 || body.Source != string(store.SourceFallback) {
		t.Fatalf("expected 3 demo transactions from fallback, got %d from %q", len(body.Transactions), body.Source)
	}
}

func TestFilters(t *testing.T) {
	coord := &fakeCoord{}
	srv := newTestServer(t, coord, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid month", `{"month":13}`, http.StatusBadRequest},
		{"unknown field", `{"colour":"red"}`, http.StatusBadRequest},
		{"not json", `month=3`, http.StatusBadRequest},
		{"valid", `{"type":"expense","month":3,"search":"  coffee "}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(srv, http.MethodPut, "/api/filters", tt.body); rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	if len(coord.applied) != 1 {
		t.Fatalf("expected exactly one applied filter set, got %d", len(coord.applied))
	}
	got := coord.applied[0]
	if got.Type != core.Expense || got.Month != 3 || got.Search != "coffee" {
		t.Fatalf("unexpected criteria %+v", got)
	}

	if rr := do(srv, http.MethodDelete, "/api/filters", ""); rr.Code != http.StatusOK || coord.resets != 1 {
		t.Fatalf("reset: status=%d resets=%d", rr.Code, coord.resets)
	}
	if rr := do(srv, http.MethodPost, "/api/refresh", ""); rr.Code != http.StatusOK || coord.refreshes != 1 {
		t.Fatalf("refresh: status=%d refreshes=%d", rr.Code, coord.refreshes)
	}
}

func TestCreateTransaction(t *testing.T) {
	coord := &fakeCoord{}
	srv := newTestServer(t, coord, nil)

	rr := do(srv, http.MethodPost, "/api/transactions", `{"title":" Coffee ","amount":150}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	d := coord.added
	if d.Title != "Coffee" || d.Amount != core.NewMoney(150) {
		t.Fatalf("unexpected draft %+v", d)
	}
	if d.Type != core.Expense || d.Category != "Other Expense" || d.Date != core.NewDate(2024, 5, 1) {
		t.Fatalf("defaults not applied: %+v", d)
	}

	_ = do(srv, http.MethodPost, "/api/transactions", `{"title":"Pay","amount":10,"type":"income"}`)
	if coord.added.Category != "Other Income" {
		t.Fatalf("income draft should default to Other Income, got %q", coord.added.Category)
	}

	var created core.Transaction
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil || created.ID != "srv-1" {
		t.Fatalf("unexpected response %s (%v)", rr.Body.String(), err)
	}
}

func TestMutationErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		setup  func(*fakeCoord)
		want   int
	}{
		{"bad amount", http.MethodPost, "/api/transactions", `{"title":"x","amount":"abc"}`, nil, http.StatusUnprocessableEntity},
		{"malformed", http.MethodPost, "/api/transactions", `{"title":`, nil, http.StatusBadRequest},
		{"local validation", http.MethodPost, "/api/transactions", `{"title":"x","amount":1}`,
			func(c *fakeCoord) { c.addErr = core.ErrEmptyTitle }, http.StatusUnprocessableEntity},
		{"server validation", http.MethodPost, "/api/transactions", `{"title":"x","amount":1}`,
			func(c *fakeCoord) {
				c.addErr = &remote.ValidationError{Op: "create transaction", StatusCode: 400, Message: "title required"}
			}, http.StatusUnprocessableEntity},
		{"backend down", http.MethodPost, "/api/transactions", `{"title":"x","amount":1}`,
			func(c *fakeCoord) {
				c.addErr = &remote.TransportError{Op: "create transaction", Endpoint: "/transactions", Err: errors.New("refused")}
			}, http.StatusBadGateway},
		{"update unknown id", http.MethodPut, "/api/transactions/nope", `{"amount":10}`,
			func(c *fakeCoord) {
				c.updErr = &remote.FetchError{Op: "update transaction", Endpoint: "/transactions/nope", StatusCode: 404}
			}, http.StatusNotFound},
		{"empty update", http.MethodPut, "/api/transactions/a", `{}`,
			func(c *fakeCoord) { c.updErr = core.ErrEmptyUpdate }, http.StatusUnprocessableEntity},
		{"delete server error", http.MethodDelete, "/api/transactions/a", "",
			func(c *fakeCoord) {
				c.delErr = &remote.FetchError{Op: "delete transaction", Endpoint: "/transactions/a", StatusCode: 500}
			}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord := &fakeCoord{}
			if tt.setup != nil {
				tt.setup(coord)
			}
			srv := newTestServer(t, coord, nil)
			rr := do(srv, tt.method, tt.path, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Fatalf("expected JSON error body, got %s", rr.Body.String())
			}
		})
	}
}

func TestUpdateAndDelete(t *testing.T) {
	coord := &fakeCoord{}
	srv := newTestServer(t, coord, nil)

	rr := do(srv, http.MethodPut, "/api/transactions/abc", `{"title":"Dinner","amount":"12.50"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if coord.updID != "abc" || coord.upd.Title == nil || *coord.upd.Title != "Dinner" || coord.upd.Type != nil {
		t.Fatalf("unexpected update %q %+v", coord.updID, coord.upd)
	}
	if coord.upd.Amount == nil || coord.upd.Amount.Cents != 1250 {
		t.Fatalf("unexpected amount %+v", coord.upd.Amount)
	}

	if rr := do(srv, http.MethodDelete, "/api/transactions/abc", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if coord.deleted != "abc" {
		t.Fatalf("deleted %q", coord.deleted)
	}

	coord.lastErr = "banner"
	if rr := do(srv, http.MethodDelete, "/api/error", ""); rr.Code != http.StatusNoContent || coord.dismissed != 1 {
		t.Fatalf("dismiss: status=%d dismissed=%d", rr.Code, coord.dismissed)
	}
}

func TestExportCSV(t *testing.T) {
	coord := &fakeCoord{snap: services.DemoSnapshot(fixedNow)}
	m := metrics.New()
	srv := newTestServer(t, coord, m)

	rr := do(srv, http.MethodGet, "/api/export.csv", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "expenses-2024-05-01.csv") {
		t.Fatalf("content disposition %q", cd)
	}
	lines := strings.Split(strings.TrimSuffix(rr.Body.String(), "\n"), "\n")
	if len(lines) != 4 || lines[0] != "Date,Title,Amount,Type,Category" {
		t.Fatalf("unexpected csv:\n%s", rr.Body.String())
	}

	if rr := do(srv, http.MethodGet, "/metrics", ""); rr.Code != http.StatusOK ||
		!strings.Contains(rr.Body.String(), `moneytrack_export_rows_total{target="csv"} 3`) {
		t.Fatalf("metrics missing export count:\n%s", rr.Body.String())
	}
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t, &fakeCoord{}, nil)

	rr := do(srv, http.MethodGet, "/api/categories?type=income", "")
	var body struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || len(body.Categories) != 6 {
		t.Fatalf("income categories: %s (%v)", rr.Body.String(), err)
	}

	rr = do(srv, http.MethodGet, "/api/categories", "")
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || len(body.Categories) != 12 {
		t.Fatalf("all categories: %s (%v)", rr.Body.String(), err)
	}

	if rr := do(srv, http.MethodGet, "/api/categories?type=bogus", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bogus type status=%d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeCoord{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/transactions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin %q", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{clients: map[string]*clientInfo{}, now: func() time.Time { return fixedNow }}
	m := &securityMetrics{}
	for i := 0; i < rateLimitRequests; i++ {
		if !rl.allow("1.2.3.4", m) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("1.2.3.4", m) {
		t.Fatalf("request over the limit should be rejected")
	}
	if !rl.allow("5.6.7.8", m) {
		t.Fatalf("other clients are unaffected")
	}
	if m.rateLimitHits != 1 {
		t.Fatalf("rate limit hits = %d", m.rateLimitHits)
	}

	rl.now = func() time.Time { return fixedNow.Add(2 * time.Minute) }
	if !rl.allow("1.2.3.4", m) {
		t.Fatalf("a new window should reset the counter")
	}

	rl.now = func() time.Time { return fixedNow.Add(20 * time.Minute) }
	rl.cleanupStaleEntries()
	if len(rl.clients) != 0 {
		t.Fatalf("stale entries remain: %d", len(rl.clients))
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		remote string
		xff    string
		want   string
	}{
		{"203.0.113.9:5000", "198.51.100.1", "203.0.113.9"},
		{"10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"10.0.0.2:5000", "garbage", "10.0.0.2"},
		{"127.0.0.1:1", "", "127.0.0.1"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		if got := extractClientIP(req); got != tt.want {
			t.Fatalf("extractClientIP(%s, %q) = %s, want %s", tt.remote, tt.xff, got, tt.want)
		}
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	m := &securityMetrics{}
	if detectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/api/state", nil), m) {
		t.Fatalf("plain request flagged")
	}
	if !detectSuspiciousRequest(httptest.NewRequest(http.MethodGet, "/api/../.env", nil), m) {
		t.Fatalf("traversal not flagged")
	}
	if m.suspiciousRequests != 1 {
		t.Fatalf("suspicious count = %d", m.suspiciousRequests)
	}
}
