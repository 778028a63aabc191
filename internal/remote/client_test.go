package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"moneytrack/internal/core"
	"moneytrack/internal/log"
)

type recordedCall struct {
	method, endpoint string
	status           int
}

type fakeObserver struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (o *fakeObserver) ObserveRequest(method, endpoint string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, recordedCall{method, endpoint, status})
}

func TestClient_CheckHealth(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", http.StatusOK, true},
		{"no content", http.StatusNoContent, true},
		{"server error", http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != EndpointHealth {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			if got := New(srv.URL).CheckHealth(context.Background()); got != tt.want {
				t.Fatalf("CheckHealth() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		if New(url).CheckHealth(context.Background()) {
			t.Fatalf("expected false for unreachable backend")
		}
	})
}

func TestClient_ListTransactions_Query(t *testing.T) {
	tests := []struct {
		name      string
		filters   core.FilterCriteria
		wantQuery string
	}{
		{"empty filters send no query", core.FilterCriteria{}, ""},
		{"blank search is omitted", core.FilterCriteria{Search: "   "}, ""},
		{
			name:      "present fields only",
			filters:   core.FilterCriteria{Type: core.Expense, Month: 3},
			wantQuery: "month=3&type=expense",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.RawQuery
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{"transactions":[{"_id":"a1","title":"Rent","amount":15000,"type":"expense","category":"Home Rent","date":"2024-03-01T00:00:00.000Z"}],"total":1}`)
			}))
			defer srv.Close()

			list, err := New(srv.URL).ListTransactions(context.Background(), tt.filters)
			if err != nil {
				t.Fatalf("ListTransactions: %v", err)
			}
			if gotQuery != tt.wantQuery {
				t.Fatalf("query = %q, want %q", gotQuery, tt.wantQuery)
			}
			if len(list.Transactions) != 1 || list.Transactions[0].ID != "a1" {
				t.Fatalf("unexpected transactions %+v", list.Transactions)
			}
			if list.Transactions[0].Amount.Cents != 1500000 {
				t.Fatalf("amount = %d cents, want 1500000", list.Transactions[0].Amount.Cents)
			}
			if list.Transactions[0].Date.String() != "2024-03-01" {
				t.Fatalf("date = %s", list.Transactions[0].Date)
			}
		})
	}
}

func TestClient_ListTransactions_Errors(t *testing.T) {
	t.Run("status with server message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"message":"database offline"}`)
		}))
		defer srv.Close()

		_, err := New(srv.URL).ListTransactions(context.Background(), core.FilterCriteria{})
		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("expected FetchError, got %T (%v)", err, err)
		}
		if fe.StatusCode != 500 || fe.Endpoint != EndpointTransactions {
			t.Fatalf("unexpected error fields %+v", fe)
		}
		if err.Error() != "database offline" {
			t.Fatalf("message = %q", err.Error())
		}
		if StatusCode(err) != 500 {
			t.Fatalf("StatusCode() = %d", StatusCode(err))
		}
	})

	t.Run("status without body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := New(srv.URL).ListTransactions(context.Background(), core.FilterCriteria{})
		if err == nil || err.Error() != "fetch transactions failed with status 502" {
			t.Fatalf("unexpected error %v", err)
		}
		if IsTransport(err) {
			t.Fatalf("status failure classified as transport")
		}
	})

	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := New(url).ListTransactions(context.Background(), core.FilterCriteria{})
		if !IsTransport(err) {
			t.Fatalf("expected transport error, got %v", err)
		}
	})
}

func TestClient_FetchSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{
			"totals":{"income":100,"expense":40,"balance":999},
			"byCategory":{"Salary":100},
			"monthly":[{"month":"2024-02","income":60,"expense":10},{"month":"2024-01","income":40,"expense":30}]
		}`)
	}))
	defer srv.Close()

	s, err := New(srv.URL).FetchSummary(context.Background(), core.FilterCriteria{Year: 2024})
	if err != nil {
		t.Fatalf("FetchSummary: %v", err)
	}
	if got := s.Totals.Balance(); got != core.NewMoney(60) {
		t.Fatalf("balance = %s, want 60 (server balance ignored)", got)
	}
	if len(s.Monthly) != 2 || s.Monthly[0].Month != "2024-01" {
		t.Fatalf("monthly not chronological: %+v", s.Monthly)
	}
	if string(s.ByCategory) != `{"Salary":100}` {
		t.Fatalf("byCategory not passed through: %s", s.ByCategory)
	}
}

func TestClient_FetchCategoryAnalytics_Degrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	got := New(srv.URL).FetchCategoryAnalytics(context.Background(), core.FilterCriteria{})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestClient_FetchCategoryAnalytics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"_id":"Salary","totalAmount":50000,"count":2}]`)
	}))
	defer srv.Close()

	got := New(srv.URL).FetchCategoryAnalytics(context.Background(), core.FilterCriteria{})
	if len(got) != 1 || got[0].Category != "Salary" || got[0].Count != 2 || got[0].Total != core.NewMoney(50000) {
		t.Fatalf("unexpected aggregates %+v", got)
	}
}

func TestClient_CreateTransaction(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != EndpointTransactions {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing content type")
		}
		if r.Header.Get(log.RequestIDHeader) == "" {
			t.Errorf("missing request id header")
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"_id":"srv-9","title":"Coffee","amount":150,"type":"expense","category":"Food & Essentials","date":"2024-05-01"}`)
	}))
	defer srv.Close()

	draft := core.Transaction{
		ID:       "local",
		Title:    "Coffee",
		Amount:   core.NewMoney(150),
		Type:     core.Expense,
		Category: "Food & Essentials",
		Date:     core.NewDate(2024, 5, 1),
	}
	created, err := New(srv.URL).CreateTransaction(context.Background(), draft)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.ID != "srv-9" {
		t.Fatalf("id = %q, want srv-9", created.ID)
	}
	if _, ok := received["_id"]; ok {
		t.Fatalf("client id must not be sent: %v", received)
	}
	if received["amount"] != float64(150) {
		t.Fatalf("amount sent as %v (%T)", received["amount"], received["amount"])
	}
}

func TestClient_MutationErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		call       func(c *Client) error
		validation bool
		wantMsg    string
	}{
		{
			name:   "create rejected",
			status: http.StatusBadRequest,
			body:   `{"message":"Title is required"}`,
			call: func(c *Client) error {
				_, err := c.CreateTransaction(context.Background(), core.Transaction{})
				return err
			},
			validation: true,
			wantMsg:    "Title is required",
		},
		{
			name:   "update unprocessable",
			status: http.StatusUnprocessableEntity,
			body:   `{"message":"Invalid category"}`,
			call: func(c *Client) error {
				title := "x"
				_, err := c.UpdateTransaction(context.Background(), "abc", core.TransactionUpdate{Title: &title})
				return err
			},
			validation: true,
			wantMsg:    "Invalid category",
		},
		{
			name:    "delete not found",
			status:  http.StatusNotFound,
			body:    `{"message":"Transaction not found"}`,
			call:    func(c *Client) error { _, err := c.DeleteTransaction(context.Background(), "abc"); return err },
			wantMsg: "Transaction not found",
		},
		{
			name:   "update server error without message",
			status: http.StatusInternalServerError,
			body:   `oops`,
			call: func(c *Client) error {
				_, err := c.UpdateTransaction(context.Background(), "abc", core.TransactionUpdate{})
				return err
			},
			wantMsg: "update transaction failed with status 500",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			err := tt.call(New(srv.URL))
			if err == nil {
				t.Fatalf("expected error")
			}
			var ve *ValidationError
			if errors.As(err, &ve) != tt.validation {
				t.Fatalf("validation classification mismatch: %T", err)
			}
			if err.Error() != tt.wantMsg {
				t.Fatalf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestClient_UpdateAndDelete(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.EscapedPath())
		switch r.Method {
		case http.MethodPut:
			io.WriteString(w, `{"title":"Rent March","amount":15000,"type":"expense","category":"Home Rent","date":"2024-03-01"}`)
		case http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	obs := &fakeObserver{}
	c := New(srv.URL+"/", WithObserver(obs))

	title := "Rent March"
	updated, err := c.UpdateTransaction(context.Background(), "a b", core.TransactionUpdate{Title: &title})
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if updated.ID != "a b" || updated.Title != "Rent March" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if _, err := c.DeleteTransaction(context.Background(), "a b"); err != nil {
		t.Fatalf("DeleteTransaction with empty body: %v", err)
	}
	if _, err := c.DeleteTransaction(context.Background(), " "); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}

	want := []string{"PUT /transactions/a%20b", "DELETE /transactions/a%20b"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	if len(obs.calls) != 2 || obs.calls[0].endpoint != "/transactions/{id}" || obs.calls[1].status != 200 {
		t.Fatalf("unexpected observations %+v", obs.calls)
	}
}

func TestClient_PropagatesRequestID(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(log.RequestIDHeader)
	}))
	defer srv.Close()

	ctx := log.WithRequestID(context.Background(), "req-123")
	New(srv.URL).CheckHealth(ctx)
	if got != "req-123" {
		t.Fatalf("request id = %q, want req-123", got)
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := c.FetchSummary(context.Background(), core.FilterCriteria{})
	if !IsTransport(err) {
		t.Fatalf("expected transport error on timeout, got %v", err)
	}
}
