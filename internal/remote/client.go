// Package remote is the typed client for the money backend's REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"moneytrack/internal/core"
	"moneytrack/internal/log"
)

const (
	EndpointHealth       = "/health"
	EndpointTransactions = "/transactions"
	EndpointSummary      = "/summary"
	EndpointAnalytics    = "/analytics/categories"

	// endpointTransaction is the metrics label for per-id routes.
	endpointTransaction = "/transactions/{id}"

	maxErrorBody = 64 << 10
)

const (
	opList      = "fetch transactions"
	opSummary   = "fetch summary"
	opAnalytics = "fetch category analytics"
	opCreate    = "create transaction"
	opUpdate    = "update transaction"
	opDelete    = "delete transaction"
)

var ErrEmptyID = errors.New("transaction id is required")

// Observer receives one call per completed request. Status is 0 when no
// response arrived.
type Observer interface {
	ObserveRequest(method, endpoint string, status int, duration time.Duration)
}

// TransactionList is the /transactions payload.
type TransactionList struct {
	Transactions []core.Transaction `json:"transactions"`
	Total        int                `json:"total,omitempty"`
}

// Ack is the delete acknowledgement. Servers vary in what they echo back,
// so every field is optional.
type Ack struct {
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	observer   Observer
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request. Zero leaves requests unbounded apart
// from the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.WithComponent(log.ComponentRemote)
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     log.Discard().WithComponent(log.ComponentRemote),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// CheckHealth never fails: any transport error or non-2xx status is false.
func (c *Client) CheckHealth(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, EndpointHealth, EndpointHealth, nil, nil)
	if err != nil {
		return false
	}
	defer drain(resp)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Client) ListTransactions(ctx context.Context, f core.FilterCriteria) (TransactionList, error) {
	var out TransactionList
	if err := c.getJSON(ctx, opList, EndpointTransactions, f, &out); err != nil {
		return TransactionList{}, err
	}
	if out.Transactions == nil {
		out.Transactions = []core.Transaction{}
	}
	return out, nil
}

func (c *Client) FetchSummary(ctx context.Context, f core.FilterCriteria) (core.Summary, error) {
	var out core.Summary
	if err := c.getJSON(ctx, opSummary, EndpointSummary, f, &out); err != nil {
		return core.Summary{}, err
	}
	out.Normalize()
	return out, nil
}

// FetchCategoryAnalytics degrades to an empty slice on any failure; the
// analytics panel is supplementary and must not fail a load.
func (c *Client) FetchCategoryAnalytics(ctx context.Context, f core.FilterCriteria) []core.CategoryAggregate {
	var out []core.CategoryAggregate
	if err := c.getJSON(ctx, opAnalytics, EndpointAnalytics, f, &out); err != nil {
		c.logger.WarnContext(ctx, "Category analytics unavailable, continuing without",
			log.FieldEndpoint, EndpointAnalytics,
			log.FieldError, err.Error())
		return []core.CategoryAggregate{}
	}
	if out == nil {
		out = []core.CategoryAggregate{}
	}
	return out
}

func (c *Client) CreateTransaction(ctx context.Context, draft core.Transaction) (core.Transaction, error) {
	draft.ID = ""
	var out core.Transaction
	if err := c.sendJSON(ctx, opCreate, http.MethodPost, EndpointTransactions, EndpointTransactions, draft, &out); err != nil {
		return core.Transaction{}, err
	}
	return out, nil
}

func (c *Client) UpdateTransaction(ctx context.Context, id string, changes core.TransactionUpdate) (core.Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return core.Transaction{}, ErrEmptyID
	}
	var out core.Transaction
	if err := c.sendJSON(ctx, opUpdate, http.MethodPut, transactionPath(id), endpointTransaction, changes, &out); err != nil {
		return core.Transaction{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) (Ack, error) {
	if strings.TrimSpace(id) == "" {
		return Ack{}, ErrEmptyID
	}
	var out Ack
	if err := c.sendJSON(ctx, opDelete, http.MethodDelete, transactionPath(id), endpointTransaction, nil, &out); err != nil {
		return Ack{}, err
	}
	return out, nil
}

func transactionPath(id string) string {
	return EndpointTransactions + "/" + url.PathEscape(id)
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, f core.FilterCriteria, out any) error {
	resp, err := c.do(ctx, http.MethodGet, endpoint, endpoint, f.Query(), nil)
	if err != nil {
		return &TransportError{Op: op, Endpoint: endpoint, Err: err}
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &FetchError{Op: op, Endpoint: endpoint, StatusCode: resp.StatusCode, Message: serverMessage(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, op, method, path, label string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	resp, err := c.do(ctx, method, path, label, nil, payload)
	if err != nil {
		return &TransportError{Op: op, Endpoint: label, Err: err}
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := serverMessage(resp.Body)
		if method != http.MethodDelete && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity) {
			return &ValidationError{Op: op, StatusCode: resp.StatusCode, Message: msg}
		}
		return &FetchError{Op: op, Endpoint: label, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// do sends one request and reports it to the logger and observer. label is
// the route template used for logging and metrics.
func (c *Client) do(ctx context.Context, method, path, label string, query url.Values, payload []byte) (*http.Response, error) {
	target := c.baseURL + path
	if enc := query.Encode(); enc != "" {
		target += "?" + enc
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := log.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(log.RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if c.observer != nil {
		c.observer.ObserveRequest(method, label, status, elapsed)
	}

	fields := log.NewFields().
		WithRequestID(requestID).
		WithRemoteCall(method, label, query.Encode(), status, elapsed.Milliseconds())
	if err != nil {
		c.logger.WarnContext(ctx, "Backend request failed", fields.WithError(err).ToSlice()...)
		return nil, err
	}
	if status >= 400 {
		c.logger.WarnContext(ctx, "Backend returned error status", fields.ToSlice()...)
	} else {
		c.logger.DebugContext(ctx, "Backend request completed", fields.ToSlice()...)
	}
	return resp, nil
}

// serverMessage extracts the "message" field from an error body.
func serverMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, maxErrorBody)).Decode(&body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
