package core

import (
	"net/url"
	"strconv"
	"strings"
)

// FilterCriteria is the active query. A zero field means no constraint on
// that dimension and is never sent to the backend.
type FilterCriteria struct {
	Type     TransactionType `json:"type,omitempty"`
	Category string          `json:"category,omitempty"`
	Month    int             `json:"month,omitempty"` // 1-12
	Year     int             `json:"year,omitempty"`
	Search   string          `json:"search,omitempty"`
}

// Query serializes only the present fields.
func (f FilterCriteria) Query() url.Values {
	q := url.Values{}
	if t := strings.TrimSpace(string(f.Type)); t != "" {
		q.Set("type", t)
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		q.Set("category", c)
	}
	if f.Month != 0 {
		q.Set("month", strconv.Itoa(f.Month))
	}
	if f.Year != 0 {
		q.Set("year", strconv.Itoa(f.Year))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q.Set("search", s)
	}
	return q
}

// Encode returns the query string, empty when nothing is constrained.
func (f FilterCriteria) Encode() string {
	return f.Query().Encode()
}

func (f FilterCriteria) IsEmpty() bool {
	return len(f.Query()) == 0
}

// Key identifies the criteria for snapshot caching.
func (f FilterCriteria) Key() string {
	if f.IsEmpty() {
		return "all"
	}
	return f.Encode()
}

func (f FilterCriteria) Validate() error {
	if t := strings.TrimSpace(string(f.Type)); t != "" && !TransactionType(t).IsValid() {
		return ErrInvalidType
	}
	if f.Month < 0 || f.Month > 12 {
		return ErrInvalidMonth
	}
	if f.Year < 0 || f.Year > 9999 {
		return ErrInvalidYear
	}
	return nil
}
