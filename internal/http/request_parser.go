package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"moneytrack/internal/core"
)

const maxBodyBytes = 64 << 10

var errBadBody = errors.New("malformed request body")

// decodeJSON reads exactly one JSON value into v, rejecting unknown fields.
// Core validation errors raised by field decoders pass through unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if core.IsValidation(err) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		return fmt.Errorf("%w: trailing data", errBadBody)
	}
	return nil
}

// parseDraft decodes a new transaction and applies the form defaults:
// expense, the type's catch-all category and today's date.
func parseDraft(w http.ResponseWriter, r *http.Request, now time.Time) (core.Transaction, error) {
	var draft core.Transaction
	if err := decodeJSON(w, r, &draft); err != nil {
		return core.Transaction{}, err
	}

	draft.ID = ""
	draft.Title = sanitizeInput(draft.Title)
	draft.Description = sanitizeInput(draft.Description)
	if draft.Type == "" {
		draft.Type = core.Expense
	}
	if draft.Category == "" {
		draft.Category = core.DefaultCategory(draft.Type)
	}
	if draft.Date.IsZero() {
		draft.Date = core.DateOf(now)
	}
	return draft, nil
}

func parseUpdate(w http.ResponseWriter, r *http.Request) (core.TransactionUpdate, error) {
	var u core.TransactionUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		return core.TransactionUpdate{}, err
	}
	if u.Title != nil {
		t := sanitizeInput(*u.Title)
		u.Title = &t
	}
	if u.Description != nil {
		d := sanitizeInput(*u.Description)
		u.Description = &d
	}
	return u, nil
}

func parseFilters(w http.ResponseWriter, r *http.Request) (core.FilterCriteria, error) {
	var f core.FilterCriteria
	if err := decodeJSON(w, r, &f); err != nil {
		return core.FilterCriteria{}, err
	}
	f.Category = sanitizeInput(f.Category)
	f.Search = sanitizeInput(f.Search)
	return f, nil
}
