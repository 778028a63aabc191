package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"moneytrack/internal/core"
	"moneytrack/internal/remote"
	"moneytrack/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a coordinator error to a response status. Input problems
// are 422, a record the backend does not know is 404, everything else means
// the backend failed us and is 502.
func statusFor(err error) int {
	var ve *remote.ValidationError
	switch {
	case core.IsValidation(err), errors.As(err, &ve), errors.Is(err, remote.ErrEmptyID):
		return http.StatusUnprocessableEntity
	case remote.StatusCode(err) == http.StatusNotFound:
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusBadGateway
	}
}

// loadFailed reports whether a load error is worth logging. A superseded or
// canceled load is routine and the fallback case is already in State.
func loadFailed(err error) bool {
	return err != nil &&
		!errors.Is(err, services.ErrSuperseded) &&
		!errors.Is(err, context.Canceled)
}

// sanitizeInput trims whitespace and strips control characters other than
// tab, newline and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
