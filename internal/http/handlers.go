package http

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"moneytrack/internal/core"
	"moneytrack/internal/export"
	"moneytrack/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": s.now().Sub(s.started).Round(time.Second).String(),
	})
}

// handleReady is ready only while the backend is believed reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	state := s.coord.Connectivity()
	status := http.StatusOK
	if state != core.Connected {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"connectivity": string(state)})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.State())
}

func (s *Server) handleApplyFilters(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(w, r)
	if err == nil {
		err = f.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logLoad(r, "apply filters", s.coord.ApplyFilters(r.Context(), f))
	writeJSON(w, http.StatusOK, s.coord.State())
}

func (s *Server) handleResetFilters(w http.ResponseWriter, r *http.Request) {
	s.logLoad(r, "reset filters", s.coord.ResetFilters(r.Context()))
	writeJSON(w, http.StatusOK, s.coord.State())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.logLoad(r, "refresh", s.coord.Refresh(r.Context()))
	writeJSON(w, http.StatusOK, s.coord.State())
}

func (s *Server) handleDismissError(w http.ResponseWriter, r *http.Request) {
	s.coord.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	draft, err := parseDraft(w, r, s.now())
	if err != nil {
		s.writeMutationError(w, r, log.OpCreate, err)
		return
	}

	created, err := s.coord.Add(r.Context(), draft)
	if err != nil {
		s.writeMutationError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changes, err := parseUpdate(w, r)
	if err != nil {
		s.writeMutationError(w, r, log.OpUpdate, err)
		return
	}

	updated, err := s.coord.Update(r.Context(), id, changes)
	if err != nil {
		s.writeMutationError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.coord.Delete(r.Context(), id); err != nil {
		s.writeMutationError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportCSV serves the loaded transactions as a download.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	snap := s.coord.Snapshot()

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, snap.Transactions); err != nil {
		log.FromContextOr(r.Context(), s.logger).ErrorContext(r.Context(), "CSV export failed",
			log.FieldOperation, log.OpExport,
			log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	s.metrics.ObserveExport("csv", len(snap.Transactions))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(s.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("type"))
	var typ core.TransactionType
	if raw != "" {
		parsed, err := core.ParseTransactionType(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		typ = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":       typ,
		"categories": core.CategoriesFor(typ),
	})
}

func (s *Server) writeMutationError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusBadRequest
	if !errors.Is(err, errBadBody) {
		status = statusFor(err)
	}
	if status >= 500 {
		log.FromContextOr(r.Context(), s.logger).ErrorContext(r.Context(), "Transaction change failed",
			log.FieldOperation, op,
			log.FieldStatusCode, status,
			log.FieldError, err.Error())
	}
	writeError(w, status, err.Error())
}

func (s *Server) logLoad(r *http.Request, action string, err error) {
	if !loadFailed(err) {
		return
	}
	log.FromContextOr(r.Context(), s.logger).WarnContext(r.Context(), "Load served from fallback",
		log.FieldOperation, action,
		log.FieldError, err.Error())
}
