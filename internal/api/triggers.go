package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-sesame/internal/audit"
	"github.com/nerrad567/gray-logic-sesame/internal/history"
)

// handleListTriggers returns every configured trigger in configuration order.
func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	triggers, err := s.core.Triggers(r.Context())
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"triggers": triggers,
		"count":    len(triggers),
	})
}

// handleGetTrigger returns one trigger by name.
func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	t, err := s.core.Trigger(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleListTriggerEvents returns the stored events of one trigger, newest
// first.
//
// Query parameters:
//   - event: filter by event (open, close, lock, unlock)
//   - since: RFC3339 lower bound
//   - limit: max results (default 50, max 500)
func (s *Server) handleListTriggerEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event history not configured")
		return
	}

	name := chi.URLParam(r, "name")
	if _, err := s.core.Trigger(r.Context(), name); err != nil {
		writeCoreError(w, err)
		return
	}

	q := r.URL.Query()
	filter := history.Filter{
		Trigger: name,
		Event:   q.Get("event"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}

	entries, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list trigger events", "trigger", name, "error", err)
		writeInternalError(w, "failed to list trigger events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trigger": name,
		"events":  entries,
		"count":   len(entries),
	})
}

// handleDisconnectTrigger closes the named trigger's session.
func (s *Server) handleDisconnectTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.core.DisconnectTrigger(r.Context(), name); err != nil {
		writeCoreError(w, err)
		return
	}

	s.recorder.Record(r.Context(), audit.ActionDisconnect, audit.EntityTrigger, name,
		subjectFromContext(r.Context()), audit.SourceAPI, nil)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "disconnecting"})
}
