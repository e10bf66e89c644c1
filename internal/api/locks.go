package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-sesame/internal/audit"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// SetLockRequest is the body of PUT /locks/{id}.
type SetLockRequest struct {
	State *sesame.LockState `json:"state"`
}

// SetLockResponse is the body returned by PUT /locks/{id}. Delivered is
// false when the state was applied but at least one peer could not be told;
// such peers are reconciled when they next connect.
type SetLockResponse struct {
	sesame.LockSnapshot
	Delivered bool `json:"delivered"`
}

// handleListLocks returns every lock entity, the shared lock first.
func (s *Server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	locks, err := s.core.Locks(r.Context())
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"locks": locks,
		"count": len(locks),
	})
}

// handleGetLock returns one lock entity.
func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	l, err := s.core.Lock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// handleSetLock sets a lock entity's state and returns the updated entity.
func (s *Server) handleSetLock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SetLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid body: "+err.Error())
		return
	}
	if req.State == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "state is required")
		return
	}

	delivered := true
	if err := s.core.ControlLock(r.Context(), id, *req.State); err != nil {
		if !errors.Is(err, sesame.ErrNoSession) && !errors.Is(err, sesame.ErrSendFailed) {
			writeCoreError(w, err)
			return
		}
		s.logger.Warn("lock state applied but not delivered", "lock", id, "error", err)
		delivered = false
	}
	s.recorder.Record(r.Context(), audit.ActionLockControl, audit.EntityLock, id,
		subjectFromContext(r.Context()), audit.SourceAPI,
		map[string]any{"state": req.State.String(), "delivered": delivered})

	l, err := s.core.Lock(r.Context(), id)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SetLockResponse{LockSnapshot: l, Delivered: delivered})
}
