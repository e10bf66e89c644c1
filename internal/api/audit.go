package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nerrad567/gray-logic-sesame/internal/audit"
)

// handleListAuditLogs serves GET /audit. Filters: action, entity_type,
// entity_id, source. Paging: limit (default 50, max 200) and offset.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit logging not configured")
		return
	}

	filter, err := auditFilter(r.URL.Query())
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	page, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func auditFilter(q url.Values) (audit.Filter, error) {
	f := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Source:     q.Get("source"),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return audit.Filter{}, fmt.Errorf("%s must be a non-negative integer", p.name)
		}
		*p.dst = n
	}
	return f, nil
}
