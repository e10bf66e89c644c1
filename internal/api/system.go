package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/audit"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// healthCheckTimeout bounds each component check on /health.
const healthCheckTimeout = 2 * time.Second

// resetConfirmation must be sent verbatim to POST /server/reset.
const resetConfirmation = "RESET"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Server     sesame.Status     `json:"server"`
	Components map[string]string `json:"components,omitempty"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Server        sesame.Status  `json:"server"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// handleHealth reports the core state and every registered component
// check. A failed core or component answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.core.Status()
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Server:  st,
	}
	if st.Failed {
		resp.Status = "failed"
	}

	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				if resp.Status == "ok" {
					resp.Status = "degraded"
				}
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleStatus returns the core summary with runtime statistics.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, http.StatusOK, StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Server:        s.core.Status(),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
	})
}

// AdvertisingRequest is the body of POST /advertising.
type AdvertisingRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleAdvertising starts or stops advertising.
func (s *Server) handleAdvertising(w http.ResponseWriter, r *http.Request) {
	var req AdvertisingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}

	var err error
	if *req.Enabled {
		err = s.core.StartAdvertising(r.Context())
	} else {
		err = s.core.StopAdvertising(r.Context())
	}
	if err != nil {
		writeCoreError(w, err)
		return
	}

	s.recorder.Record(r.Context(), audit.ActionAdvertising, audit.EntityServer, "",
		subjectFromContext(r.Context()), audit.SourceAPI, map[string]any{"enabled": *req.Enabled})
	writeJSON(w, http.StatusOK, map[string]any{"advertising": *req.Enabled})
}

// ResetRequest is the body of POST /server/reset.
type ResetRequest struct {
	Confirm string `json:"confirm"`
}

// handleReset erases the pairing secret and restarts the server.
//
// This is a destructive operation; the request must include an exact
// confirmation string as a safety guard.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Confirm != resetConfirmation {
		writeBadRequest(w, `confirm field must be exactly "`+resetConfirmation+`"`)
		return
	}

	subject := subjectFromContext(r.Context())
	if err := s.core.Reset(r.Context()); err != nil {
		s.logger.Error("server reset failed", "error", err, "subject", subject)
		s.recorder.Record(r.Context(), audit.ActionResetFailed, audit.EntityServer, "",
			subject, audit.SourceAPI, map[string]any{"error": err.Error()})
		writeInternalError(w, "reset failed")
		return
	}

	s.logger.Warn("server reset", "subject", subject)
	s.recorder.Record(r.Context(), audit.ActionReset, audit.EntityServer, "",
		subject, audit.SourceAPI, nil)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}
