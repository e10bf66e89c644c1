package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-sesame/internal/auth"
)

// buildRouter mounts every route under /api/v1.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID, echoRequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverPanics)
	r.Use(s.cors)
	r.Use(limitBody)

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated monitoring.
		r.Get("/health", s.handleHealth)
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}

		// Authenticated by ticket inside the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/status", s.handleStatus)

			r.Route("/triggers", func(r chi.Router) {
				r.Get("/", s.handleListTriggers)
				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", s.handleGetTrigger)
					r.Get("/events", s.handleListTriggerEvents)
					r.Post("/disconnect", s.handleDisconnectTrigger)
				})
			})

			r.Route("/locks", func(r chi.Router) {
				r.Get("/", s.handleListLocks)
				r.Get("/{id}", s.handleGetLock)
				r.Put("/{id}", s.handleSetLock)
			})

			r.Post("/advertising", s.handleAdvertising)
			r.Get("/audit", s.handleListAuditLogs)

			r.With(s.requireRole(auth.RoleAdmin)).Post("/server/reset", s.handleReset)
		})
	})

	return r
}
