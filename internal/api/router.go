package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check and login need no token.
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/parameters", s.handleListParameters)
					r.Put("/parameters/{name}", s.handleWriteParameter)
				})
			})

			r.Route("/schedules/{type}", func(r chi.Router) {
				r.Get("/", s.handleGetSchedule)
				r.Put("/", s.handlePutSchedule)
			})

			r.Route("/meter", func(r chi.Router) {
				r.Get("/", s.handleGetMeter)
				r.Post("/calibrate", s.handleCalibrateMeter)
				r.Post("/reset", s.handleResetMeter)
			})

			r.Post("/discovery", s.handleTriggerDiscovery)
			r.Post("/control", s.handleControl)

			// WebSocket auth is via single-use ticket, validated in the
			// handler.
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
