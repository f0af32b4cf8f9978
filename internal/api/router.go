package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Device registry (read-only; devices are provisioned by the
		// management console, not through this layer)
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)
		})

		// Barrier commands and state
		r.Route("/barriers", func(r chi.Router) {
			r.Get("/connectivity", s.handleBarrierConnectivity)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/open", s.handleBarrierOpen)
				r.Post("/close", s.handleBarrierClose)
				r.Get("/state", s.handleBarrierState)
			})
		})

		// Lane-addressed barrier commands
		r.Route("/lanes/{laneID}", func(r chi.Router) {
			r.Post("/open", s.handleLaneOpen)
			r.Post("/close", s.handleLaneClose)
		})

		// Command ledger
		r.Route("/commands", func(r chi.Router) {
			r.Get("/", s.handleListCommands)
			r.Get("/{correlationID}", s.handleGetCommand)
		})

		// Plate event ledger
		r.Route("/plate-events", func(r chi.Router) {
			r.Get("/", s.handleListPlateEvents)
			r.Get("/{id}", s.handleGetPlateEvent)
			r.Put("/{id}/session", s.handleLinkSession)
		})

		// LPR controllers
		r.Route("/lpr", func(r chi.Router) {
			r.Get("/statuses", s.handleLPRStatuses)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/trigger", s.handleTriggerCapture)
				r.Get("/last", s.handleLastCapture)
			})
		})

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
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
