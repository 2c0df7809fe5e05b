package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/que-core/internal/auth"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/token", s.handleToken)

		// The browser WebSocket API cannot set headers; the token travels
		// in the query string and is checked in the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/systems", func(r chi.Router) {
				r.With(s.require(auth.PermSystemRead)).Get("/", s.handleListSystems)

				r.Route("/{serial}", func(r chi.Router) {
					r.Use(s.systemMiddleware)

					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermSystemRead))
						r.Get("/", s.handleGetSystem)
						r.Get("/zones", s.handleListZones)
						r.Get("/zones/{index}", s.handleGetZone)
						r.Get("/attributes", s.handleListAttributes)
					})

					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermHistoryRead))
						r.Get("/history", s.handleHistory)
						r.Get("/commands", s.handleCommandLog)
					})

					r.With(s.require(auth.PermCommandSend)).Post("/commands", s.handleSendCommand)
				})
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           s.version,
		"systems":           len(s.systems.Systems()),
		"websocket_clients": s.hub.ClientCount(),
	})
}
