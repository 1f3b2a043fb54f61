package api

import (
	"net/http"
	"time"

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

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/state", s.handleGetDeviceState)
				r.Post("/actions/{action}", s.handleDeviceAction)
				r.Post("/text", s.handleDeviceText)
				r.Post("/resync", s.handleDeviceResync)
			})
		})

		r.Get("/journal", s.handleListJournal)
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	if s.panel != nil {
		r.Handle("/*", s.panel)
	}

	return r
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Devices       map[string]string `json:"devices"`
	WSClients     int               `json:"ws_clients"`
	WSDropped     uint64            `json:"ws_dropped"`
}

// handleHealth reports "ok" when every device is online and "degraded"
// otherwise. It always answers 200 so probes can read the body.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Devices:       make(map[string]string, len(s.order)),
		WSClients:     s.hub.ClientCount(),
		WSDropped:     s.hub.Dropped(),
	}
	for _, key := range s.order {
		st := s.devices[key].Status()
		resp.Devices[key] = st.String()
		if !st.IsOnline() {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
