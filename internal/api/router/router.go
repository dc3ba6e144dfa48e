// Package router assembles the HTTP surface of the concierge service.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lanternhealth/clinic-concierge/internal/scheduling"
	"github.com/lanternhealth/clinic-concierge/internal/workflow"
	"github.com/lanternhealth/clinic-concierge/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger            *logging.Logger
	WorkflowHandler   *workflow.Handler
	SchedulingHandler *scheduling.Handler
	MetricsHandler    http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.WorkflowHandler != nil {
		r.Route("/workflow", func(r chi.Router) {
			r.Post("/process", cfg.WorkflowHandler.Process)
		})
	}

	if cfg.SchedulingHandler != nil {
		r.Get("/schedules", cfg.SchedulingHandler.ListOfferings)
		r.Post("/appointments/{id}/cancel", cfg.SchedulingHandler.Cancel)
	}

	return r
}
