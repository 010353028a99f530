// Package handler is the thin HTTP layer over the entry service. It decodes
// and validates the transport shape; everything else is the service's job.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"enrolld/internal/enroll/models"
	"enrolld/internal/enroll/service"
	"enrolld/internal/platform/middleware"
	"enrolld/pkg/platform/sentinel"
)

// Health reports dependency liveness for the health endpoint.
type Health interface {
	Health(ctx context.Context) error
}

// Handler handles the signup-confirmation endpoint plus health and metrics.
type Handler struct {
	service *service.Service
	logger  *slog.Logger
	checks  map[string]Health
}

// New creates the HTTP handler. Checks maps dependency names to health
// probes; nil entries are skipped.
func New(svc *service.Service, logger *slog.Logger, checks map[string]Health) *Handler {
	return &Handler{
		service: svc,
		logger:  logger,
		checks:  checks,
	}
}

// Register registers the routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	eventRouter := chi.NewRouter()
	eventRouter.Use(middleware.Recovery(h.logger))
	eventRouter.Use(middleware.RequestID)
	eventRouter.Use(middleware.Logger(h.logger))
	eventRouter.Use(middleware.Timeout(30 * time.Second))
	eventRouter.Use(middleware.ContentTypeJSON)
	eventRouter.Post("/events/signup-confirmed", h.handleSignupConfirmed)

	r.Mount("/", eventRouter)
	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// handleSignupConfirmed accepts one confirmation event. Responds 202 for
// every event that passes boundary validation, regardless of what the
// pipeline had to do with it.
func (h *Handler) handleSignupConfirmed(w http.ResponseWriter, r *http.Request) {
	var event models.ConfirmationEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "bad_request",
			"error_description": "malformed event payload",
		})
		return
	}

	result, err := h.service.HandleConfirmation(r.Context(), event)
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "bad_request",
				"error_description": err.Error(),
			})
			return
		}
		// The service contract says this cannot happen; if it somehow does,
		// honor the accept contract anyway.
		h.logger.Error("unexpected entry handler error", "error", err)
	}

	if result.Status == "" {
		result.Status = service.StatusAccepted
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, check := range h.checks {
		if check == nil {
			continue
		}
		if err := check.Health(r.Context()); err != nil {
			status[name] = err.Error()
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
