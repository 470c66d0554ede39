package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"

	"github.com/gorilla/mux"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]HealthCheck
	log    *logger.Logger
}

// NewHealthHandler takes the checks of enabled dependencies, keyed by name
// ("database", "mqtt", "redis").
func NewHealthHandler(checks map[string]HealthCheck, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		log:    log,
	}
}

func (h *HealthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/health/live", h.Liveness).Methods("GET")
	r.HandleFunc("/health/ready", h.Readiness).Methods("GET")
}

func (h *HealthHandler) run(ctx context.Context) (map[string]bool, []string) {
	results := make(map[string]bool, len(h.checks))
	var failed []string
	for name, check := range h.checks {
		err := check(ctx)
		results[name] = err == nil
		if err != nil {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return results, failed
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services, failed := h.run(ctx)
	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  services,
	}

	statusCode := http.StatusOK
	if len(failed) > 0 {
		response.Status = "degraded"
		statusCode = http.StatusServiceUnavailable
		h.log.Warn("Health check degraded - failing: %v", failed)
	}

	respondJSON(w, statusCode, response)
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, failed := h.run(ctx); len(failed) > 0 {
		h.log.Warn("Readiness check failed - failing: %v", failed)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
