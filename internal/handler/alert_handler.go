package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"

	"github.com/gorilla/mux"
)

type AlertService interface {
	Get(id string) (models.Alert, error)
	List(f models.AlertFilter) []models.Alert
	Acknowledge(ctx context.Context, id string) (models.Alert, error)
	SetMonitoring(ctx context.Context, id string) (models.Alert, error)
	Resolve(ctx context.Context, id, reason string) (models.Alert, error)
}

// AlertHistory is the durable alert table, when one is configured.
type AlertHistory interface {
	GetHistory(ctx context.Context, zoneID string, limit, offset int) ([]models.Alert, error)
	GetStatistics(ctx context.Context) (map[string]int, error)
}

type AlertJobs interface {
	JobsForAlert(alertID string) []models.NotificationJob
}

type AlertHandler struct {
	alerts  AlertService
	history AlertHistory
	jobs    AlertJobs
	log     *logger.Logger
}

func NewAlertHandler(alerts AlertService, history AlertHistory, jobs AlertJobs, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		alerts:  alerts,
		history: history,
		jobs:    jobs,
		log:     log,
	}
}

func (h *AlertHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/alerts", h.List).Methods("GET")
	r.HandleFunc("/alerts/active", h.GetActiveAlerts).Methods("GET")
	r.HandleFunc("/alerts/history", h.GetAlertHistory).Methods("GET")
	r.HandleFunc("/alerts/stats", h.GetStatistics).Methods("GET")
	r.HandleFunc("/alerts/{id}", h.Get).Methods("GET")
	r.HandleFunc("/alerts/{id}/acknowledge", h.Acknowledge).Methods("PUT")
	r.HandleFunc("/alerts/{id}/monitoring", h.SetMonitoring).Methods("PUT")
	r.HandleFunc("/alerts/{id}/resolve", h.Resolve).Methods("PUT")
	r.HandleFunc("/alerts/{id}/notifications", h.GetNotifications).Methods("GET")
}

func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	respondJSON(w, http.StatusOK, h.alerts.List(models.AlertFilter{
		ZoneID: q.Get("zone_id"),
		Status: models.AlertStatus(q.Get("status")),
	}))
}

func (h *AlertHandler) GetActiveAlerts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.alerts.List(models.AlertFilter{
		ZoneID: r.URL.Query().Get("zone_id"),
		Open:   true,
	}))
}

// GetAlertHistory pages through the alert table. Without a database it
// falls back to the alerts held in memory.
func (h *AlertHandler) GetAlertHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	zoneID := r.URL.Query().Get("zone_id")

	if h.history == nil {
		all := h.alerts.List(models.AlertFilter{ZoneID: zoneID})
		if offset >= len(all) {
			respondJSON(w, http.StatusOK, []models.Alert{})
			return
		}
		end := min(offset+limit, len(all))
		respondJSON(w, http.StatusOK, all[offset:end])
		return
	}

	alerts, err := h.history.GetHistory(r.Context(), zoneID, limit, offset)
	if err != nil {
		h.log.Error("Failed to get alert history: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	respondJSON(w, http.StatusOK, alerts)
}

// GetStatistics counts open alerts by severity.
func (h *AlertHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		stats := map[string]int{}
		for _, a := range h.alerts.List(models.AlertFilter{Open: true}) {
			stats[string(a.Severity)]++
		}
		respondJSON(w, http.StatusOK, stats)
		return
	}

	stats, err := h.history.GetStatistics(r.Context())
	if err != nil {
		h.log.Error("Failed to get alert statistics: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.Get(mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	alert, err := h.alerts.Acknowledge(r.Context(), id)
	if err != nil {
		h.log.Warn("Failed to acknowledge alert %s: %v", id, err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) SetMonitoring(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	alert, err := h.alerts.SetMonitoring(r.Context(), id)
	if err != nil {
		h.log.Warn("Failed to move alert %s to monitoring: %v", id, err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

type resolveRequest struct {
	Reason string `json:"reason"`
}

func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req resolveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	alert, err := h.alerts.Resolve(r.Context(), id, req.Reason)
	if err != nil {
		h.log.Warn("Failed to resolve alert %s: %v", id, err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.alerts.Get(id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.jobs.JobsForAlert(id))
}
