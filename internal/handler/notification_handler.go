package handler

import (
	"context"
	"net/http"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"

	"github.com/gorilla/mux"
)

type NotificationService interface {
	Jobs(status models.JobStatus) []models.NotificationJob
	Job(id string) (models.NotificationJob, error)
	MarkDelivered(ctx context.Context, jobID string) (models.NotificationJob, error)
}

type NotificationHandler struct {
	jobs NotificationService
	log  *logger.Logger
}

func NewNotificationHandler(jobs NotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{jobs: jobs, log: log}
}

func (h *NotificationHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/notifications", h.List).Methods("GET")
	r.HandleFunc("/notifications/{id}", h.Get).Methods("GET")
	r.HandleFunc("/notifications/{id}/delivered", h.MarkDelivered).Methods("POST")
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.JobStatus(r.URL.Query().Get("status"))
	respondJSON(w, http.StatusOK, h.jobs.Jobs(status))
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Job(mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// MarkDelivered is the provider delivery-receipt callback.
func (h *NotificationHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := h.jobs.MarkDelivered(r.Context(), id)
	if err != nil {
		h.log.Warn("Delivery receipt for job %s rejected: %v", id, err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}
