package handler

import (
	"context"
	"net/http"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"

	"github.com/gorilla/mux"
)

type ZoneDirectory interface {
	Get(id string) (models.Zone, error)
	List() []models.Zone
}

type RiskEngine interface {
	EvaluateZone(ctx context.Context, zoneID string) (models.RiskAssessment, *models.Alert, error)
	Assess(ctx context.Context, zoneID string) (models.RiskAssessment, error)
	Latest(zoneID string) (models.RiskAssessment, bool)
	LatestAll() []models.RiskAssessment
}

type ZoneHandler struct {
	zones  ZoneDirectory
	engine RiskEngine
	log    *logger.Logger
}

func NewZoneHandler(zones ZoneDirectory, engine RiskEngine, log *logger.Logger) *ZoneHandler {
	return &ZoneHandler{
		zones:  zones,
		engine: engine,
		log:    log,
	}
}

func (h *ZoneHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/zones", h.List).Methods("GET")
	r.HandleFunc("/zones/{id}", h.Get).Methods("GET")
	r.HandleFunc("/zones/{id}/risk", h.GetRisk).Methods("GET")
	r.HandleFunc("/zones/{id}/evaluate", h.Evaluate).Methods("POST")
	r.HandleFunc("/risk", h.Overview).Methods("GET")
}

func (h *ZoneHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.zones.List())
}

func (h *ZoneHandler) Get(w http.ResponseWriter, r *http.Request) {
	zone, err := h.zones.Get(mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, zone)
}

// GetRisk returns the last evaluated assessment, or a fresh one when the
// zone has not been evaluated yet.
func (h *ZoneHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	zoneID := mux.Vars(r)["id"]
	if a, ok := h.engine.Latest(zoneID); ok {
		respondJSON(w, http.StatusOK, a)
		return
	}

	a, err := h.engine.Assess(r.Context(), zoneID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

type evaluateResponse struct {
	Assessment models.RiskAssessment `json:"assessment"`
	Alert      *models.Alert         `json:"alert"`
}

func (h *ZoneHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	zoneID := mux.Vars(r)["id"]

	a, alert, err := h.engine.EvaluateZone(r.Context(), zoneID)
	if err != nil {
		h.log.Error("Manual evaluation of zone %s failed: %v", zoneID, err)
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, evaluateResponse{Assessment: a, Alert: alert})
}

func (h *ZoneHandler) Overview(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.LatestAll())
}
