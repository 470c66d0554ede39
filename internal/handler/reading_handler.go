package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"time"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"

	"github.com/gorilla/mux"
)

const maxReadingBody = 1 << 20

type ReadingIngestor interface {
	Ingest(ctx context.Context, reading models.SensorReading) error
}

type ReadingReader interface {
	Latest(zoneID string) map[models.MetricKind]models.SensorReading
	Window(zoneID string, metric models.MetricKind, since, until time.Time) iter.Seq[models.SensorReading]
}

// ReadingHistory is the durable reading log, when one is configured.
type ReadingHistory interface {
	Query(ctx context.Context, req models.ReadingQueryRequest) ([]models.SensorReading, error)
}

type ReadingHandler struct {
	ingestor ReadingIngestor
	reader   ReadingReader
	history  ReadingHistory
	zones    ZoneDirectory
	log      *logger.Logger
	now      func() time.Time
}

func NewReadingHandler(ingestor ReadingIngestor, reader ReadingReader, history ReadingHistory, zones ZoneDirectory, log *logger.Logger) *ReadingHandler {
	return &ReadingHandler{
		ingestor: ingestor,
		reader:   reader,
		history:  history,
		zones:    zones,
		log:      log,
		now:      time.Now,
	}
}

func (h *ReadingHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/readings", h.Ingest).Methods("POST")
	r.HandleFunc("/zones/{id}/readings/latest", h.GetLatest).Methods("GET")
	r.HandleFunc("/zones/{id}/readings", h.GetWindow).Methods("GET")
}

type ingestResult struct {
	Index int    `json:"index"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type ingestResponse struct {
	Accepted int            `json:"accepted"`
	Rejected []ingestResult `json:"rejected,omitempty"`
}

// Ingest accepts one reading object or an array of them.
func (h *ReadingHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxReadingBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '[' {
		var msgs []models.ReadingMessage
		if err := json.Unmarshal(body, &msgs); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		h.ingestBatch(w, r, msgs)
		return
	}

	var msg models.ReadingMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.ingestOne(r.Context(), msg); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, ingestResponse{Accepted: 1})
}

func (h *ReadingHandler) ingestBatch(w http.ResponseWriter, r *http.Request, msgs []models.ReadingMessage) {
	resp := ingestResponse{}
	for i, msg := range msgs {
		if err := h.ingestOne(r.Context(), msg); err != nil {
			res := ingestResult{Index: i, Error: err.Error()}
			var me *models.Error
			if errors.As(err, &me) {
				res.Code = me.Code
			}
			resp.Rejected = append(resp.Rejected, res)
			continue
		}
		resp.Accepted++
	}

	status := http.StatusAccepted
	if resp.Accepted == 0 && len(msgs) > 0 {
		status = http.StatusBadRequest
	}
	if len(resp.Rejected) > 0 {
		h.log.Warn("Rejected %d of %d readings", len(resp.Rejected), len(msgs))
	}
	respondJSON(w, status, resp)
}

func (h *ReadingHandler) ingestOne(ctx context.Context, msg models.ReadingMessage) error {
	reading, err := msg.ToReading(h.now().UTC())
	if err != nil {
		return err
	}
	return h.ingestor.Ingest(ctx, reading)
}

func (h *ReadingHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	zoneID := mux.Vars(r)["id"]
	if _, err := h.zones.Get(zoneID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.reader.Latest(zoneID))
}

// GetWindow returns one metric's readings, from memory by default or from
// the reading log with source=log.
func (h *ReadingHandler) GetWindow(w http.ResponseWriter, r *http.Request) {
	zoneID := mux.Vars(r)["id"]
	if _, err := h.zones.Get(zoneID); err != nil {
		respondDomainError(w, err)
		return
	}

	metric := models.MetricKind(r.URL.Query().Get("metric"))
	if !metric.IsKnown() {
		respondDomainError(w, models.Errorf(models.ErrInvalidMetric, "unknown metric %q", metric))
		return
	}
	since, err := queryTime(r, "since", h.now().Add(-time.Hour))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	until, err := queryTime(r, "until", time.Time{})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if r.URL.Query().Get("source") == "log" {
		if h.history == nil {
			respondError(w, http.StatusServiceUnavailable, "Reading log is not enabled")
			return
		}
		readings, err := h.history.Query(r.Context(), models.ReadingQueryRequest{
			ZoneID: zoneID,
			Metric: metric,
			Since:  since,
			Until:  until,
			Limit:  queryInt(r, "limit", 1000),
		})
		if err != nil {
			h.log.Error("Failed to query reading log for %s/%s: %v", zoneID, metric, err)
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, readings)
		return
	}

	readings := make([]models.SensorReading, 0)
	for reading := range h.reader.Window(zoneID, metric, since, until) {
		readings = append(readings, reading)
	}
	respondJSON(w, http.StatusOK, readings)
}
