package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"MineSafetyAPI/internal/models"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		return
	}
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondDomainError maps an error kind onto an HTTP status.
func respondDomainError(w http.ResponseWriter, err error) {
	var me *models.Error
	if !errors.As(err, &me) {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch me.Kind {
	case models.KindValidation:
		status = http.StatusBadRequest
	case models.KindNotFound:
		status = http.StatusNotFound
	case models.KindStateConflict:
		status = http.StatusConflict
	}
	respondJSON(w, status, ErrorResponse{Error: err.Error(), Code: me.Code})
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return def
}

// queryTime accepts RFC3339 or unix seconds. An absent value yields def.
func queryTime(r *http.Request, key string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, models.Errorf(models.ErrInvalidReading, "invalid %s: %q", key, v)
	}
	return t, nil
}
