package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

func healthRouter(checks map[string]HealthCheck) *mux.Router {
	r := mux.NewRouter()
	NewHealthHandler(checks, logger.NewNop()).RegisterRoutes(r)
	return r
}

func healthy(context.Context) error { return nil }

func TestHealthAllServicesUp(t *testing.T) {
	r := healthRouter(map[string]HealthCheck{"database": healthy, "mqtt": healthy})

	rec := doRequest(r, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, map[string]bool{"database": true, "mqtt": true}, resp.Services)

	rec = doRequest(r, "GET", "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthDegraded(t *testing.T) {
	r := healthRouter(map[string]HealthCheck{
		"database": healthy,
		"redis":    func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})

	rec := doRequest(r, "GET", "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.Services["redis"])
	assert.True(t, resp.Services["database"])

	rec = doRequest(r, "GET", "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(r, "GET", "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthWithNoDependencies(t *testing.T) {
	rec := doRequest(healthRouter(nil), "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
