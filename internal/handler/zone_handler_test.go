package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
	"MineSafetyAPI/internal/zones"
)

type fakeRiskEngine struct {
	latest  map[string]models.RiskAssessment
	assess  int
	alert   *models.Alert
	unknown func(string) bool
}

func (f *fakeRiskEngine) check(zoneID string) error {
	if f.unknown(zoneID) {
		return models.Errorf(models.ErrUnknownZone, "zone %q is not registered", zoneID)
	}
	return nil
}

func (f *fakeRiskEngine) EvaluateZone(_ context.Context, zoneID string) (models.RiskAssessment, *models.Alert, error) {
	if err := f.check(zoneID); err != nil {
		return models.RiskAssessment{}, nil, err
	}
	a := models.RiskAssessment{ZoneID: zoneID, Level: models.RiskCritical, Probability: 0.9, ComputedAt: time.Now()}
	f.latest[zoneID] = a
	return a, f.alert, nil
}

func (f *fakeRiskEngine) Assess(_ context.Context, zoneID string) (models.RiskAssessment, error) {
	if err := f.check(zoneID); err != nil {
		return models.RiskAssessment{}, err
	}
	f.assess++
	return models.RiskAssessment{ZoneID: zoneID, Level: models.RiskLow}, nil
}

func (f *fakeRiskEngine) Latest(zoneID string) (models.RiskAssessment, bool) {
	a, ok := f.latest[zoneID]
	return a, ok
}

func (f *fakeRiskEngine) LatestAll() []models.RiskAssessment {
	out := make([]models.RiskAssessment, 0, len(f.latest))
	for _, a := range f.latest {
		out = append(out, a)
	}
	return out
}

func setupZoneRouter(t *testing.T) (*mux.Router, *fakeRiskEngine) {
	t.Helper()
	registry, err := zones.NewRegistry([]models.Zone{
		{ID: "z1", Name: "North Bench", WorkerCount: 40},
		{ID: "z2", Name: "East Pit", WorkerCount: 12},
	})
	require.NoError(t, err)

	engine := &fakeRiskEngine{
		latest:  map[string]models.RiskAssessment{},
		unknown: func(id string) bool { return !registry.Exists(id) },
	}
	h := NewZoneHandler(registry, engine, logger.NewNop())

	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r, engine
}

func TestListAndGetZones(t *testing.T) {
	r, _ := setupZoneRouter(t)

	rec := doRequest(r, "GET", "/zones", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var zs []models.Zone
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &zs))
	assert.Len(t, zs, 2)

	rec = doRequest(r, "GET", "/zones/z2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var z models.Zone
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &z))
	assert.Equal(t, "East Pit", z.Name)

	rec = doRequest(r, "GET", "/zones/z9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRiskPrefersLatestAssessment(t *testing.T) {
	r, engine := setupZoneRouter(t)

	rec := doRequest(r, "GET", "/zones/z1/risk", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, engine.assess)

	engine.latest["z1"] = models.RiskAssessment{ZoneID: "z1", Level: models.RiskHigh, Probability: 0.75}
	rec = doRequest(r, "GET", "/zones/z1/risk", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, engine.assess)

	var a models.RiskAssessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, models.RiskHigh, a.Level)

	rec = doRequest(r, "GET", "/zones/z9/risk", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvaluateZone(t *testing.T) {
	r, engine := setupZoneRouter(t)
	engine.alert = &models.Alert{ID: "a1", ZoneID: "z1", Severity: models.SeverityCritical, Status: models.StatusActive}

	rec := doRequest(r, "POST", "/zones/z1/evaluate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp evaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.RiskCritical, resp.Assessment.Level)
	require.NotNil(t, resp.Alert)
	assert.Equal(t, "a1", resp.Alert.ID)

	rec = doRequest(r, "GET", "/risk", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var overview []models.RiskAssessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	assert.Len(t, overview, 1)

	rec = doRequest(r, "POST", "/zones/z9/evaluate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
