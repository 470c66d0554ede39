package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
	"MineSafetyAPI/internal/store"
	"MineSafetyAPI/internal/zones"
)

// storeIngestor checks the zone before handing readings to the store.
type storeIngestor struct {
	zones *zones.Registry
	store *store.ReadingStore
}

func (s storeIngestor) Ingest(_ context.Context, r models.SensorReading) error {
	if !s.zones.Exists(r.ZoneID) {
		return models.Errorf(models.ErrUnknownZone, "zone %q is not registered", r.ZoneID)
	}
	return s.store.Ingest(r)
}

type fakeReadingHistory struct {
	got models.ReadingQueryRequest
	out []models.SensorReading
}

func (f *fakeReadingHistory) Query(_ context.Context, req models.ReadingQueryRequest) ([]models.SensorReading, error) {
	f.got = req
	return f.out, nil
}

func setupReadingRouter(t *testing.T, history ReadingHistory) (*mux.Router, *store.ReadingStore) {
	t.Helper()
	registry, err := zones.NewRegistry([]models.Zone{{ID: "z1", Name: "North Bench"}})
	require.NoError(t, err)
	s := store.New(store.DefaultConfig, nil, logger.NewNop())

	h := NewReadingHandler(storeIngestor{zones: registry, store: s}, s, history, registry, logger.NewNop())
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r, s
}

func doRequest(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestIngestSingleReading(t *testing.T) {
	r, s := setupReadingRouter(t, nil)

	rec := doRequest(r, "POST", "/readings",
		`{"sensor_id":"s1","zone_id":"z1","metric":"displacement","value":12.5,"unit":"mm"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Accepted)
	assert.Empty(t, resp.Rejected)

	latest := s.Latest("z1")
	require.Contains(t, latest, models.MetricDisplacement)
	assert.Equal(t, 12.5, latest[models.MetricDisplacement].Value)
}

func TestIngestRejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"unknown zone", `{"sensor_id":"s1","zone_id":"nope","metric":"strain","value":1}`, http.StatusNotFound, models.CodeUnknownZone},
		{"unknown metric", `{"sensor_id":"s1","zone_id":"z1","metric":"humidity","value":1}`, http.StatusBadRequest, models.CodeInvalidMetric},
		{"missing value", `{"sensor_id":"s1","zone_id":"z1","metric":"strain"}`, http.StatusBadRequest, models.CodeInvalidValue},
		{"bad timestamp", `{"sensor_id":"s1","zone_id":"z1","metric":"strain","value":1,"timestamp":"yesterday"}`, http.StatusBadRequest, models.CodeInvalidReading},
		{"malformed json", `{"sensor_id":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := setupReadingRouter(t, nil)
			rec := doRequest(r, "POST", "/readings", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestIngestBatchReportsRejectedItems(t *testing.T) {
	r, s := setupReadingRouter(t, nil)

	body := `[
		{"sensor_id":"s1","zone_id":"z1","metric":"displacement","value":4},
		{"sensor_id":"s2","zone_id":"z1","metric":"humidity","value":40},
		{"sensor_id":"s3","zone_id":"z9","metric":"strain","value":2},
		{"sensor_id":"s4","zone_id":"z1","metric":"vibration","value":0.2}
	]`
	rec := doRequest(r, "POST", "/readings", body)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Accepted)
	require.Len(t, resp.Rejected, 2)
	assert.Equal(t, 1, resp.Rejected[0].Index)
	assert.Equal(t, models.CodeInvalidMetric, resp.Rejected[0].Code)
	assert.Equal(t, 2, resp.Rejected[1].Index)
	assert.Equal(t, models.CodeUnknownZone, resp.Rejected[1].Code)
	assert.Equal(t, 2, s.Len())
}

func TestIngestBatchAllRejected(t *testing.T) {
	r, _ := setupReadingRouter(t, nil)

	rec := doRequest(r, "POST", "/readings", `[{"sensor_id":"s1","zone_id":"z1","metric":"strain"}]`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Accepted)
	assert.Len(t, resp.Rejected, 1)
}

func TestGetLatestReadings(t *testing.T) {
	r, s := setupReadingRouter(t, nil)
	require.NoError(t, s.Ingest(models.SensorReading{
		SensorID: "s1", ZoneID: "z1", Metric: models.MetricStrain, Value: 310, Timestamp: time.Now(),
	}))

	rec := doRequest(r, "GET", "/zones/z1/readings/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var latest map[models.MetricKind]models.SensorReading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, 310.0, latest[models.MetricStrain].Value)

	rec = doRequest(r, "GET", "/zones/missing/readings/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWindowFromMemory(t *testing.T) {
	r, s := setupReadingRouter(t, nil)
	base := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(t, s.Ingest(models.SensorReading{
			SensorID:  "s1",
			ZoneID:    "z1",
			Metric:    models.MetricRainfall,
			Value:     float64(i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec := doRequest(r, "GET", "/zones/z1/readings?metric=rainfall", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var readings []models.SensorReading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readings))
	require.Len(t, readings, 3)
	assert.Equal(t, 0.0, readings[0].Value)
	assert.Equal(t, 2.0, readings[2].Value)
}

func TestGetWindowValidation(t *testing.T) {
	r, _ := setupReadingRouter(t, nil)

	rec := doRequest(r, "GET", "/zones/z1/readings?metric=humidity", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(r, "GET", "/zones/z1/readings?metric=strain&since=last-week", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(r, "GET", "/zones/z1/readings?metric=strain&source=log", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetWindowFromReadingLog(t *testing.T) {
	history := &fakeReadingHistory{out: []models.SensorReading{{SensorID: "s1", ZoneID: "z1", Metric: models.MetricStrain, Value: 5}}}
	r, _ := setupReadingRouter(t, history)

	rec := doRequest(r, "GET", "/zones/z1/readings?metric=strain&source=log&since=1772359200&limit=50", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "z1", history.got.ZoneID)
	assert.Equal(t, models.MetricStrain, history.got.Metric)
	assert.Equal(t, time.Unix(1772359200, 0).UTC(), history.got.Since)
	assert.True(t, history.got.Until.IsZero())
	assert.Equal(t, 50, history.got.Limit)

	var readings []models.SensorReading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readings))
	assert.Len(t, readings, 1)
}
