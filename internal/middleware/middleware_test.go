package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/metrics"
)

func serve(h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORSAllowedOrigin(t *testing.T) {
	h := CORS([]string{"https://control.example"}, []string{"GET", "PUT"})(okHandler)

	rec := serve(h, "GET", "/", map[string]string{"Origin": "https://control.example"})
	assert.Equal(t, "https://control.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,PUT", rec.Header().Get("Access-Control-Allow-Methods"))

	rec = serve(h, "GET", "/", map[string]string{"Origin": "https://elsewhere.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS([]string{"*"}, []string{"GET"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := serve(h, "OPTIONS", "/alerts", map[string]string{"Origin": "https://any.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := newRateLimiter(2)
	now := time.Now()

	assert.True(t, rl.allow("10.0.0.1", now))
	assert.True(t, rl.allow("10.0.0.1", now))
	assert.False(t, rl.allow("10.0.0.1", now))
	assert.True(t, rl.allow("10.0.0.2", now))

	// two per minute refills one token every 30s
	assert.True(t, rl.allow("10.0.0.1", now.Add(31*time.Second)))

	rl.cleanup(now.Add(10 * time.Minute))
	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimit(1)(okHandler)
	headers := map[string]string{"X-Forwarded-For": "192.0.2.7, 10.0.0.1"}

	assert.Equal(t, http.StatusOK, serve(h, "GET", "/", headers).Code)

	rec := serve(h, "GET", "/", headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.4:51234"
	assert.Equal(t, "198.51.100.4", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestRecoveryReturns500(t *testing.T) {
	before := testutil.ToFloat64(metrics.PanicsRecovered.WithLabelValues("http"))
	h := Recovery(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := serve(h, "GET", "/zones", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error": "Internal server error"}`, rec.Body.String())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PanicsRecovered.WithLabelValues("http")))
}

func TestRequestLoggerRecordsRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(RequestLogger(logger.NewNop()))
	r.HandleFunc("/alerts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods("GET")

	counter := metrics.HTTPRequestsTotal.WithLabelValues("GET", "/alerts/{id}", "404")
	before := testutil.ToFloat64(counter)

	rec := serve(r, "GET", "/alerts/abc", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	serve(r, "GET", "/alerts/def", nil)

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}
