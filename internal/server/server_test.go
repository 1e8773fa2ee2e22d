package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/weatherproxy/weatherproxy/internal/errors"
	"github.com/weatherproxy/weatherproxy/internal/proxy"
	"github.com/weatherproxy/weatherproxy/internal/rotation"
	"github.com/weatherproxy/weatherproxy/internal/server/handlers"
	"github.com/weatherproxy/weatherproxy/internal/upstream"
)

type testProxy struct {
	handler  http.Handler
	rotator  *rotation.Rotator
	upstream *atomic.Int32
}

// newTestProxy wires the real rotator, proxy service and upstream client
// against a stubbed provider.
func newTestProxy(t *testing.T, keys []string, limit int, provider http.HandlerFunc) *testProxy {
	t.Helper()

	calls := &atomic.Int32{}
	providerServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		provider(w, r)
	}))
	t.Cleanup(providerServer.Close)

	rotator := rotation.New(rotation.Options{Credentials: keys, DailyLimit: limit})
	client := &upstream.Client{HTTPClient: providerServer.Client(), BaseURL: providerServer.URL}

	srv := New(Options{
		Host: "127.0.0.1",
		Weather: &handlers.WeatherHandlers{
			Proxy:    proxy.New(rotator),
			Provider: client,
			Usage:    rotator,
			Started:  time.Now(),
		},
	})

	return &testProxy{handler: srv.Handler(), rotator: rotator, upstream: calls}
}

func (p *testProxy) get(target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, req)
	return rec
}

func okProvider(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/geo/1.0/reverse":
		_, _ = w.Write([]byte(`[{"name":"London","country":"GB"}]`))
	default:
		_, _ = w.Write([]byte(`{"name":"London","main":{"temp":11.2}}`))
	}
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServerWithoutWeatherRoutes(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/weather?q=London", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWeatherRouteEndToEnd(t *testing.T) {
	p := newTestProxy(t, []string{"k1", "k2"}, 900, okProvider)

	rec := p.get("/weather?q=London")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "London", body["name"])
	assert.Equal(t, map[string]any{"keyUsed": float64(1), "callsRemaining": float64(899)}, body["apiUsage"])
	assert.Equal(t, int32(1), p.upstream.Load())
}

func TestReverseRouteEndToEnd(t *testing.T) {
	p := newTestProxy(t, []string{"k1"}, 900, okProvider)

	rec := p.get("/reverse?lat=51.5&lon=-0.12")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"London","country":"GB"}]`, rec.Body.String())
}

func TestRotationAcrossRequests(t *testing.T) {
	p := newTestProxy(t, []string{"k1", "k2"}, 2, okProvider)

	var used []float64
	for i := 0; i < 4; i++ {
		rec := p.get("/weather?q=London")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			APIUsage handlers.APIUsage `json:"apiUsage"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		used = append(used, float64(body.APIUsage.KeyUsed))
	}
	assert.Equal(t, []float64{1, 1, 2, 2}, used)

	rec := p.get("/weather?q=London")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"All API keys have reached daily limit","resetTime":"Tomorrow at midnight UTC"}`, rec.Body.String())
	assert.Equal(t, int32(4), p.upstream.Load(), "no upstream call once exhausted")
}

func TestUpstreamRateLimitRetriesOnce(t *testing.T) {
	p := newTestProxy(t, []string{"k1", "k2"}, 900, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"cod":429}`))
	})

	rec := p.get("/forecast?lat=1&lon=2")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"All API keys rate limited"}`, rec.Body.String())
	assert.Equal(t, int32(2), p.upstream.Load())
}

func TestStatusRoute(t *testing.T) {
	p := newTestProxy(t, []string{"k1", "k2", "k3"}, 900, okProvider)
	require.Equal(t, http.StatusOK, p.get("/weather?q=London").Code)

	rec := p.get("/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status handlers.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 3, status.TotalKeys)
	assert.Equal(t, 900, status.DailyLimit)
	require.Len(t, status.Usage, 3)
	assert.Equal(t, 1, status.Usage[0].CallsMade)
	assert.Equal(t, 899, status.Usage[0].CallsRemaining)
	assert.Equal(t, 0, status.Usage[0].PercentageUsed)
}

func TestRootAndHealthRoutes(t *testing.T) {
	p := newTestProxy(t, []string{"k1"}, 900, okProvider)

	rec := p.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"Weather Proxy Server"`)

	rec = p.get("/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health handlers.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "http://example.com", health.ServerURL)
}

func TestCORSHeaders(t *testing.T) {
	p := newTestProxy(t, []string{"k1"}, 900, okProvider)

	rec := p.get("/status", "Origin", "https://app.example.com")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/weather", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	preflight := httptest.NewRecorder()
	p.handler.ServeHTTP(preflight, req)

	assert.Less(t, preflight.Code, 300)
	assert.Equal(t, "*", preflight.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, p.upstream.Load())
}

func TestCORSRestrictedOrigins(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1", AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAdminEndpointRequiresToken(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/signal", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddr(t *testing.T) {
	assert.Equal(t, "0.0.0.0:3000", New(Options{Host: "0.0.0.0", Port: 3000}).Addr())
}
