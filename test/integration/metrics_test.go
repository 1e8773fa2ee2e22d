package integration

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherproxy/weatherproxy/internal/observability"
	"github.com/weatherproxy/weatherproxy/internal/proxy"
	"github.com/weatherproxy/weatherproxy/internal/rotation"
	"github.com/weatherproxy/weatherproxy/internal/server"
	"github.com/weatherproxy/weatherproxy/internal/server/handlers"
	"github.com/weatherproxy/weatherproxy/internal/upstream"
)

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// initMetricsOrSkip starts the exporter on a free port and stops it when the
// test ends. Sandboxes that forbid binds skip instead of failing the suite.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = observability.ShutdownMetrics() })
}

func listenLoopback(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}
	return listener
}

// newProvider stands in for the weather API. Requests made with the key
// "throttled" are rejected with 429.
func newProvider(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	calls := &atomic.Int32{}
	ts := &httptest.Server{
		Listener: listenLoopback(t),
		Config: &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if r.URL.Query().Get("appid") == "throttled" {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"cod":429,"message":"rate limited"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/geo/1.0/reverse":
				_, _ = w.Write([]byte(`[{"name":"Oslo","country":"NO"}]`))
			case "/data/2.5/forecast":
				_, _ = w.Write([]byte(`{"list":[{"dt":1},{"dt":2}]}`))
			default:
				_, _ = w.Write([]byte(`{"name":"Oslo","main":{"temp":4.5}}`))
			}
		})},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, calls
}

// newProxyServer runs the full router over a real listener.
func newProxyServer(t *testing.T, provider *httptest.Server, keys []string, limit int) (*httptest.Server, *http.Client) {
	t.Helper()

	rotator := rotation.New(rotation.Options{Credentials: keys, DailyLimit: limit})
	srv := server.New(server.Options{
		Host: "127.0.0.1",
		Weather: &handlers.WeatherHandlers{
			Proxy:    proxy.New(rotator),
			Provider: &upstream.Client{HTTPClient: provider.Client(), BaseURL: provider.URL},
			Usage:    rotator,
			Started:  time.Now(),
		},
	})

	ts := &httptest.Server{
		Listener: listenLoopback(t),
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func scrape(t *testing.T, client *http.Client, baseURL string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(baseURL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	return resp, string(body)
}

func TestMetricsEndpoint_RotationTraffic(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")
	initMetricsOrSkip(t)

	provider, calls := newProvider(t)
	ts, client := newProxyServer(t, provider, []string{"throttled", "good"}, 5)

	const numRequests = 24
	const numWorkers = 6

	requests := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requests <- i
	}
	close(requests)

	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for n := range requests {
				var path string
				switch n % 4 {
				case 0:
					path = "/weather?q=Oslo"
				case 1:
					path = "/forecast?lat=59.9&lon=10.7"
				case 2:
					path = "/reverse?lat=59.9&lon=10.7"
				default:
					path = "/health"
				}
				resp, err := client.Get(ts.URL + path)
				if err == nil {
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	assert.Greater(t, calls.Load(), int32(0))

	resp, metricsContent := scrape(t, client, ts.URL)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, metricsContent, "test_http_requests_total", "Should have HTTP request metrics")
	assert.Contains(t, metricsContent, "test_http_request_duration_ms", "Should have duration metrics")
	assert.Contains(t, metricsContent, "test_upstream_requests_total", "Should have upstream call metrics")
	assert.Contains(t, metricsContent, "test_upstream_retries_total", "First 429 triggers a retry")
	assert.True(t, elapsed < 5*time.Second, "Load test should complete in reasonable time")
	t.Logf("Load test completed: %d requests in %v", numRequests, elapsed)
}

func TestMetricsEndpoint_PrometheusFormat(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")
	initMetricsOrSkip(t)

	provider, _ := newProvider(t)
	ts, client := newProxyServer(t, provider, []string{"good"}, 10)

	resp, err := client.Get(ts.URL + "/weather?q=Oslo")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, metricsContent := scrape(t, client, ts.URL)
	contentType := resp.Header.Get("Content-Type")
	assert.True(t,
		contentType == "text/plain; version=0.0.4" ||
			contentType == "text/plain; version=0.0.4; charset=utf-8",
		"Expected Prometheus content type, got: %s", contentType)

	lines := strings.Split(strings.TrimSpace(metricsContent), "\n")
	metricLines := 0
	labelled := false
	for _, line := range lines {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		metricLines++
		if strings.Contains(line, "{") && len(strings.Fields(line)) >= 2 {
			labelled = true
		}
	}
	assert.True(t, labelled, "Should have valid Prometheus metric lines")
	assert.Greater(t, metricLines, 0, "Should have actual metric values")
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	provider, _ := newProvider(t)
	ts, client := newProxyServer(t, provider, []string{"good"}, 10)

	resp, err := client.Get(ts.URL + "/status")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = scrape(t, client, ts.URL)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
