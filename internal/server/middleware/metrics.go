package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/weatherproxy/weatherproxy/internal/observability"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// getEndpointPattern returns the chi route pattern, or a fixed label for
// known paths, so metric labels never carry raw request paths.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	switch {
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/", path == "/weather", path == "/forecast", path == "/reverse",
		path == "/status", path == "/version", path == "/metrics":
		return path
	default:
		return "/unknown"
	}
}

// RequestMetrics records per-request HTTP metrics and writes an access log
// line. Probe traffic is logged at debug level.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		endpoint := getEndpointPattern(r)
		status := strconv.Itoa(recorder.statusCode)

		if tel := observability.TelemetrySystem; tel != nil {
			labels := map[string]string{
				"method":   r.Method,
				"endpoint": endpoint,
				"status":   status,
			}
			_ = tel.Counter("http_requests_total", 1, labels)
			_ = tel.Histogram("http_request_duration_ms", duration, labels)
			_ = tel.Gauge("http_response_size_bytes", float64(recorder.bytesWritten), map[string]string{
				"method":   r.Method,
				"endpoint": endpoint,
			})

			if recorder.statusCode >= 400 {
				errorType := "client_error"
				if recorder.statusCode >= 500 {
					errorType = "server_error"
				}
				_ = tel.Counter("http_errors_total", 1, map[string]string{
					"method":     r.Method,
					"endpoint":   endpoint,
					"status":     status,
					"error_type": errorType,
				})
			}
		}

		logger := observability.ServerLogger
		if logger == nil {
			return
		}
		log := logger.Info
		if endpoint == "/health/*" || endpoint == "/metrics" {
			log = logger.Debug
		}
		// The query string is left out: upstream-bound parameters are not
		// useful in access logs.
		log("HTTP request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", endpoint),
			zap.Int("status", recorder.statusCode),
			zap.Duration("duration", duration),
			zap.Int64("response_size", recorder.bytesWritten),
			zap.String("requestID", GetRequestID(r.Context())),
		)
	})
}
