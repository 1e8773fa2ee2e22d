package metrics

import (
	"strconv"

	"github.com/weatherproxy/weatherproxy/internal/observability"
)

// Error metric names
const (
	ErrorsTotalName        = "errors_total"
	PanicsTotalName        = "panics_total"
	ErrorsByEndpointName   = "errors_by_endpoint"
	ProxyFailuresTotalName = "proxy_failures_total"
)

// Proxy failure kinds, one per error class a weather route can answer with.
const (
	FailureQuotaExhausted   = "quota_exhausted"
	FailureRetryUnavailable = "retry_unavailable"
	FailureRateLimited      = "rate_limited"
	FailureUpstream         = "upstream_error"
)

// RecordError records an error response by envelope code and status
func RecordError(errorCode string, httpStatus int) {
	inc(ErrorsTotalName, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic records a recovered handler panic
func RecordPanic() {
	inc(PanicsTotalName, nil)
}

// RecordErrorByEndpoint records an error by route
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	inc(ErrorsByEndpointName, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}

// RecordProxyFailure records a weather route that could not answer with
// upstream data.
func RecordProxyFailure(operation string, kind string) {
	inc(ProxyFailuresTotalName, map[string]string{
		"operation": operation,
		"kind":      kind,
	})
}

func inc(name string, labels map[string]string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(name, 1, labels)
	}
}
