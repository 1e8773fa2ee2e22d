package metrics

import (
	"strconv"
	"time"

	"github.com/weatherproxy/weatherproxy/internal/observability"
)

// Service-level metrics following Prometheus conventions
var (
	// Credential rotation
	CredentialSwitchesTotal = "rotation_credential_switches_total"
	CredentialsExhausted    = "rotation_exhausted_total"
	DailyResetsTotal        = "rotation_daily_resets_total"
	CredentialCalls         = "rotation_credential_calls"

	// Upstream provider calls
	UpstreamRequestsTotal   = "upstream_requests_total"
	UpstreamRequestDuration = "upstream_request_duration_ms"
	UpstreamRetriesTotal    = "upstream_retries_total"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// Upstream call outcomes
const (
	OutcomeSuccess       = "success"
	OutcomeQuotaRejected = "quota_rejected"
	OutcomeError         = "error"
)

// RecordCredentialSwitch records the rotator moving its cursor to another credential
func RecordCredentialSwitch() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(CredentialSwitchesTotal, 1, nil)
	}
}

// RecordCredentialsExhausted records an acquire that found no credential under the limit
func RecordCredentialsExhausted() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(CredentialsExhausted, 1, nil)
	}
}

// RecordDailyReset records a lazy reset of the daily counters
func RecordDailyReset() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(DailyResetsTotal, 1, nil)
	}
}

// SetCredentialCalls sets today's call count for a 1-based credential number
func SetCredentialCalls(number int, count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			CredentialCalls,
			float64(count),
			map[string]string{
				"key": strconv.Itoa(number),
			},
		)
	}
}

// RecordUpstreamCall records one provider call with its outcome and latency
func RecordUpstreamCall(operation string, outcome string, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			UpstreamRequestsTotal,
			1,
			map[string]string{
				"operation": operation,
				"outcome":   outcome,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			UpstreamRequestDuration,
			duration,
			map[string]string{
				"operation": operation,
			},
		)
	}
}

// RecordUpstreamRetry records a second attempt after a quota rejection
func RecordUpstreamRetry(operation string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			UpstreamRetriesTotal,
			1,
			map[string]string{
				"operation": operation,
			},
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
