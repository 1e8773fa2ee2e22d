package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/weatherproxy/weatherproxy/internal/metrics"
)

// Check results reported per checker and in aggregate.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	statusTimeout   = "timeout"
)

// ErrDegraded marks a check that is failing softly: the service still
// answers but cannot do useful work (for example every credential is spent).
var ErrDegraded = stderrors.New("degraded")

// HealthResponse is the body of GET /health. The first three fields are the
// long-standing public shape and never change with check results.
type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
	ServerURL string  `json:"serverUrl,omitempty"`
	Version   string  `json:"version,omitempty"`
}

// ProbeResponse is the body of the Kubernetes-style probes.
type ProbeResponse struct {
	Status    string `json:"status"`
	Probe     string `json:"probe"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc func(ctx context.Context) error

// CheckHealth calls f.
func (f CheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// HealthManager serves /health and runs the registered checks for the
// readiness and startup probes.
type HealthManager struct {
	checkers map[string]HealthChecker
	version  string
	started  time.Time

	// PublicURL is reported as serverUrl. When empty the URL is derived
	// from the request.
	PublicURL string

	// Clock is used for timestamps and uptime. Defaults to time.Now.
	Clock func() time.Time
}

// NewHealthManager creates a new health manager; uptime counts from now.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
		started:  time.Now(),
	}
}

// RegisterChecker registers a health checker
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.checkers[name] = checker
}

// SetStarted overrides the instant uptime is measured from.
func (hm *HealthManager) SetStarted(t time.Time) {
	hm.started = t
}

// runHealthChecks executes the registered checks in name order.
func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			checks[name] = statusTimeout
			continue
		}

		start := time.Now()
		err := hm.checkers[name].CheckHealth(ctx)
		switch {
		case err == nil:
			checks[name] = StatusHealthy
		case stderrors.Is(err, ErrDegraded):
			checks[name] = StatusDegraded
		default:
			checks[name] = StatusUnhealthy
		}
		metrics.RecordHealthCheck(name, err == nil, time.Since(start))
	}

	return checks
}

// determineOverallStatus folds per-check results: any unhealthy check wins,
// then any degraded or timed-out check.
func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	degraded := false
	for _, status := range checks {
		switch status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, statusTimeout:
			degraded = true
		}
	}
	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// HealthHandler handles GET /health. It always answers 200 "healthy" while
// the process serves requests; registered checks only drive the readiness
// and startup probes.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	now := hm.now()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    StatusHealthy,
		Timestamp: now.UTC().Format(ISOTimeLayout),
		Uptime:    now.Sub(hm.started).Seconds(),
		ServerURL: hm.serverURL(r),
		Version:   hm.version,
	})
}

// LivenessHandler answers while the process is serving requests. It runs no
// checks, so a spent credential pool never restarts the pod.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProbeResponse{
		Status:    StatusHealthy,
		Probe:     "live",
		Timestamp: hm.now().UTC().Format(ISOTimeLayout),
	})
}

// ReadinessHandler reports whether the proxy can serve traffic.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "ready", 5*time.Second)
}

// StartupHandler reports whether initialization has completed.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "startup", 3*time.Second)
}

func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, name string, timeout time.Duration) {
	checkCtx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := hm.runHealthChecks(checkCtx)
	status := hm.determineOverallStatus(checks)

	if status == StatusUnhealthy {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", name+" probe failed")
		envelope = enrichHealthEnvelope(envelope, name, status, checks)
		respondWithError(w, r, envelope)
		return
	}

	writeJSON(w, http.StatusOK, ProbeResponse{
		Status:    status,
		Probe:     name,
		Timestamp: hm.now().UTC().Format(ISOTimeLayout),
	})
}

func (hm *HealthManager) serverURL(r *http.Request) string {
	if url := strings.TrimSpace(hm.PublicURL); url != "" {
		return strings.TrimSuffix(url, "/")
	}
	if r == nil || r.Host == "" {
		return ""
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}

func (hm *HealthManager) now() time.Time {
	if hm.Clock != nil {
		return hm.Clock()
	}
	return time.Now()
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	details := map[string]interface{}{
		"status": status,
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	if probe != "" {
		details["probe"] = probe
	}
	envelope = envelope.WithDetails(details)

	contextData := map[string]interface{}{
		"status": status,
	}
	if probe != "" {
		contextData["probe"] = probe
	}

	var failing []string
	for name, result := range checks {
		if result != StatusHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		contextData["unhealthy_checks"] = failing
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}
