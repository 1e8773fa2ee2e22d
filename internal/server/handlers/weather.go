package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/weatherproxy/weatherproxy/internal/errors"
	"github.com/weatherproxy/weatherproxy/internal/metrics"
	"github.com/weatherproxy/weatherproxy/internal/proxy"
	"github.com/weatherproxy/weatherproxy/internal/rotation"
	"github.com/weatherproxy/weatherproxy/internal/upstream"
)

// Response messages are part of the public contract.
const (
	msgMissingParameters   = "Missing parameters"
	msgCoordinatesRequired = "Latitude and longitude required"
	msgDailyLimitReached   = "All API keys have reached daily limit"
	msgKeysExhausted       = "All API keys exhausted"
	msgKeysRateLimited     = "All API keys rate limited"
	msgWeatherFailed       = "Failed to fetch weather data"
	msgForecastFailed      = "Failed to fetch forecast data"
	msgReverseFailed       = "Failed to get location name"

	resetTimeHint = "Tomorrow at midnight UTC"

	// ISOTimeLayout matches JavaScript's Date.prototype.toISOString.
	ISOTimeLayout = "2006-01-02T15:04:05.000Z"

	defaultForecastEntries = 8
)

// Operation names used in logs and metrics.
const (
	OpWeather  = "weather"
	OpForecast = "forecast"
	OpReverse  = "reverse"
)

// Fetcher runs an upstream call through the credential rotator.
type Fetcher interface {
	Fetch(ctx context.Context, operation string, fetch proxy.FetchFunc) (*proxy.Result, error)
}

// Provider is the upstream weather API.
type Provider interface {
	CurrentWeather(ctx context.Context, credential string, loc upstream.Location) (any, error)
	Forecast(ctx context.Context, credential, lat, lon string) (any, error)
	ReverseGeocode(ctx context.Context, credential, lat, lon string) (any, error)
}

// UsageReporter exposes the rotator's daily accounting.
type UsageReporter interface {
	Status() rotation.Status
}

// APIUsage is attached to successful object payloads.
type APIUsage struct {
	KeyUsed        int `json:"keyUsed"`
	CallsRemaining int `json:"callsRemaining"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	TotalKeys  int        `json:"totalKeys"`
	DailyLimit int        `json:"dailyLimit"`
	Usage      []KeyUsage `json:"usage"`
	LastReset  string     `json:"lastReset"`
	ServerTime string     `json:"serverTime"`
}

// KeyUsage is one credential's line in StatusResponse.
type KeyUsage struct {
	KeyNumber      int `json:"keyNumber"`
	CallsMade      int `json:"callsMade"`
	CallsRemaining int `json:"callsRemaining"`
	PercentageUsed int `json:"percentageUsed"`
}

// RootResponse is the body of GET /.
type RootResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
	Uptime    float64           `json:"uptime"`
}

// WeatherHandlers serves the proxy routes. All collaborators are injected so
// tests can run them against fakes.
type WeatherHandlers struct {
	Proxy    Fetcher
	Provider Provider
	Usage    UsageReporter

	// ForecastEntries caps the forecast list. Defaults to 8.
	ForecastEntries int

	Started time.Time
	Clock   func() time.Time
}

// Weather handles GET /weather?q= or ?lat=&lon=. Coordinates win over q.
// Unlike /forecast and /reverse, exhaustion is reported before parameter
// validation.
func (h *WeatherHandlers) Weather(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	loc := upstream.Location{
		Query: strings.TrimSpace(query.Get("q")),
		Lat:   strings.TrimSpace(query.Get("lat")),
		Lon:   strings.TrimSpace(query.Get("lon")),
	}
	if !loc.Valid() {
		if h.Usage != nil && h.Usage.Status().Exhausted() {
			h.respondFetchError(w, r, OpWeather, proxy.ErrQuotaExhausted, msgDailyLimitReached, msgWeatherFailed)
			return
		}
		respondWithMessage(w, r, apperrors.NewMissingParametersError(msgMissingParameters))
		return
	}

	result, err := h.Proxy.Fetch(r.Context(), OpWeather, func(ctx context.Context, credential string) (any, error) {
		return h.Provider.CurrentWeather(ctx, credential, loc)
	})
	if err != nil {
		h.respondFetchError(w, r, OpWeather, err, msgDailyLimitReached, msgWeatherFailed)
		return
	}

	writeJSON(w, http.StatusOK, withUsage(result.Payload, result))
}

// Forecast handles GET /forecast?lat=&lon= and truncates the list.
func (h *WeatherHandlers) Forecast(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := coordinates(r)
	if !ok {
		respondWithMessage(w, r, apperrors.NewMissingParametersError(msgCoordinatesRequired))
		return
	}

	result, err := h.Proxy.Fetch(r.Context(), OpForecast, func(ctx context.Context, credential string) (any, error) {
		return h.Provider.Forecast(ctx, credential, lat, lon)
	})
	if err != nil {
		h.respondFetchError(w, r, OpForecast, err, msgDailyLimitReached, msgForecastFailed)
		return
	}

	body, err := truncateForecast(result.Payload, h.forecastEntries())
	if err != nil {
		metrics.RecordProxyFailure(OpForecast, metrics.FailureUpstream)
		respondWithMessage(w, r, apperrors.WrapUpstream(r.Context(), err, msgForecastFailed))
		return
	}
	body["apiUsage"] = usageOf(result)

	writeJSON(w, http.StatusOK, body)
}

// Reverse handles GET /reverse?lat=&lon=. The provider answers with an
// array, which is returned as is.
func (h *WeatherHandlers) Reverse(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := coordinates(r)
	if !ok {
		respondWithMessage(w, r, apperrors.NewMissingParametersError(msgCoordinatesRequired))
		return
	}

	result, err := h.Proxy.Fetch(r.Context(), OpReverse, func(ctx context.Context, credential string) (any, error) {
		return h.Provider.ReverseGeocode(ctx, credential, lat, lon)
	})
	if err != nil {
		h.respondFetchError(w, r, OpReverse, err, msgKeysExhausted, msgReverseFailed)
		return
	}

	writeJSON(w, http.StatusOK, withUsage(result.Payload, result))
}

// Status handles GET /status.
func (h *WeatherHandlers) Status(w http.ResponseWriter, r *http.Request) {
	status := h.Usage.Status()

	usage := make([]KeyUsage, 0, len(status.Usage))
	for _, u := range status.Usage {
		usage = append(usage, KeyUsage{
			KeyNumber:      u.Number(),
			CallsMade:      u.CallsMade,
			CallsRemaining: u.CallsRemaining,
			PercentageUsed: u.PercentageUsed,
		})
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		TotalKeys:  status.TotalKeys,
		DailyLimit: status.DailyLimit,
		Usage:      usage,
		LastReset:  status.LastResetString(),
		ServerTime: h.now().UTC().Format(ISOTimeLayout),
	})
}

// Root handles GET / with service metadata and the endpoint map.
func (h *WeatherHandlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Message: "Weather Proxy Server",
		Version: AppVersion,
		Endpoints: map[string]string{
			"weather":  "/weather",
			"forecast": "/forecast",
			"reverse":  "/reverse",
			"status":   "/status",
			"health":   "/health",
		},
		Uptime: h.now().Sub(h.Started).Seconds(),
	})
}

func (h *WeatherHandlers) respondFetchError(w http.ResponseWriter, r *http.Request, operation string, err error, exhaustedMessage, failureMessage string) {
	switch {
	case errors.Is(err, proxy.ErrQuotaExhausted):
		metrics.RecordProxyFailure(operation, metrics.FailureQuotaExhausted)
		var details map[string]interface{}
		if exhaustedMessage == msgDailyLimitReached {
			details = map[string]interface{}{"resetTime": resetTimeHint}
		}
		respondWithMessage(w, r, apperrors.NewQuotaExhaustedError(exhaustedMessage, details))
	case errors.Is(err, proxy.ErrRetryUnavailable):
		metrics.RecordProxyFailure(operation, metrics.FailureRetryUnavailable)
		respondWithMessage(w, r, apperrors.NewQuotaExhaustedError(msgKeysExhausted, nil))
	case errors.Is(err, proxy.ErrRateLimited):
		metrics.RecordProxyFailure(operation, metrics.FailureRateLimited)
		respondWithMessage(w, r, apperrors.WrapUpstreamQuotaRejected(r.Context(), err, msgKeysRateLimited))
	default:
		metrics.RecordProxyFailure(operation, metrics.FailureUpstream)
		respondWithMessage(w, r, apperrors.WrapUpstream(r.Context(), err, failureMessage))
	}
}

func (h *WeatherHandlers) forecastEntries() int {
	if h.ForecastEntries > 0 {
		return h.ForecastEntries
	}
	return defaultForecastEntries
}

func (h *WeatherHandlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

func coordinates(r *http.Request) (string, string, bool) {
	query := r.URL.Query()
	lat := strings.TrimSpace(query.Get("lat"))
	lon := strings.TrimSpace(query.Get("lon"))
	return lat, lon, lat != "" && lon != ""
}

func usageOf(result *proxy.Result) APIUsage {
	return APIUsage{KeyUsed: result.KeyUsed, CallsRemaining: result.CallsRemaining}
}

// withUsage attaches apiUsage to object payloads. Other JSON values pass
// through untouched.
func withUsage(payload any, result *proxy.Result) any {
	body, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	body["apiUsage"] = usageOf(result)
	return body
}

func truncateForecast(payload any, entries int) (map[string]any, error) {
	body, ok := payload.(map[string]any)
	if !ok {
		return nil, errors.New("forecast payload is not an object")
	}
	list, ok := body["list"].([]any)
	if !ok {
		return nil, errors.New("forecast payload has no list")
	}
	if len(list) > entries {
		body["list"] = list[:entries]
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(body)
}
