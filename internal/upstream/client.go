package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openweathermap.org"
	defaultUnits   = "metric"

	weatherPath  = "/data/2.5/weather"
	forecastPath = "/data/2.5/forecast"
	reversePath  = "/geo/1.0/reverse"

	// maxErrorBody caps how much of a failed response is kept for logging.
	maxErrorBody = 1024
)

// Location selects what to ask the provider about. Coordinates win over a
// place query when both are set.
type Location struct {
	Query string
	Lat   string
	Lon   string
}

// HasCoordinates reports whether both latitude and longitude are present.
func (l Location) HasCoordinates() bool {
	return l.Lat != "" && l.Lon != ""
}

// Valid reports whether the location can be sent upstream.
func (l Location) Valid() bool {
	return l.HasCoordinates() || l.Query != ""
}

// Client talks to the OpenWeather HTTP API. Payloads are returned as decoded
// JSON values (map[string]any / []any with json.Number) so callers can pass
// them through unchanged.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	Units      string
	UserAgent  string
}

// CurrentWeather fetches current conditions for a location.
func (c *Client) CurrentWeather(ctx context.Context, credential string, loc Location) (any, error) {
	if !loc.Valid() {
		return nil, errors.New("location requires q or lat and lon")
	}

	params := url.Values{}
	if loc.HasCoordinates() {
		params.Set("lat", loc.Lat)
		params.Set("lon", loc.Lon)
	} else {
		params.Set("q", loc.Query)
	}
	params.Set("appid", credential)
	params.Set("units", c.units())

	return c.get(ctx, weatherPath, params)
}

// Forecast fetches the 5 day / 3 hour forecast for coordinates.
func (c *Client) Forecast(ctx context.Context, credential, lat, lon string) (any, error) {
	if lat == "" || lon == "" {
		return nil, errors.New("forecast requires lat and lon")
	}

	params := url.Values{}
	params.Set("lat", lat)
	params.Set("lon", lon)
	params.Set("appid", credential)
	params.Set("units", c.units())

	return c.get(ctx, forecastPath, params)
}

// ReverseGeocode resolves coordinates to at most one place name.
func (c *Client) ReverseGeocode(ctx context.Context, credential, lat, lon string) (any, error) {
	if lat == "" || lon == "" {
		return nil, errors.New("reverse geocoding requires lat and lon")
	}

	params := url.Values{}
	params.Set("lat", lat)
	params.Set("lon", lon)
	params.Set("limit", "1")
	params.Set("appid", credential)

	return c.get(ctx, reversePath, params)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	base, err := c.baseURL()
	if err != nil {
		return nil, err
	}
	reqURL := base.ResolveReference(&url.URL{Path: path})
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", path, redact(err, params.Get("appid")))
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		wait := retryAfterHeader(resp)
		return nil, &StatusError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: wait,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream %s: %w", path, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode upstream %s: %w", path, err)
	}
	return payload, nil
}

func (c *Client) client() *http.Client {
	if c != nil && c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *Client) baseURL() (*url.URL, error) {
	raw := defaultBaseURL
	if c != nil && strings.TrimSpace(c.BaseURL) != "" {
		raw = strings.TrimSpace(c.BaseURL)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base url: %w", err)
	}
	return parsed, nil
}

func (c *Client) units() string {
	if c != nil && strings.TrimSpace(c.Units) != "" {
		return strings.TrimSpace(c.Units)
	}
	return defaultUnits
}

// redact strips the credential from transport errors, which embed the
// request URL.
func redact(err error, credential string) error {
	if err == nil || credential == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, credential) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, credential, "REDACTED"))
}
