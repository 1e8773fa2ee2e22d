package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *[]*url.URL) {
	t.Helper()
	var seen []*url.URL
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return &Client{HTTPClient: server.Client(), BaseURL: server.URL}, &seen
}

func TestCurrentWeatherByQuery(t *testing.T) {
	client, seen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"São Paulo","main":{"temp":21.5},"id":3448439}`))
	})

	payload, err := client.CurrentWeather(context.Background(), "secret", Location{Query: "São Paulo"})
	require.NoError(t, err)

	require.Len(t, *seen, 1)
	got := (*seen)[0]
	require.Equal(t, weatherPath, got.Path)
	require.Equal(t, "São Paulo", got.Query().Get("q"))
	require.Equal(t, "secret", got.Query().Get("appid"))
	require.Equal(t, "metric", got.Query().Get("units"))
	require.Empty(t, got.Query().Get("lat"))

	body, ok := payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "São Paulo", body["name"])
	require.Equal(t, json.Number("3448439"), body["id"])
}

func TestCurrentWeatherPrefersCoordinates(t *testing.T) {
	client, seen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	client.Units = "imperial"

	_, err := client.CurrentWeather(context.Background(), "k", Location{Query: "Paris", Lat: "48.85", Lon: "2.35"})
	require.NoError(t, err)

	got := (*seen)[0].Query()
	require.Equal(t, "48.85", got.Get("lat"))
	require.Equal(t, "2.35", got.Get("lon"))
	require.Empty(t, got.Get("q"))
	require.Equal(t, "imperial", got.Get("units"))
}

func TestCurrentWeatherRejectsEmptyLocation(t *testing.T) {
	client, seen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.CurrentWeather(context.Background(), "k", Location{Lat: "1"})
	require.Error(t, err)
	require.Empty(t, *seen)
}

func TestForecastRequest(t *testing.T) {
	client, seen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cod":"200","list":[{"dt":1},{"dt":2}]}`))
	})

	payload, err := client.Forecast(context.Background(), "k", "10", "20")
	require.NoError(t, err)
	require.Equal(t, forecastPath, (*seen)[0].Path)

	list := payload.(map[string]any)["list"].([]any)
	require.Len(t, list, 2)
}

func TestReverseGeocodeRequest(t *testing.T) {
	client, seen := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"Lisbon","country":"PT"}]`))
	})

	payload, err := client.ReverseGeocode(context.Background(), "k", "38.7", "-9.1")
	require.NoError(t, err)

	got := (*seen)[0]
	require.Equal(t, reversePath, got.Path)
	require.Equal(t, "1", got.Query().Get("limit"))
	require.Empty(t, got.Query().Get("units"))

	places, ok := payload.([]any)
	require.True(t, ok)
	require.Len(t, places, 1)
}

func TestQuotaRejection(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"cod":429,"message":"quota exceeded"}`))
	})

	_, err := client.Forecast(context.Background(), "k", "1", "2")
	require.Error(t, err)
	require.True(t, IsQuotaRejected(err))
	require.Equal(t, http.StatusTooManyRequests, StatusCode(err))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 30*time.Second, statusErr.RetryAfter)
	require.Equal(t, 30*time.Second, RetryAfter(err))
	require.Contains(t, statusErr.Body, "quota exceeded")
}

func TestOtherFailuresAreNotQuota(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.CurrentWeather(context.Background(), "bad", Location{Query: "x"})
	require.Error(t, err)
	require.False(t, IsQuotaRejected(err))
	require.Equal(t, http.StatusUnauthorized, StatusCode(err))
	require.Zero(t, RetryAfter(err))
}

func TestInvalidJSONIsAnError(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.CurrentWeather(context.Background(), "k", Location{Query: "x"})
	require.Error(t, err)
	require.Equal(t, 0, StatusCode(err))
}

func TestTransportErrorRedactsCredential(t *testing.T) {
	client := &Client{BaseURL: "http://127.0.0.1:1", HTTPClient: &http.Client{Timeout: time.Second}}

	_, err := client.CurrentWeather(context.Background(), "topsecretkey", Location{Query: "x"})
	require.Error(t, err)
	require.NotContains(t, err.Error(), "topsecretkey")
}
