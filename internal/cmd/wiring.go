package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/weatherproxy/weatherproxy/internal/config"
	apperrors "github.com/weatherproxy/weatherproxy/internal/errors"
	"github.com/weatherproxy/weatherproxy/internal/observability"
	"github.com/weatherproxy/weatherproxy/internal/proxy"
	"github.com/weatherproxy/weatherproxy/internal/rotation"
	"github.com/weatherproxy/weatherproxy/internal/server/handlers"
	"github.com/weatherproxy/weatherproxy/internal/upstream"
)

// components is the proxy stack built from one Config.
type components struct {
	rotator  *rotation.Rotator
	service  *proxy.Service
	provider *upstream.Client
}

func buildComponents(cfg *config.Config) *components {
	rotator := rotation.New(rotation.Options{
		Credentials: cfg.Quota.Keys,
		DailyLimit:  cfg.Quota.DailyLimit,
	})

	provider := &upstream.Client{
		HTTPClient: &http.Client{Timeout: cfg.Upstream.Timeout},
		BaseURL:    cfg.Upstream.BaseURL,
		Units:      cfg.Upstream.Units,
		UserAgent:  fmt.Sprintf("%s/%s", GetAppIdentity().BinaryName, versionInfo.Version),
	}

	return &components{
		rotator:  rotator,
		service:  proxy.New(rotator),
		provider: provider,
	}
}

func (c *components) weatherHandlers(cfg *config.Config, started time.Time) *handlers.WeatherHandlers {
	return &handlers.WeatherHandlers{
		Proxy:           c.service,
		Provider:        c.provider,
		Usage:           c.rotator,
		ForecastEntries: cfg.Upstream.ForecastEntries,
		Started:         started,
	}
}

// credentialsHealthChecker fails with no credentials and degrades once
// every credential is spent for the day.
type credentialsHealthChecker struct {
	rotator *rotation.Rotator
}

func (c credentialsHealthChecker) CheckHealth(ctx context.Context) error {
	if c.rotator.Len() == 0 {
		return apperrors.NewConfigInvalidError("no provider credentials configured")
	}
	if c.rotator.Status().Exhausted() {
		return fmt.Errorf("all %d credentials reached the daily limit: %w", c.rotator.Len(), handlers.ErrDegraded)
	}
	return nil
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return apperrors.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return apperrors.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return apperrors.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return apperrors.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}
