package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/weatherproxy/weatherproxy/internal/assets/appidentity"
)

func init() {
	// Best-effort registration.
	//
	// Explicit identity overrides remain authoritative (Options.ExplicitPath and
	// FULMEN_APP_IDENTITY_PATH). Embedded identity provides standalone-binary
	// behavior when no external `.fulmen/app.yaml` can be found.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// Default is the identity used when none can be loaded.
func Default() *appidentity.Identity {
	return &appidentity.Identity{
		Vendor:      "weatherproxy",
		BinaryName:  "weatherproxy",
		EnvPrefix:   "WEATHERPROXY_",
		ConfigName:  "weatherproxy",
		Description: "Weather data proxy with daily credential rotation",
	}
}

// Resolve returns the loaded identity, or Default and the load error.
func Resolve(ctx context.Context) (*appidentity.Identity, error) {
	identity, err := Get(ctx)
	if err != nil || identity == nil {
		return Default(), err
	}
	return identity, nil
}
