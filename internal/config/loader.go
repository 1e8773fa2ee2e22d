// Package config provides centralized configuration management for the
// weather proxy. Values are layered by viper (defaults, config file,
// environment, flags) and decoded into a typed Config with mapstructure.
//
// The environment variables of the original deployment keep working:
// OPENWEATHER_KEY_1..OPENWEATHER_KEY_32 supply credentials in order,
// DAILY_LIMIT and PORT are read when the prefixed variables are unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 3000
	DefaultDailyLimit      = 900
	DefaultBaseURL         = "https://api.openweathermap.org"
	DefaultUnits           = "metric"
	DefaultForecastEntries = 8

	// CredentialEnvPrefix names the numbered credential variables.
	CredentialEnvPrefix = "OPENWEATHER_KEY_"

	// MaxEnvCredentials bounds the numbered credential scan.
	MaxEnvCredentials = 32
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers default configuration values on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Quota defaults
	v.SetDefault("quota.daily_limit", DefaultDailyLimit)
	v.SetDefault("quota.keys", []string{})

	// Upstream defaults
	v.SetDefault("upstream.base_url", DefaultBaseURL)
	v.SetDefault("upstream.units", DefaultUnits)
	v.SetDefault("upstream.timeout", "10s")
	v.SetDefault("upstream.forecast_entries", DefaultForecastEntries)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("logging.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)
	v.SetDefault("debug.enabled", false)
}

// BindEnv maps {PREFIX}{SECTION}_{KEY} variables onto config keys and wires
// the unprefixed variables of the original deployment as fallbacks.
func BindEnv(v *viper.Viper, envPrefix string) {
	prefix := strings.TrimSuffix(strings.TrimSpace(envPrefix), "_")
	if prefix != "" {
		v.SetEnvPrefix(prefix)
		prefix += "_"
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit names are used verbatim; the first one set wins.
	_ = v.BindEnv("server.port", prefix+"SERVER_PORT", "PORT")
	_ = v.BindEnv("quota.daily_limit", prefix+"QUOTA_DAILY_LIMIT", "DAILY_LIMIT")
	_ = v.BindEnv("logging.level", prefix+"LOGGING_LEVEL", prefix+"LOG_LEVEL")
}

// Load decodes the settings held by v, appends numbered environment
// credentials, applies fallbacks and stores the result for GetConfig.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper) (*Config, error) {
	return load(v, os.LookupEnv)
}

func load(v *viper.Viper, lookupEnv func(string) (string, bool)) (*Config, error) {
	if v == nil {
		v = viper.New()
		SetDefaults(v)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			lenientIntHook(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Quota.Keys = append(cleanKeys(cfg.Quota.Keys), CollectCredentials(lookupEnv)...)
	normalize(cfg)

	setConfig(cfg)
	return cfg, nil
}

// CollectCredentials reads OPENWEATHER_KEY_1..OPENWEATHER_KEY_32 in order.
// Unset and blank variables are skipped without ending the scan.
func CollectCredentials(lookupEnv func(string) (string, bool)) []string {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	var keys []string
	for i := 1; i <= MaxEnvCredentials; i++ {
		value, ok := lookupEnv(CredentialEnvPrefix + strconv.Itoa(i))
		if !ok {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			keys = append(keys, value)
		}
	}
	return keys
}

func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			out = append(out, key)
		}
	}
	return out
}

func normalize(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Host) == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Quota.DailyLimit <= 0 {
		cfg.Quota.DailyLimit = DefaultDailyLimit
	}
	if strings.TrimSpace(cfg.Upstream.BaseURL) == "" {
		cfg.Upstream.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.Upstream.Units) == "" {
		cfg.Upstream.Units = DefaultUnits
	}
	if cfg.Upstream.ForecastEntries <= 0 {
		cfg.Upstream.ForecastEntries = DefaultForecastEntries
	}
	if len(cleanKeys(cfg.CORS.AllowedOrigins)) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
}

// lenientIntHook parses integers from strings the way the original
// deployment read DAILY_LIMIT and PORT: leading digits count, anything
// unparsable becomes 0 and is replaced by the default during normalization.
func lenientIntHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Int {
			return data, nil
		}
		return ParseLeadingInt(data.(string)), nil
	}
}

// ParseLeadingInt returns the integer formed by the optional sign and
// leading digits of s, or 0 when there are none.
func ParseLeadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// RedactKey masks a credential for display, keeping a short prefix so keys
// can be told apart.
func RedactKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-4)
}

// Redacted returns a copy of cfg safe to print.
func (c *Config) Redacted() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Quota.Keys = make([]string, len(c.Quota.Keys))
	for i, key := range c.Quota.Keys {
		out.Quota.Keys[i] = RedactKey(key)
	}
	return &out
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath(configName string) string {
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// ConfigSearchPaths lists the config files checked when --config is not
// given, including paths under a legacy binary name.
func ConfigSearchPaths(configName string, legacyNames ...string) []string {
	return gfconfig.GetAppConfigPaths(configName, legacyNames...)
}
