package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weatherproxy/weatherproxy/internal/observability"
	"github.com/weatherproxy/weatherproxy/internal/proxy"
	"github.com/weatherproxy/weatherproxy/internal/server/handlers"
	"github.com/weatherproxy/weatherproxy/internal/upstream"
)

var (
	fetchQuery  string
	fetchLat    string
	fetchLon    string
	fetchOut    string
	fetchOutDir string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Call the provider once through the credential rotator",
	Long: `Call the weather provider directly, using the configured credentials and
the same rotation and retry rules as the server. Usage counters start at
zero for each invocation; use "status" to inspect a running server.`,
}

var fetchWeatherCmd = &cobra.Command{
	Use:   "weather",
	Short: "Fetch current conditions (--q or --lat/--lon)",
	RunE: func(cmd *cobra.Command, args []string) error {
		loc := upstream.Location{
			Query: strings.TrimSpace(fetchQuery),
			Lat:   strings.TrimSpace(fetchLat),
			Lon:   strings.TrimSpace(fetchLon),
		}
		if !loc.Valid() {
			return fmt.Errorf("--q or both --lat and --lon are required")
		}
		return runFetch(cmd, handlers.OpWeather, func(stack *components) proxy.FetchFunc {
			return func(ctx context.Context, credential string) (any, error) {
				return stack.provider.CurrentWeather(ctx, credential, loc)
			}
		})
	},
}

var fetchForecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Fetch the 3-hour forecast (--lat/--lon)",
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lon, err := fetchCoordinates()
		if err != nil {
			return err
		}
		return runFetch(cmd, handlers.OpForecast, func(stack *components) proxy.FetchFunc {
			return func(ctx context.Context, credential string) (any, error) {
				return stack.provider.Forecast(ctx, credential, lat, lon)
			}
		})
	},
}

var fetchReverseCmd = &cobra.Command{
	Use:   "reverse",
	Short: "Resolve coordinates to place names (--lat/--lon)",
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lon, err := fetchCoordinates()
		if err != nil {
			return err
		}
		return runFetch(cmd, handlers.OpReverse, func(stack *components) proxy.FetchFunc {
			return func(ctx context.Context, credential string) (any, error) {
				return stack.provider.ReverseGeocode(ctx, credential, lat, lon)
			}
		})
	},
}

func fetchCoordinates() (string, string, error) {
	lat, lon := strings.TrimSpace(fetchLat), strings.TrimSpace(fetchLon)
	if lat == "" || lon == "" {
		return "", "", fmt.Errorf("--lat and --lon are required")
	}
	return lat, lon, nil
}

func runFetch(cmd *cobra.Command, operation string, build func(*components) proxy.FetchFunc) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stack := buildComponents(cfg)

	result, err := stack.service.Fetch(cmd.Context(), operation, build(stack))
	if err != nil {
		return err
	}

	observability.CLILogger.Debug("Fetch completed",
		zap.String("operation", operation),
		zap.Int("key_used", result.KeyUsed),
		zap.Bool("retried", result.Retried))

	outPath, err := fetchTarget(operation)
	if err != nil {
		return err
	}
	sink, err := openSink(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	encoder := json.NewEncoder(sink.writer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result.Payload)
}

func fetchTarget(operation string) (string, error) {
	outPath, outDir := strings.TrimSpace(fetchOut), strings.TrimSpace(fetchOutDir)
	if outPath != "" && outDir != "" {
		return "", fmt.Errorf("--out and --out-dir are mutually exclusive")
	}
	if outDir == "" {
		return outPath, nil
	}
	dir, err := ensureOutDir(outDir)
	if err != nil {
		return "", err
	}
	return joinOutput(dir, sanitizeFilename(operation)+".json"), nil
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.AddCommand(fetchWeatherCmd, fetchForecastCmd, fetchReverseCmd)

	fetchCmd.PersistentFlags().StringVar(&fetchLat, "lat", "", "latitude")
	fetchCmd.PersistentFlags().StringVar(&fetchLon, "lon", "", "longitude")
	fetchCmd.PersistentFlags().StringVar(&fetchOut, "out", "", "Write output to a file (default stdout)")
	fetchCmd.PersistentFlags().StringVar(&fetchOutDir, "out-dir", "", "Write output to a directory")
	fetchWeatherCmd.Flags().StringVar(&fetchQuery, "q", "", "place query, e.g. \"London,GB\"")
}
