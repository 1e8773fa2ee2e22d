package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weatherproxy/weatherproxy/internal/config"
	"github.com/weatherproxy/weatherproxy/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		logger.Info("=== Weather Proxy Environment Information ===")
		logger.Info("")

		logger.Info("Application:")
		logger.Info("  Name:       " + identity.BinaryName)
		logger.Info("  Version:    " + versionInfo.Version)
		logger.Info("  Commit:     " + versionInfo.Commit)
		logger.Info("  Built:      " + versionInfo.BuildDate)
		logger.Info("  Env Prefix: " + identity.EnvPrefix)
		logger.Info("")

		logger.Info("SSOT:")
		logger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		logger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		logger.Info("")

		logger.Info("Runtime:")
		logger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		logger.Info("  GOOS/ARCH:  "+runtime.GOOS+"/"+runtime.GOARCH, zap.String("goos", runtime.GOOS), zap.String("goarch", runtime.GOARCH))
		logger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		logger.Info("")

		cfg, err := loadConfig()
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return
		}

		logger.Info("Configuration:")
		logger.Info("  Server:        "+fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), zap.String("host", cfg.Server.Host), zap.Int("port", cfg.Server.Port))
		logger.Info("  Log Level:     "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		logger.Info(fmt.Sprintf("  Metrics:       enabled=%t port=%d", cfg.Metrics.Enabled, cfg.Metrics.Port))
		logger.Info("  Config File:   "+config.DefaultConfigPath(identity.ConfigName), zap.String("config_file", config.DefaultConfigPath(identity.ConfigName)))
		logger.Info("")

		logger.Info("Quota:")
		logger.Info(fmt.Sprintf("  Credentials:   %d", len(cfg.Quota.Keys)), zap.Int("keys", len(cfg.Quota.Keys)))
		logger.Info(fmt.Sprintf("  Daily Limit:   %d", cfg.Quota.DailyLimit), zap.Int("daily_limit", cfg.Quota.DailyLimit))
		logger.Info("")

		logger.Info("Upstream:")
		logger.Info("  Base URL:      " + cfg.Upstream.BaseURL)
		logger.Info("  Units:         " + cfg.Upstream.Units)
		logger.Info("  Timeout:       " + cfg.Upstream.Timeout.String())
		logger.Info(fmt.Sprintf("  Forecast Rows: %d", cfg.Upstream.ForecastEntries))
		logger.Info(fmt.Sprintf("  CORS Origins:  %v", cfg.CORS.AllowedOrigins))
		logger.Info("")

		logger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
