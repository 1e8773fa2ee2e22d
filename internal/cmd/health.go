package cmd

import (
	"fmt"
	"net/url"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/weatherproxy/weatherproxy/internal/errors"
	"github.com/weatherproxy/weatherproxy/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the proxy can start: version info, configuration, credentials and upstream settings.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		logger.Info("✅ Configuration loaded")

		if _, err := url.ParseRequestURI(cfg.Upstream.BaseURL); err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Upstream base URL invalid", errwrap.WrapConfigInvalid(cmd.Context(), err, "upstream.base_url"))
			return
		}
		logger.Info("✅ Upstream URL " + cfg.Upstream.BaseURL)

		if len(cfg.Quota.Keys) == 0 {
			logger.Warn("⚠️  No provider credentials configured; weather routes will answer 429")
		} else {
			logger.Info(fmt.Sprintf("✅ %d credentials, %d calls/day each", len(cfg.Quota.Keys), cfg.Quota.DailyLimit))
		}

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
