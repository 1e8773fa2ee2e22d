package cmd

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/weatherproxy/weatherproxy/internal/config"
	errwrap "github.com/weatherproxy/weatherproxy/internal/errors"
	"github.com/weatherproxy/weatherproxy/internal/metrics"
	"github.com/weatherproxy/weatherproxy/internal/observability"
	"github.com/weatherproxy/weatherproxy/internal/server"
	"github.com/weatherproxy/weatherproxy/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the weather proxy",
	Long: `Start the weather proxy HTTP server with graceful shutdown support.

Credentials are read from quota.keys in the config file followed by
OPENWEATHER_KEY_1 through OPENWEATHER_KEY_32. PORT and DAILY_LIMIT are
honored when the prefixed variables are unset.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file (credentials and limits need a restart)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration invalid")
		}

		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()
		started := time.Now()

		logLevel := cfg.Logging.Level
		if verbose {
			logLevel = "debug"
		}
		observability.InitServerLogger(identity.BinaryName, logLevel, namespace)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
			metrics.SetServerStartTime(started.Unix())
		}

		stack := buildComponents(cfg)

		logger.Info("Weather proxy starting",
			zap.String("service", identity.BinaryName),
			zap.String("version", versionInfo.Version),
			zap.Int("port", cfg.Server.Port),
			zap.Int("daily_limit", cfg.Quota.DailyLimit),
			zap.Int("keys_loaded", stack.rotator.Len()),
			zap.String("upstream", cfg.Upstream.BaseURL))
		if stack.rotator.Len() == 0 {
			logger.Warn("No provider credentials configured; weather routes will answer 429",
				zap.String("hint", config.CredentialEnvPrefix+"1"))
		}

		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.SetStarted(started)
		hm.PublicURL = cfg.Server.PublicURL
		hm.RegisterChecker("credentials", credentialsHealthChecker{rotator: stack.rotator})
		hm.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		handlers.SetAppIdentity(identity)

		srv := server.New(server.Options{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			IdleTimeout:    cfg.Server.IdleTimeout,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Weather:        stack.weatherHandlers(cfg, started),
			Health:         hm,
			AdminToken:     os.Getenv(identity.EnvPrefix + "ADMIN_TOKEN"),
			MetricsPort:    cfg.Metrics.Port,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: the server stops before the logger flushes.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})
		if cfg.Metrics.Enabled {
			signals.OnShutdown(func(ctx context.Context) error {
				if err := observability.ShutdownMetrics(); err != nil {
					logger.Warn("Metrics exporter stop failed", zap.Error(err))
				}
				return nil
			})
		}
		signals.OnShutdown(func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: re-reading configuration")

			if err := viper.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if errors.As(err, &notFound) {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			next, err := loadConfig()
			if err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			if len(next.Quota.Keys) != stack.rotator.Len() || next.Quota.DailyLimit != stack.rotator.DailyLimit() {
				logger.Warn("Credential or limit changes take effect after restart",
					zap.Int("keys_configured", len(next.Quota.Keys)),
					zap.Int("keys_active", stack.rotator.Len()),
					zap.Int("daily_limit_configured", next.Quota.DailyLimit),
					zap.Int("daily_limit_active", stack.rotator.DailyLimit()))
			}

			logger.Info("Configuration reloaded", zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 2)
		go func() {
			errChan <- srv.Start()
		}()
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", config.DefaultHost, "server host")
	serveCmd.Flags().IntP("port", "p", config.DefaultPort, "server port")
	serveCmd.Flags().Int("daily-limit", config.DefaultDailyLimit, "calls per credential per UTC day")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("quota.daily_limit", serveCmd.Flags().Lookup("daily-limit"))
}
