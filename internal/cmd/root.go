package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/weatherproxy/weatherproxy/internal/appid"
	"github.com/weatherproxy/weatherproxy/internal/config"
	"github.com/weatherproxy/weatherproxy/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// App identity loaded from .fulmen/app.yaml, or the built-in default.
	appIdentity *appidentity.Identity

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the app identity. It never returns nil.
func GetAppIdentity() *appidentity.Identity {
	if appIdentity == nil {
		return appid.Default()
	}
	return appIdentity
}

var rootCmd = &cobra.Command{
	// NOTE: applyIdentity overwrites these from app identity.
	Use:   filepath.Base(os.Args[0]),
	Short: "Weather data proxy with daily credential rotation",
	Long: `Weather data proxy with daily credential rotation.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Keep config loading from emitting metrics to stdout. serve
	// initializes the Prometheus-backed system later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	// Load identity early so --help shows the right names.
	identity, _ := appid.Resolve(context.Background())
	applyIdentity(identity)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; defaults to app identity config path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func applyIdentity(identity *appidentity.Identity) {
	if identity == nil {
		return
	}
	appIdentity = identity
	if identity.BinaryName != "" {
		rootCmd.Use = identity.BinaryName
	}
	if identity.Description != "" {
		rootCmd.Short = identity.Description
		rootCmd.Long = fmt.Sprintf("%s - %s\n\nUse the subcommands to perform specific operations.", identity.BinaryName, identity.Description)
	}
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}
}

// initConfig reads the config file and wires environment variables.
func initConfig() {
	identity, identityErr := appid.Resolve(context.Background())
	applyIdentity(identity)

	observability.InitCLILogger(identity.BinaryName, verbose)
	if identityErr != nil {
		observability.CLILogger.Debug("Using built-in app identity", zap.Error(identityErr))
	}

	configureViper(viper.GetViper(), identity)

	if err := viper.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	} else {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			observability.CLILogger.Debug("No config file found, using defaults and environment variables")
		case cfgFile == "" && os.IsNotExist(err):
			observability.CLILogger.Debug("No config file found, using defaults and environment variables")
		default:
			observability.CLILogger.Warn("Error reading config file", zap.Error(err))
		}
	}
}

// configureViper registers defaults, environment bindings and config file
// search paths on v.
func configureViper(v *viper.Viper, identity *appidentity.Identity) {
	config.SetDefaults(v)
	config.BindEnv(v, identity.EnvPrefix)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		return
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir := gfconfig.GetAppConfigDir(identity.ConfigName); dir != "" {
		v.AddConfigPath(dir)
	}
	if identity.BinaryName != "" && identity.BinaryName != identity.ConfigName {
		if legacy := gfconfig.GetAppConfigDir(identity.BinaryName); legacy != "" {
			v.AddConfigPath(legacy)
		}
	}
	v.AddConfigPath("./config")
}

// loadConfig decodes the active viper settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
