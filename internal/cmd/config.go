package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/weatherproxy/weatherproxy/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML (credentials redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file in use and the search locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		identity := GetAppIdentity()

		used := viper.ConfigFileUsed()
		if used == "" {
			used = "(none)"
		}
		_, _ = fmt.Fprintf(out, "In use:  %s\n", used)
		_, _ = fmt.Fprintf(out, "Default: %s\n", config.DefaultConfigPath(identity.ConfigName))
		for _, path := range config.ConfigSearchPaths(identity.ConfigName, identity.BinaryName) {
			_, _ = fmt.Fprintf(out, "Search:  %s\n", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configPathCmd)
}
