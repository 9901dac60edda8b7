package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/revoice/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for inspecting revoice configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration in YAML format, after applying the
config file, environment variables, and defaults.

Redirect this output to a file to create a configuration template:

  revoice config show > config.yaml

Environment variables use the REVOICE_ prefix and underscores for nesting.
Example: server.port -> REVOICE_SERVER_PORT`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings, err := config.Show(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# revoice configuration")
	fmt.Println("# =====================")
	fmt.Println("#")
	fmt.Println("# Effective values after file, environment, and defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d. Size format: 500MB, 2GB.")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides use the REVOICE_ prefix:")
	fmt.Println("#   REVOICE_SERVER_HOST, REVOICE_SERVER_PORT")
	fmt.Println("#   REVOICE_STORAGE_BASE_DIR")
	fmt.Println("#   REVOICE_TRANSLATOR_API_KEY, REVOICE_TRANSLATOR_MODEL")
	fmt.Println("#   REVOICE_LOGGING_LEVEL, REVOICE_LOGGING_FORMAT")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
