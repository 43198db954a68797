package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opendataloader-project/beneissue/internal/config"
)

var configFile string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Check and print the beneissue configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report problems in the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cmd.Printf("Source: %s\n", configSource())

		errs := config.Validate(cfg)
		if len(errs) > 0 {
			cmd.Println("Validation errors:")
			for _, e := range errs {
				cmd.Printf("  - %s\n", e)
			}
			return fmt.Errorf("config has %d validation error(s)", len(errs))
		}
		cmd.Println("Configuration is valid.")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (file, defaults and environment)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		return enc.Close()
	},
}

// loadConfig reads --file when given, otherwise the config under the
// project root (defaults when it does not exist).
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault(projectRoot)
}

// configSource names where loadConfig read from.
func configSource() string {
	if configFile != "" {
		return configFile
	}
	path := config.Path(projectRoot)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "built-in defaults"
	}
	return path
}

func init() {
	configCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "", "path to beneissue-config.yml")
	configCmd.AddCommand(configValidateCmd, configShowCmd)
}
