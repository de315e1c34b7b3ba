package cmd

import (
	"fmt"

	"spindle/core/config"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configGenerateCmd)

	configGenerateCmd.Flags().StringP("output", "o", "config.yaml", "File to write the generated configuration to")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%d workers).\n", len(cfg.Workers))
		return nil
	},
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a configuration file with every default spelled out",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		cfg := config.GenerateDefaultConfig()
		if err := config.SaveGeneratedConfig(cfg, output); err != nil {
			return fmt.Errorf("failed to save generated config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s.\n", output)
		return nil
	},
}
