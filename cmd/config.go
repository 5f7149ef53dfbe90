package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/conneroisu/tsdist/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the resolved configuration",
	Long: `Inspect the configuration tsdist resolves from flags, TSDIST_* environment
variables, the configuration file and built-in defaults.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

var configFormat string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "output format (yaml, json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return err
	}

	var out []byte
	switch configFormat {
	case "yaml", "yml":
		out, err = yaml.Marshal(cfg)
	case "json":
		out, err = json.MarshalIndent(cfg, "", "  ")
		out = append(out, '\n')
	default:
		return fmt.Errorf("unknown format %q (use yaml or json)", configFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	result := config.ValidateConfigWithDetails(cfg)
	if result.HasErrors() || result.HasWarnings() {
		fmt.Fprint(out, result.String())
	}
	if result.HasErrors() {
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors))
	}

	fmt.Fprintln(out, "Configuration is valid")
	return nil
}
