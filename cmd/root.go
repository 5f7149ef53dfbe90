// Package cmd provides the command-line interface for tsdist.
//
// Configuration is resolved by viper from, in order of precedence:
//
//  1. command-line flags (--incremental, --concurrency, ...)
//  2. TSDIST_* environment variables (TSDIST_BUNDLE_TARGET, TSDIST_INCREMENTAL, ...)
//  3. the configuration file: --config, else TSDIST_CONFIG_FILE, else .tsdist.yml
//  4. built-in defaults
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conneroisu/tsdist/internal/config"
	"github.com/conneroisu/tsdist/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tsdist",
	Short: "Compile TypeScript projects into distribution trees",
	Long: `tsdist compiles a project's source roots into distribution directories.

HTML files under client/ declare bundle entry points through
<script src="*.ts"> tags; every entry point is bundled with esbuild and the
script tags are rewritten to the bundle with a cache-busting suffix.
Files under server/ and src/ are compiled one by one. Everything else is
copied.

Quick Start:
  tsdist init --example     Create client/, server/, src/ and .tsdist.yml
  tsdist build              Compile every source root once
  tsdist build -i           Only rebuild what changed since the last build
  tsdist watch              Build, then keep rebuilding on changes`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tsdist.yml, can also use TSDIST_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points viper at the configuration file and the environment.
// A missing configuration file is not an error; defaults apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TSDIST_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tsdist")
	}

	viper.SetEnvPrefix("TSDIST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig resolves the configuration after binding the flags of cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := bindFlags(cmd); err != nil {
		return nil, err
	}
	return config.Load()
}

func newLogger(cfg *config.Config, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    out,
		Component: "tsdist",
	}), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
