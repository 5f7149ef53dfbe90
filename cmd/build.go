package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/tsdist/internal/config"
	"github.com/conneroisu/tsdist/internal/metrics"
	"github.com/conneroisu/tsdist/internal/services"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Compile every source root",
	Long: `Compile the configured source roots (client/, server/ and src/ by default)
into their distribution directories.

Examples:
  tsdist build                          # Compile everything
  tsdist build --incremental            # Skip unchanged files
  tsdist build --watch                  # Keep rebuilding on changes
  tsdist build --metrics-file out.prom  # Write build metrics`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	addBuildFlags(buildCmd.Flags())
	buildCmd.Flags().BoolP("watch", "w", false, "keep watching for changes after the build")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return executeBuild(cmd, cfg)
}

func executeBuild(cmd *cobra.Command, cfg *config.Config) error {
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := services.NewBuildService(cfg, logger, cmd.OutOrStdout())
	var reg *prom.Registry
	if cfg.Metrics.File != "" {
		reg = prom.NewRegistry()
		svc.WithRecorder(metrics.NewPrometheusRecorder(reg))
	}
	defer func() {
		if reg == nil {
			return
		}
		if err := metrics.WriteTextfile(cfg.Metrics.File, reg); err != nil {
			logger.Error(ctx, err, "Failed to write metrics")
		}
	}()

	_, err = svc.Build(ctx, services.BuildOptions{
		Incremental: cfg.Incremental,
		Watch:       cfg.Watch.Enabled,
	})
	if err != nil {
		_ = svc.Close()
		return fmt.Errorf("build failed: %w", err)
	}

	if cfg.Watch.Enabled {
		return svc.Wait(ctx)
	}
	return nil
}
