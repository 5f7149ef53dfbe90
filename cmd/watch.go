package cmd

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Compile every source root and rebuild on changes",
	Long: `Build once, then keep the distribution directories current: bundles are
rebuilt when their inputs change and every added or changed file is
compiled or copied again. Stop with Ctrl+C.

Equivalent to "tsdist build --watch".`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addBuildFlags(watchCmd.Flags())
	watchCmd.Flags().Duration("stability", 0, "quiet period before a changed file is rebuilt (default from config, 50ms)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Watch.Enabled = true
	return executeBuild(cmd, cfg)
}
