package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command flags to the configuration keys they override.
var flagKeys = map[string]string{
	"incremental":  "incremental",
	"watch":        "watch.enabled",
	"metrics-file": "metrics.file",
	"concurrency":  "bundle.concurrency",
	"target":       "bundle.target",
	"stability":    "watch.stability",
}

// bindFlags binds the local flags of cmd to their configuration keys. It
// runs when the command executes so that commands sharing a flag name do
// not overwrite each other's bindings.
func bindFlags(cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		if bindErr := viper.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag --%s: %w", f.Name, bindErr)
		}
	})
	return err
}

func addBuildFlags(flags *pflag.FlagSet) {
	flags.BoolP("incremental", "i", false, "skip files whose output is newer than the source")
	flags.String("metrics-file", "", "write Prometheus metrics to this file after the build")
	flags.Int("concurrency", 4, "maximum number of bundles built at once")
	flags.String("target", "es2015", "JavaScript language target for bundles")
}
