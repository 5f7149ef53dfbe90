package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/conneroisu/tsdist/internal/version"
	"github.com/spf13/cobra"
)

var (
	versionFormat   string
	versionShort    bool
	versionDetailed bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for tsdist.

Examples:
  tsdist version                # Show version and commit
  tsdist version --detailed     # Show every build field
  tsdist version --format json  # Output as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show the version number only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.Get()
	out := cmd.OutOrStdout()

	switch versionFormat {
	case "json":
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case "text":
		switch {
		case versionShort:
			fmt.Fprintln(out, info.Version)
		case versionDetailed:
			fmt.Fprintln(out, info.Detailed())
		default:
			fmt.Fprintf(out, "tsdist %s\n", info.Short())
		}
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}
	return nil
}
