package cmd

import (
	"fmt"

	"github.com/conneroisu/tsdist/internal/services"
	"github.com/spf13/cobra"
)

var (
	initExample bool
	initForce   bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Create the source roots and a configuration file",
	Long: `Create client/, server/ and src/ together with a .tsdist.yml holding the
default settings.

Examples:
  tsdist init               # Initialize the current directory
  tsdist init my-app        # Initialize ./my-app
  tsdist init --example     # Include a sample page and entry point`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initExample, "example", false, "add a sample page with a TypeScript entry point")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	svc := services.NewInitService()
	if err := svc.InitProject(services.InitOptions{
		ProjectDir: dir,
		Example:    initExample,
		Force:      initForce,
	}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized tsdist project in %s\n", dir)
	return nil
}
