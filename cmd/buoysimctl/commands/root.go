package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the shared --config flag read by every subcommand that
// needs a configuration, bound once on the persistent flag set.
var configPath string

// rootCmd is the top-level cobra command for buoysimctl.
var rootCmd = &cobra.Command{
	Use:   "buoysimctl",
	Short: "Operator CLI for running and inspecting buoysim simulations",
	Long:  "buoysimctl runs buoy beacon-exchange simulations and validates their configuration.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
