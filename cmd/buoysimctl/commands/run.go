package commands

import (
	"github.com/spf13/cobra"

	"github.com/kelpwave/buoysim/internal/app"
	"github.com/kelpwave/buoysim/internal/config"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a simulation to completion and write its CSV results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := app.NewLogger(cfg.Log)
			return app.Run(cmd.Context(), cfg, logger)
		},
	}
}
