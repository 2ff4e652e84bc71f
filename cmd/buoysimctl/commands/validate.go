package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kelpwave/buoysim/internal/config"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration without running a simulation",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			fmt.Printf("mode:            %s\n", cfg.Simulation.Mode)
			fmt.Printf("duration:        %gs\n", cfg.Simulation.Duration)
			fmt.Printf("world:           %gx%g\n", cfg.World.Width, cfg.World.Height)
			fmt.Printf("buoys:           %d mobile, %d fixed\n", cfg.Buoys.MobileCount, cfg.Buoys.FixedCount)
			fmt.Printf("ramp:            %t\n", cfg.Simulation.Ramp)
			fmt.Printf("ideal:           %t\n", cfg.Simulation.Ideal)
			fmt.Printf("neighbor_ttl:    %s\n", cfg.Scheduler.NeighborTimeout())
			fmt.Println("configuration is valid")
			return nil
		},
	}
}
