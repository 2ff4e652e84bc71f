package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/kelpwave/buoysim/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print buoysimctl build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Print(appversion.Full("buoysimctl") + "\n")
		},
	}
}
