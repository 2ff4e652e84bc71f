// buoysim runs a single discrete-event simulation of a wireless buoy
// beacon-exchange network and writes its CSV metrics on completion.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/kelpwave/buoysim/internal/app"
	"github.com/kelpwave/buoysim/internal/config"
	appversion "github.com/kelpwave/buoysim/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.String("config", "", "path to configuration file (YAML)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logger := app.NewLogger(cfg.Log)
	logger.Info("buoysim starting",
		slog.String("version", appversion.Version),
		slog.String("mode", cfg.Simulation.Mode),
		slog.Float64("duration", cfg.Simulation.Duration),
		slog.Bool("ramp", cfg.Simulation.Ramp),
	)

	if err := app.Run(context.Background(), cfg, logger); err != nil {
		logger.Error("buoysim exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("buoysim stopped")
	return 0
}
