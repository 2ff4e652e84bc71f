package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kelpwave/buoysim/internal/app"
	"github.com/kelpwave/buoysim/internal/config"
	"github.com/kelpwave/buoysim/internal/metrics"
)

func TestWriteResultsWritesResultFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Output.ResultFile = filepath.Join(dir, "result.csv")

	m := metrics.New()
	m.RecordSent()

	if err := app.WriteResults(cfg, m); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	data, err := os.ReadFile(cfg.Output.ResultFile)
	if err != nil {
		t.Fatalf("read result file: %v", err)
	}
	if len(data) == 0 {
		t.Error("result file is empty")
	}
}

func TestWriteResultsDerivesDefaultFilenameWhenUnset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(wd)

	cfg := config.DefaultConfig()
	cfg.Output.ResultFile = ""
	cfg.Simulation.Mode = "acab"
	cfg.World.Width, cfg.World.Height = 500, 300
	cfg.Buoys.MobileCount, cfg.Buoys.FixedCount = 4, 1

	m := metrics.New()
	m.RecordSent()

	if err := app.WriteResults(cfg, m); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	want := filepath.Join(dir, "metrics", "test_results", "acab_500x300_mob4_fix1.csv")
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read derived result file %s: %v", want, err)
	}
	if len(data) == 0 {
		t.Error("result file is empty")
	}
}

func TestWriteResultsWritesTimeseriesFileInRampMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Simulation.Ramp = true
	cfg.Output.ResultFile = filepath.Join(dir, "result.csv")
	cfg.Output.TimeseriesFile = filepath.Join(dir, "timeseries.csv")

	m := metrics.New()
	m.SampleTimeseries(1.0, 3)

	if err := app.WriteResults(cfg, m); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	data, err := os.ReadFile(cfg.Output.TimeseriesFile)
	if err != nil {
		t.Fatalf("read timeseries file: %v", err)
	}
	if len(data) == 0 {
		t.Error("timeseries file is empty")
	}
}

func TestNewLoggerRespectsFormat(t *testing.T) {
	t.Parallel()

	logger := app.NewLogger(config.LogConfig{Level: "debug", Format: "json"})
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}
}

// TestRunShutsDownMetricsServerCleanly confirms the ambient metrics HTTP
// server goroutine spawned around the CORE run exits with it, leaving no
// goroutines behind once Run returns.
func TestRunShutsDownMetricsServerCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Simulation.Duration = 2
	cfg.Buoys.MobileCount, cfg.Buoys.FixedCount = 3, 0
	cfg.Output.ResultFile = filepath.Join(dir, "result.csv")
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"

	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Run(ctx, cfg, logger); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
