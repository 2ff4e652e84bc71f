package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kelpwave/buoysim/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Simulation.Mode != "static" {
		t.Errorf("Simulation.Mode = %q, want %q", cfg.Simulation.Mode, "static")
	}
	if cfg.Network.RangeHigh != 70 {
		t.Errorf("Network.RangeHigh = %v, want 70", cfg.Network.RangeHigh)
	}
	if cfg.Network.RangeMax != 120 {
		t.Errorf("Network.RangeMax = %v, want 120", cfg.Network.RangeMax)
	}
	if cfg.Network.DeliveryProbHigh != 0.9 {
		t.Errorf("Network.DeliveryProbHigh = %v, want 0.9", cfg.Network.DeliveryProbHigh)
	}
	if cfg.Network.DeliveryProbLow != 0.15 {
		t.Errorf("Network.DeliveryProbLow = %v, want 0.15", cfg.Network.DeliveryProbLow)
	}
	if cfg.Scheduler.StaticInterval != 1*time.Second {
		t.Errorf("Scheduler.StaticInterval = %v, want 1s", cfg.Scheduler.StaticInterval)
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestNeighborTimeoutIsThreeTimesStaticInterval(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Scheduler.StaticInterval = 2 * time.Second

	want := 6 * time.Second
	if got := cfg.Scheduler.NeighborTimeout(); got != want {
		t.Errorf("NeighborTimeout() = %v, want %v", got, want)
	}
}

func TestNeighborTimeoutFallback(t *testing.T) {
	t.Parallel()

	var sc config.SchedulerConfig
	if got := sc.NeighborTimeout(); got != 5*time.Second {
		t.Errorf("NeighborTimeout() fallback = %v, want 5s", got)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
simulation:
  mode: "adab"
  duration: 120
  seed: 42
world:
  width: 500
  height: 500
log:
  level: "debug"
  format: "json"
`
	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Simulation.Mode != "adab" {
		t.Errorf("Simulation.Mode = %q, want %q", cfg.Simulation.Mode, "adab")
	}
	if cfg.Simulation.Duration != 120 {
		t.Errorf("Simulation.Duration = %v, want 120", cfg.Simulation.Duration)
	}
	if cfg.Simulation.Seed != 42 {
		t.Errorf("Simulation.Seed = %v, want 42", cfg.Simulation.Seed)
	}
	if cfg.World.Width != 500 {
		t.Errorf("World.Width = %v, want 500", cfg.World.Width)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	// Values not overridden should inherit defaults.
	if cfg.Network.RangeHigh != 70 {
		t.Errorf("Network.RangeHigh = %v, want default 70", cfg.Network.RangeHigh)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name:    "unknown mode",
			modify:  func(cfg *config.Config) { cfg.Simulation.Mode = "bogus" },
			wantErr: config.ErrUnknownMode,
		},
		{
			name:    "zero duration",
			modify:  func(cfg *config.Config) { cfg.Simulation.Duration = 0 },
			wantErr: config.ErrInvalidDuration,
		},
		{
			name:    "zero world width",
			modify:  func(cfg *config.Config) { cfg.World.Width = 0 },
			wantErr: config.ErrInvalidWorldDims,
		},
		{
			name: "no buoys at all",
			modify: func(cfg *config.Config) {
				cfg.Buoys.MobileCount = 0
				cfg.Buoys.FixedCount = 0
			},
			wantErr: config.ErrInvalidBuoyCounts,
		},
		{
			name:    "range high exceeds range max",
			modify:  func(cfg *config.Config) { cfg.Network.RangeHigh = 200 },
			wantErr: config.ErrInvalidRangeOrdering,
		},
		{
			name:    "delivery probability out of range",
			modify:  func(cfg *config.Config) { cfg.Network.DeliveryProbHigh = 1.5 },
			wantErr: config.ErrInvalidDeliveryProb,
		},
		{
			name:    "invalid multihop mode",
			modify:  func(cfg *config.Config) { cfg.Simulation.MultihopMode = "forwarded" },
			wantErr: config.ErrInvalidMultihopMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadBootstrapsMissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file to not exist yet")
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if cfg.Simulation.Mode != "static" {
		t.Errorf("bootstrapped config mode = %q, want default %q", cfg.Simulation.Mode, "static")
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to be written at %q: %v", path, err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Cannot run in parallel: mutates process-wide environment state.
	t.Setenv("BUOYSIM_SIMULATION_SEED", "7")
	t.Setenv("BUOYSIM_LOG_LEVEL", "warn")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}

	if cfg.Simulation.Seed != 7 {
		t.Errorf("Simulation.Seed = %v, want 7 (from env)", cfg.Simulation.Seed)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "warn")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "buoysim.yaml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
