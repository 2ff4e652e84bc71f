// Package config manages buoysim configuration using koanf/v2.
//
// Supports YAML files and environment variables, layered in that order of
// increasing priority on top of compiled-in defaults. No command-line flag
// layer is merged here; the binaries' only flag is the config file path.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete buoysim run configuration.
type Config struct {
	Simulation SimulationConfig `koanf:"simulation"`
	World      WorldConfig      `koanf:"world"`
	Buoys      BuoysConfig      `koanf:"buoys"`
	Network    NetworkConfig    `koanf:"network"`
	CSMA       CSMAConfig       `koanf:"csma"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Output     OutputConfig     `koanf:"output"`
	Log        LogConfig        `koanf:"log"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// SimulationConfig holds top-level run parameters.
type SimulationConfig struct {
	// Mode selects the scheduling policy under test: "static", "adab", or "acab".
	Mode string `koanf:"mode"`
	// Duration is the simulated run length, in seconds.
	Duration float64 `koanf:"duration"`
	// Seed seeds the single deterministic RNG stream the whole run draws from.
	Seed uint64 `koanf:"seed"`
	// Ideal disables probabilistic loss (every in-range delivery draw
	// succeeds). Collisions are still counted, and a reception-time
	// collision still drops the delivery.
	Ideal bool `koanf:"ideal"`
	// Ramp selects ramp-mode population growth instead of random churn.
	Ramp bool `koanf:"ramp"`
	// MultihopMode is parsed and validated but only "none" has handler
	// logic; "append" is accepted as a recorded no-op, per the original
	// implementation's still-exposed but unimplemented forwarding mode.
	MultihopMode string `koanf:"multihop_mode"`
}

// WorldConfig describes the simulated world's extent.
type WorldConfig struct {
	Width  float64 `koanf:"width"`
	Height float64 `koanf:"height"`
}

// BuoysConfig describes the initial buoy population.
type BuoysConfig struct {
	MobileCount    int     `koanf:"mobile_count"`
	FixedCount     int     `koanf:"fixed_count"`
	DefaultVelocity float64 `koanf:"default_velocity"`
}

// NetworkConfig describes the physical radio/channel model.
type NetworkConfig struct {
	BitRate          float64 `koanf:"bit_rate"`
	SpeedOfLight     float64 `koanf:"speed_of_light"`
	RangeHigh        float64 `koanf:"range_high"`
	RangeMax         float64 `koanf:"range_max"`
	DeliveryProbHigh float64 `koanf:"delivery_prob_high"`
	DeliveryProbLow  float64 `koanf:"delivery_prob_low"`
	GracePeriod      float64 `koanf:"grace_period"`
}

// CSMAConfig describes the medium-access timing parameters.
type CSMAConfig struct {
	DIFS       time.Duration `koanf:"difs"`
	BackoffMin time.Duration `koanf:"backoff_min"`
	BackoffMax time.Duration `koanf:"backoff_max"`
}

// SchedulerConfig describes the beacon-interval scheduling parameters.
type SchedulerConfig struct {
	StaticInterval time.Duration `koanf:"static_interval"`
	BIMin          time.Duration `koanf:"bi_min"`
	BIMax          time.Duration `koanf:"bi_max"`
	// Density is recorded in the summary's "Density" row when positive;
	// the scheduling policies do not read it.
	Density float64 `koanf:"density"`
}

// NeighborTimeout returns the neighbor-table eviction age: 3x the static
// interval, mirroring the config-handler-derived rule the original
// implementation uses whenever a config layer (as opposed to a bare
// constants module) is present.
func (s SchedulerConfig) NeighborTimeout() time.Duration {
	if s.StaticInterval <= 0 {
		return 5 * time.Second
	}
	return 3 * s.StaticInterval
}

// OutputConfig describes where results are written.
type OutputConfig struct {
	ResultFile     string `koanf:"result_file"`
	TimeseriesFile string `koanf:"timeseries_file"`
	PositionsFile  string `koanf:"positions_file"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	Path    string `koanf:"path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the same default physical
// constants as the original implementation's constants module.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Mode:         "static",
			Duration:     600,
			Seed:         1,
			Ideal:        false,
			Ramp:         false,
			MultihopMode: "none",
		},
		World: WorldConfig{Width: 1000, Height: 1000},
		Buoys: BuoysConfig{
			MobileCount:     10,
			FixedCount:      2,
			DefaultVelocity: 1.5,
		},
		Network: NetworkConfig{
			BitRate:          1_000_000,
			SpeedOfLight:     3e8,
			RangeHigh:        70,
			RangeMax:         120,
			DeliveryProbHigh: 0.9,
			DeliveryProbLow:  0.15,
			GracePeriod:      2,
		},
		CSMA: CSMAConfig{
			DIFS:       50 * time.Microsecond,
			BackoffMin: 1 * time.Millisecond,
			BackoffMax: 16 * time.Millisecond,
		},
		Scheduler: SchedulerConfig{
			StaticInterval: 1 * time.Second,
			BIMin:          200 * time.Millisecond,
			BIMax:          5 * time.Second,
			Density:        0.5,
		},
		Output: OutputConfig{
			ResultFile: "",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for buoysim configuration.
// Variables are named BUOYSIM_<section>_<key>, e.g. BUOYSIM_SIMULATION_SEED.
const envPrefix = "BUOYSIM_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (BUOYSIM_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// If path is non-empty and no file exists there, Load writes the compiled
// defaults to that path before continuing — mirroring the original
// implementation's "bootstrap a config file on first run" behavior — so a
// fresh checkout is runnable with zero setup. Callers that pass an empty
// path skip this side effect entirely (for library use and tests).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := bootstrapIfMissing(path, defaults); err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func bootstrapIfMissing(path string, defaults *Config) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config path %s: %w", path, err)
	}

	k := koanf.New(".")
	if err := loadDefaults(k, defaults); err != nil {
		return fmt.Errorf("prepare default config for bootstrap: %w", err)
	}
	data, err := k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config to %s: %w", path, err)
	}
	return nil
}

// envKeyMapper transforms BUOYSIM_SIMULATION_SEED -> simulation.seed.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	// Only the first underscore separates section from key; keys such as
	// mobile_count keep their own underscores.
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"simulation.mode":          defaults.Simulation.Mode,
		"simulation.duration":      defaults.Simulation.Duration,
		"simulation.seed":          defaults.Simulation.Seed,
		"simulation.ideal":         defaults.Simulation.Ideal,
		"simulation.ramp":          defaults.Simulation.Ramp,
		"simulation.multihop_mode": defaults.Simulation.MultihopMode,

		"world.width":  defaults.World.Width,
		"world.height": defaults.World.Height,

		"buoys.mobile_count":     defaults.Buoys.MobileCount,
		"buoys.fixed_count":      defaults.Buoys.FixedCount,
		"buoys.default_velocity": defaults.Buoys.DefaultVelocity,

		"network.bit_rate":           defaults.Network.BitRate,
		"network.speed_of_light":     defaults.Network.SpeedOfLight,
		"network.range_high":         defaults.Network.RangeHigh,
		"network.range_max":          defaults.Network.RangeMax,
		"network.delivery_prob_high": defaults.Network.DeliveryProbHigh,
		"network.delivery_prob_low":  defaults.Network.DeliveryProbLow,
		"network.grace_period":       defaults.Network.GracePeriod,

		"csma.difs":        defaults.CSMA.DIFS.String(),
		"csma.backoff_min": defaults.CSMA.BackoffMin.String(),
		"csma.backoff_max": defaults.CSMA.BackoffMax.String(),

		"scheduler.static_interval": defaults.Scheduler.StaticInterval.String(),
		"scheduler.bi_min":         defaults.Scheduler.BIMin.String(),
		"scheduler.bi_max":         defaults.Scheduler.BIMax.String(),
		"scheduler.density":        defaults.Scheduler.Density,

		"output.result_file":     defaults.Output.ResultFile,
		"output.timeseries_file": defaults.Output.TimeseriesFile,
		"output.positions_file":  defaults.Output.PositionsFile,

		"log.level":  defaults.Log.Level,
		"log.format": defaults.Log.Format,

		"metrics.enabled": defaults.Metrics.Enabled,
		"metrics.addr":    defaults.Metrics.Addr,
		"metrics.path":    defaults.Metrics.Path,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	ErrUnknownMode               = errors.New("simulation.mode must be one of static, adab, acab")
	ErrInvalidDuration           = errors.New("simulation.duration must be > 0")
	ErrInvalidWorldDims          = errors.New("world.width and world.height must be > 0")
	ErrInvalidBuoyCounts         = errors.New("buoys.mobile_count + buoys.fixed_count must be >= 1")
	ErrInvalidRangeOrdering      = errors.New("network.range_high must be <= network.range_max")
	ErrInvalidDeliveryProb       = errors.New("delivery probabilities must be within [0,1]")
	ErrInvalidMultihopMode       = errors.New("simulation.multihop_mode must be none or append")
	ErrPositionsFileUnreadable   = errors.New("positions_file could not be read")
	ErrInvalidOptionCombination  = errors.New("invalid combination of configuration options")
)

// ValidModes lists the recognized scheduling policy mode strings.
var ValidModes = map[string]bool{"static": true, "adab": true, "acab": true}

// ValidMultihopModes lists the recognized multihop_mode strings.
var ValidMultihopModes = map[string]bool{"none": true, "append": true}

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if !ValidModes[cfg.Simulation.Mode] {
		return fmt.Errorf("%q: %w", cfg.Simulation.Mode, ErrUnknownMode)
	}
	if cfg.Simulation.Duration <= 0 {
		return ErrInvalidDuration
	}
	if cfg.World.Width <= 0 || cfg.World.Height <= 0 {
		return ErrInvalidWorldDims
	}
	if cfg.Buoys.MobileCount+cfg.Buoys.FixedCount < 1 {
		return ErrInvalidBuoyCounts
	}
	if cfg.Network.RangeHigh > cfg.Network.RangeMax {
		return ErrInvalidRangeOrdering
	}
	if cfg.Network.DeliveryProbHigh < 0 || cfg.Network.DeliveryProbHigh > 1 ||
		cfg.Network.DeliveryProbLow < 0 || cfg.Network.DeliveryProbLow > 1 {
		return ErrInvalidDeliveryProb
	}
	if !ValidMultihopModes[cfg.Simulation.MultihopMode] {
		return fmt.Errorf("%q: %w", cfg.Simulation.MultihopMode, ErrInvalidMultihopMode)
	}
	if cfg.Simulation.Ramp && cfg.Output.TimeseriesFile == "" && cfg.Output.ResultFile == "" {
		return fmt.Errorf("ramp mode requires a timeseries or result file: %w", ErrInvalidOptionCombination)
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
