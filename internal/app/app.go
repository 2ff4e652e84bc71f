// Package app wires a loaded configuration into a running Simulator and
// its result output, shared by the buoysim daemon-style entrypoint and the
// buoysimctl operator CLI so neither has to duplicate the other's
// orchestration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kelpwave/buoysim/internal/config"
	"github.com/kelpwave/buoysim/internal/metrics"
	"github.com/kelpwave/buoysim/internal/sim"
)

// metricsShutdownTimeout is the maximum time to wait for the Prometheus
// HTTP server to drain active scrapes during shutdown.
const metricsShutdownTimeout = 5 * time.Second

// NewLogger builds the run's logger from its log configuration.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	level := config.ParseLogLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// Run builds a Simulator from cfg and drives it to completion, writing its
// CSV results on the way out. When cfg.Metrics.Enabled, a Prometheus
// endpoint runs alongside the simulation, coordinated through an errgroup
// under a signal-aware context so Ctrl-C/SIGTERM still produces a valid
// partial result instead of a bare kill.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	s, err := sim.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build simulator: %w", err)
	}

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		s.SetCollector(metrics.NewCollector(reg))
	}

	runErr := runWithMetricsServer(ctx, cfg, s, reg, logger)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	// A cancelled run (signal or caller) still writes its partial results
	// before the cancellation is reported.
	if err := WriteResults(cfg, s.Metrics()); err != nil {
		return err
	}
	return runErr
}

func runWithMetricsServer(ctx context.Context, cfg *config.Config, s *sim.Simulator, reg *prometheus.Registry, logger *slog.Logger) error {
	gCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, runCtx := errgroup.WithContext(gCtx)

	var metricsSrv *http.Server
	if reg != nil {
		metricsSrv = newMetricsServer(cfg.Metrics, reg)
		g.Go(func() error {
			logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			if metricsSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}
		}()
		return s.Run(runCtx)
	})

	return g.Wait()
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{Addr: cfg.Addr, Handler: mux}
}

// defaultResultFilesDir is where a derived result filename is written
// when cfg.Output.ResultFile is left empty, matching the original
// scheduler's export_metrics_to_csv default of metrics/test_results.
const defaultResultFilesDir = "metrics/test_results"

// defaultResultFile derives a result filename from the run's own
// parameters, the way export_metrics_to_csv does when called with no
// explicit filename: {mode}_{width}x{height}_mob{N}_fix{M}.csv under
// defaultResultFilesDir.
func defaultResultFile(cfg *config.Config) string {
	name := fmt.Sprintf("%s_%dx%d_mob%d_fix%d.csv",
		cfg.Simulation.Mode,
		int(cfg.World.Width), int(cfg.World.Height),
		cfg.Buoys.MobileCount, cfg.Buoys.FixedCount)
	return filepath.Join(defaultResultFilesDir, name)
}

// WriteResults writes m's summary (and, when configured, time-series) CSV
// to the paths named in cfg.Output. When no result file is configured, the
// summary's destination is derived from the run's own parameters rather
// than falling back to stdout, matching the original scheduler's habit of
// always producing a named CSV artifact.
func WriteResults(cfg *config.Config, m *metrics.Metrics) error {
	params := metrics.SummaryParams{
		SchedulerType: cfg.Simulation.Mode,
		MultihopMode:  cfg.Simulation.MultihopMode,
		WorldWidth:    cfg.World.Width,
		WorldHeight:   cfg.World.Height,
		MobileBuoys:   cfg.Buoys.MobileCount,
		FixedBuoys:    cfg.Buoys.FixedCount,
		Duration:      cfg.Simulation.Duration,
	}
	if cfg.Scheduler.Density > 0 {
		d := cfg.Scheduler.Density
		params.Density = &d
	}

	resultFile := cfg.Output.ResultFile
	if resultFile == "" {
		resultFile = defaultResultFile(cfg)
	}
	if err := os.MkdirAll(filepath.Dir(resultFile), 0o755); err != nil {
		return fmt.Errorf("create result directory: %w", err)
	}
	f, err := os.Create(resultFile)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	defer f.Close()
	if err := m.WriteSummary(f, params); err != nil {
		return fmt.Errorf("write result file: %w", err)
	}

	if cfg.Output.TimeseriesFile != "" {
		f, err := os.Create(cfg.Output.TimeseriesFile)
		if err != nil {
			return fmt.Errorf("create timeseries file: %w", err)
		}
		defer f.Close()
		if err := m.WriteTimeseries(f); err != nil {
			return fmt.Errorf("write timeseries file: %w", err)
		}
	}

	return nil
}
