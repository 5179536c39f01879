// cmd/kernel is the walking-skeleton demo harness: it loads a Blueprint,
// assembles it into a running topology, serves the Prometheus metrics
// surface, and drains cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/autocoder/kernel/internal/bodies"
	"github.com/autocoder/kernel/internal/config"
	"github.com/autocoder/kernel/internal/kernel"
	"github.com/autocoder/kernel/internal/recipe"
	"github.com/autocoder/kernel/internal/state"
	"github.com/autocoder/kernel/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	blueprintPath := envOr("KERNEL_BLUEPRINT", "blueprint.yaml")
	metricsAddr := envOr("KERNEL_METRICS_ADDR", ":9090")

	cfg := config.Load()

	shutdownTracing, err := telemetry.InitTracing(cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	metrics := telemetry.NewRegistry()

	adapter, err := openStateAdapter(cfg.State)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open state adapter")
	}
	if adapter != nil {
		defer adapter.Close()
	}

	counters := &businessCounters{metrics: metrics}

	assembled, err := kernel.Assemble(blueprintPath, recipe.NewRegistry(), adapter, counters, metrics, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble topology")
	}
	for _, role := range assembled.Roles {
		if !strings.EqualFold(role.DeclaredRole, string(role.EffectiveRole)) {
			log.Warn().Str("component", role.ComponentName).Str("declared", role.DeclaredRole).
				Str("effective", string(role.EffectiveRole)).Strs("reasons", role.Reasons).
				Msg("component's effective role differs from its declared primitive")
		}
	}

	assembled.Harness.ShutdownGraceMs = cfg.Harness.ShutdownGraceMs
	for _, comp := range assembled.Harness.Components {
		comp.FairnessWindow = cfg.Harness.MergerFairnessWindow
	}

	metricsServer := startMetricsServer(metricsAddr, metrics)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("blueprint", blueprintPath).Str("metrics_addr", metricsAddr).Msg("kernel starting")

	if err := assembled.Harness.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("kernel exited with error")
		os.Exit(1)
	}
	log.Info().Msg("kernel drained, exiting")
}

// startMetricsServer serves the Prometheus registry on /metrics in the
// background; a scrape failure never takes the topology down with it.
func startMetricsServer(addr string, metrics *telemetry.Registry) *http.Server {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

// openStateAdapter builds the configured StateAdapter. An unknown
// adapter name is a configuration error, not a silent fallback.
func openStateAdapter(cfg config.StateConfig) (state.Adapter, error) {
	switch cfg.Adapter {
	case "sqlite", "":
		return state.NewSQLiteAdapter(cfg.SQLite.Path)
	case "redis":
		return state.NewRedisAdapter(cfg.Redis.Addr, cfg.Redis.DB, ""), nil
	default:
		return nil, errUnknownAdapter(cfg.Adapter)
	}
}

type errUnknownAdapter string

func (e errUnknownAdapter) Error() string { return "unknown state adapter: " + string(e) }

// businessCounters is the default CounterSink for the MetricsCollector
// recipe body: it folds business counters into the same Prometheus
// registry the capability kernel uses. They are counted on the kernel's
// messages_out_total metric under a component label of "business:"+name
// and an empty port label, which keeps them apart from the per-item
// series of real components.
type businessCounters struct {
	metrics *telemetry.Registry
}

func (b *businessCounters) Inc(name string, fields map[string]any) {
	b.metrics.MessagesOut.WithLabelValues("business:"+name, "").Inc()
}

var _ bodies.CounterSink = (*businessCounters)(nil)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
