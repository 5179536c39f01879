package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autocoder/kernel/internal/shell"
	"github.com/autocoder/kernel/internal/telemetry"
	"github.com/autocoder/kernel/pkg/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownGraceMs bounds how long the harness lets components
// drain after a shutdown signal before forcing cancellation
// (harness.shutdown_grace_ms).
const DefaultShutdownGraceMs = 30000

// DefaultStatsInterval is how often the harness pushes every port's
// channel statistics into the metrics registry.
const DefaultStatsInterval = time.Second

// Harness runs a set of wired components in topological order, propagates
// the first failure to every other component (fail-fast, the default
// policy), and drains a signaled run in two phases: Sources are stopped
// first so their closed OUT ports cascade end-of-stream downstream, and
// only after the grace period expires is the rest of the topology
// hard-cancelled.
type Harness struct {
	Components      map[string]*shell.Component
	Order           []string
	ShutdownGraceMs int
	Logger          zerolog.Logger

	// Metrics, when set, receives every out port's channel statistics
	// (queue depth, buffer utilization, blocked duration, policy-drop
	// deltas) on the StatsInterval cadence while the harness runs.
	Metrics       *telemetry.Registry
	StatsInterval time.Duration

	statsMu     sync.Mutex
	lastDropped map[string]uint64
}

// NewHarness builds a Harness over already-wired components in the given
// startup order (see TopoSort).
func NewHarness(components map[string]*shell.Component, order []string, logger zerolog.Logger) *Harness {
	return &Harness{
		Components:      components,
		Order:           order,
		ShutdownGraceMs: DefaultShutdownGraceMs,
		Logger:          logger,
		StatsInterval:   DefaultStatsInterval,
		lastDropped:     map[string]uint64{},
	}
}

// setup calls Setup on every component concurrently and waits for all to
// report ready, aborting the whole run if any one fails.
func (h *Harness) setup(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, name := range h.Order {
		c := h.Components[name]
		group.Go(func() error {
			if err := c.Setup(groupCtx); err != nil {
				h.Logger.Error().Err(err).Str("component", c.Name).Msg("component setup failed")
				return err
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("harness setup: %w", err)
	}
	return nil
}

// observeStats pushes every out port's channel statistics into the
// metrics registry: the queue_depth, buffer_utilization, and
// blocked_duration_ms gauges, plus the delta of policy-dropped messages
// since the previous observation folded into messages_dropped_total.
// Channel drops are counted here, and only here, so per-item and
// per-channel accounting never double.
func (h *Harness) observeStats() {
	if h.Metrics == nil {
		return
	}
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	for name, c := range h.Components {
		for portName, p := range c.Outputs {
			ch := p.Channel()
			if ch == nil {
				continue
			}
			stats := ch.Stats()
			h.Metrics.QueueDepth.WithLabelValues(name, portName).Set(float64(stats.Depth))
			h.Metrics.BufferUtilization.WithLabelValues(name, portName).Set(stats.BufferUtilization)
			h.Metrics.BlockedDurationMs.WithLabelValues(name, portName).Set(float64(stats.BlockedDurationMs))

			key := name + "." + portName
			if delta := stats.MessagesDropped - h.lastDropped[key]; delta > 0 {
				h.Metrics.MessagesDropped.WithLabelValues(name, portName).Add(float64(delta))
				h.lastDropped[key] = stats.MessagesDropped
			}
		}
	}
}

// Run calls Setup on every component, then starts every component in
// topological order and blocks until ctx is canceled or any component's
// Run returns a non-nil error, at which point every other component is
// canceled too (fail-fast propagation). Cleanup runs for every component
// once its Run returns, in all cases.
//
// Cancellation of ctx starts a graceful drain rather than an immediate
// stop: Sources are canceled first and their Cleanup closes their OUT
// ports, downstream components keep running until their inputs report
// end-of-stream with an empty queue, and Sinks finish whatever is
// already queued. Only if the drain outlives the grace period is the
// whole group hard-cancelled, and Run then returns a non-nil error.
func (h *Harness) Run(ctx context.Context) error {
	if err := h.setup(ctx); err != nil {
		return err
	}

	base, cancelAll := context.WithCancel(context.Background())
	defer cancelAll()
	group, groupCtx := errgroup.WithContext(base)
	sourceCtx, stopSources := context.WithCancel(groupCtx)
	defer stopSources()

	for _, name := range h.Order {
		c := h.Components[name]
		runCtx := groupCtx
		if c.Primitive == models.PrimitiveSource {
			runCtx = sourceCtx
		}
		group.Go(func() error {
			defer c.Cleanup()
			if err := c.Run(runCtx); err != nil {
				h.Logger.Error().Err(err).Str("component", c.Name).Msg("component exited with error")
				return err
			}
			return nil
		})
	}

	if h.Metrics != nil {
		observerStop := make(chan struct{})
		go func() {
			ticker := time.NewTicker(h.StatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-observerStop:
					return
				case <-ticker.C:
					h.observeStats()
				}
			}
		}()
		defer func() {
			close(observerStop)
			h.observeStats()
		}()
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	// Phase one of the drain: stop only the Sources. Each Source's
	// Cleanup closes its OUT ports, downstream components exit on
	// end-of-stream once their queues are empty, and the closure
	// cascades component by component down to the Sinks.
	stopSources()

	grace := time.Duration(h.ShutdownGraceMs) * time.Millisecond
	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		// Phase two: the drain outlived its budget; cancel everything
		// still running and report the forced stop.
		h.Logger.Warn().Dur("grace", grace).Msg("shutdown grace period elapsed, cancelling remaining components")
		cancelAll()
		<-done
		return fmt.Errorf("harness: forced cancel after %v drain grace: %w", grace, ctx.Err())
	}
}
