package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Registry is the process-wide metrics surface. It is a thin
// wrapper around Prometheus vector metrics, keyed by component and port,
// exposing the runtime's counters/gauges/summaries under their
// published names so a scrape target can be stood up with zero
// translation.
//
// Updates are lock-free counters/gauges; registration of per-label
// child metrics is guarded inside the client library, never on the hot
// increment path.
type Registry struct {
	MessagesIn      *prometheus.CounterVec
	MessagesOut     *prometheus.CounterVec
	MessagesDropped *prometheus.CounterVec
	Errors          *prometheus.CounterVec
	Ingress503      *prometheus.CounterVec

	QueueDepth        *prometheus.GaugeVec
	BufferUtilization *prometheus.GaugeVec
	BlockedDurationMs *prometheus.GaugeVec

	ProcessLatencyMs *prometheus.SummaryVec
	MessageAgeMs     *prometheus.SummaryVec

	RoleFlips             *prometheus.CounterVec
	ReconciliationEdges   prometheus.Counter
	ReconciliationSources prometheus.Counter
	ValidationPassRate    prometheus.Gauge

	reg *prometheus.Registry
}

// NewRegistry builds and registers the full kernel metrics surface on a
// fresh Prometheus registry. Safe to call once per process; component
// tests should build their own Registry rather than share the global
// default.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.MessagesIn = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_in_total", Help: "Messages received on an IN port.",
	}, []string{"component", "port"})
	r.MessagesOut = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_out_total", Help: "Messages sent on an OUT port.",
	}, []string{"component", "port"})
	r.MessagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_dropped_total", Help: "Messages dropped by overflow policy or primitive drop.",
	}, []string{"component", "port"})
	r.Errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total", Help: "Contract/transient/persistent errors.",
	}, []string{"component", "port"})
	r.Ingress503 = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_503_total", Help: "APIEndpoint ingress rejections under backpressure.",
	}, []string{"component"})

	r.QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_depth", Help: "Current channel depth.",
	}, []string{"component", "port"})
	r.BufferUtilization = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "buffer_utilization", Help: "depth/capacity, 0..1.",
	}, []string{"component", "port"})
	r.BlockedDurationMs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blocked_duration_ms", Help: "Cumulative producer/consumer block time.",
	}, []string{"component", "port"})

	r.ProcessLatencyMs = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "process_latency_ms", Help: "Per-item processing latency.",
	}, []string{"component"})
	r.MessageAgeMs = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "message_age_ms", Help: "now - event_time, when event_time is present.",
	}, []string{"component", "port"})

	r.RoleFlips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "role_flips_total", Help: "Declared vs effective role mismatches.",
	}, []string{"declared", "effective"})
	r.ReconciliationEdges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_edges_added_total", Help: "Edges added by the healer's reconciliation pass.",
	})
	r.ReconciliationSources = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_sources_fixed_total", Help: "Sources made reachable to a sink by reconciliation.",
	})
	r.ValidationPassRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "validation_pass_rate", Help: "Fraction of validation runs that pass with no hard lints.",
	})

	r.reg.MustRegister(
		r.MessagesIn, r.MessagesOut, r.MessagesDropped, r.Errors, r.Ingress503,
		r.QueueDepth, r.BufferUtilization, r.BlockedDurationMs,
		r.ProcessLatencyMs, r.MessageAgeMs,
		r.RoleFlips, r.ReconciliationEdges, r.ReconciliationSources, r.ValidationPassRate,
	)
	return r
}

// Gatherer exposes the underlying Prometheus registry for an HTTP
// /metrics handler (e.g. promhttp.HandlerFor(reg.Gatherer(), ...)).
func (r *Registry) Gatherer() *prometheus.Registry { return r.reg }
