package capability

import (
	"context"
	"time"

	"github.com/autocoder/kernel/internal/telemetry"
	"github.com/autocoder/kernel/pkg/models"
)

// MetricsCollector is the kernel's tier-90 capability: the outermost
// wrapper, so it observes total per-item latency including every inner
// capability. It records counters, processing latency, and message-age
// observations. MetricsCollector failures must never abort
// processing — every method here is infallible by construction.
type MetricsCollector struct {
	reg       *telemetry.Registry
	component string
	port      string

	start time.Time
}

// NewMetricsCollector binds a MetricsCollector to one component/port pair
// in the given registry.
func NewMetricsCollector(reg *telemetry.Registry, component, port string) *MetricsCollector {
	return &MetricsCollector{reg: reg, component: component, port: port}
}

func (m *MetricsCollector) Name() string    { return "MetricsCollector" }
func (m *MetricsCollector) Tier() int       { return TierMetricsCollector }
func (m *MetricsCollector) Reentrant() bool { return false }

func (m *MetricsCollector) BeforeProcess(ctx context.Context, pc *ProcessContext, msg models.Message) error {
	m.reg.MessagesIn.WithLabelValues(m.component, m.port).Inc()
	if msg.EventTime != nil {
		ageMs := float64(time.Since(*msg.EventTime).Milliseconds())
		if ageMs >= 0 {
			m.reg.MessageAgeMs.WithLabelValues(m.component, m.port).Observe(ageMs)
		}
	}
	return nil
}

func (m *MetricsCollector) AroundProcess(ctx context.Context, pc *ProcessContext, msg models.Message, next Hook) (models.Message, bool, error) {
	start := time.Now()
	out, dropped, err := next(ctx, msg)
	m.reg.ProcessLatencyMs.WithLabelValues(m.component).Observe(float64(time.Since(start).Milliseconds()))
	return out, dropped, err
}

func (m *MetricsCollector) AfterProcess(ctx context.Context, pc *ProcessContext, in, out models.Message, dropped bool, err error) {
	switch {
	case err != nil:
		m.reg.Errors.WithLabelValues(m.component, m.port).Inc()
	case dropped:
		// A policy drop (channel overflow) is already counted in the
		// channel's own statistics, which the harness observer feeds
		// into messages_dropped_total; counting it here too would
		// double it. Hook-level drops never touch a channel counter,
		// so they are counted per item.
		if !pc.PolicyDrop {
			m.reg.MessagesDropped.WithLabelValues(m.component, m.port).Inc()
		}
	default:
		m.reg.MessagesOut.WithLabelValues(m.component, m.port).Inc()
	}
}
