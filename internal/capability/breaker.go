package capability

import (
	"context"
	"time"

	"github.com/autocoder/kernel/pkg/models"
	"github.com/sony/gobreaker"
)

// CircuitBreaker is the kernel's tier-50 opt-in capability: closed / open
// / half-open, counting failures rather than drops. It converts
// persistent transient failures into a fast-failing open state rather
// than letting every item pay the full retry cost.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker builds a CircuitBreaker from the
// circuit_breaker.failure_threshold and
// circuit_breaker.recovery_timeout_ms config knobs.
func NewCircuitBreaker(name string, failureThreshold uint32, recoveryTimeoutMs int) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		Timeout: time.Duration(recoveryTimeoutMs) * time.Millisecond,
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *CircuitBreaker) Name() string    { return "CircuitBreaker" }
func (b *CircuitBreaker) Tier() int       { return TierCircuitBreaker }
func (b *CircuitBreaker) Reentrant() bool { return false }

func (b *CircuitBreaker) BeforeProcess(ctx context.Context, pc *ProcessContext, msg models.Message) error {
	return nil
}

func (b *CircuitBreaker) AroundProcess(ctx context.Context, pc *ProcessContext, msg models.Message, next Hook) (models.Message, bool, error) {
	type result struct {
		out     models.Message
		dropped bool
	}
	r, err := b.cb.Execute(func() (any, error) {
		out, dropped, err := next(ctx, msg)
		if err != nil {
			return nil, err
		}
		return result{out: out, dropped: dropped}, nil
	})
	if err != nil {
		return models.Message{}, false, err
	}
	res := r.(result)
	return res.out, res.dropped, nil
}

func (b *CircuitBreaker) AfterProcess(ctx context.Context, pc *ProcessContext, in, out models.Message, dropped bool, err error) {
}

// State exposes the breaker's current state for observability/tests.
func (b *CircuitBreaker) State() gobreaker.State { return b.cb.State() }
