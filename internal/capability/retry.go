package capability

import (
	"context"
	"time"

	"github.com/autocoder/kernel/pkg/models"
	"github.com/cenkalti/backoff/v4"
)

// RetryHandler is the kernel's tier-40 opt-in capability: exponential
// backoff with jitter around transient failures. It is the
// one capability annotated re-entrant — it may re-invoke the processing
// chain up to MaxReentryDepth.
type RetryHandler struct {
	MaxAttempts    int
	InitialDelayMs int
	MaxDelayMs     int
}

// NewRetryHandler builds a RetryHandler from the retry.max_attempts,
// retry.initial_delay_ms, and retry.max_delay_ms config knobs.
func NewRetryHandler(maxAttempts, initialDelayMs, maxDelayMs int) *RetryHandler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if initialDelayMs <= 0 {
		initialDelayMs = 100
	}
	if maxDelayMs <= 0 {
		maxDelayMs = 5000
	}
	return &RetryHandler{MaxAttempts: maxAttempts, InitialDelayMs: initialDelayMs, MaxDelayMs: maxDelayMs}
}

func (r *RetryHandler) Name() string    { return "RetryHandler" }
func (r *RetryHandler) Tier() int       { return TierRetry }
func (r *RetryHandler) Reentrant() bool { return true }

func (r *RetryHandler) BeforeProcess(ctx context.Context, pc *ProcessContext, msg models.Message) error {
	return nil
}

// AroundProcess retries `next` on error using exponential backoff with
// jitter. Only the final failure after MaxAttempts is returned — and
// therefore only the final failure increments errors_total upstream in
// MetricsCollector.
func (r *RetryHandler) AroundProcess(ctx context.Context, pc *ProcessContext, msg models.Message, next Hook) (models.Message, bool, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(r.InitialDelayMs) * time.Millisecond
	policy.MaxInterval = time.Duration(r.MaxDelayMs) * time.Millisecond
	policy.MaxElapsedTime = 0 // bounded by MaxAttempts below, not wall-clock

	bo := backoff.WithMaxRetries(policy, uint64(r.MaxAttempts-1))
	bo = backoff.WithContext(bo, ctx)

	var out models.Message
	var dropped bool

	err := backoff.Retry(func() error {
		pc.Depth++
		defer func() { pc.Depth-- }()
		pc.Attempt++

		var innerErr error
		out, dropped, innerErr = next(ctx, msg)
		return innerErr
	}, bo)

	return out, dropped, err
}

func (r *RetryHandler) AfterProcess(ctx context.Context, pc *ProcessContext, in, out models.Message, dropped bool, err error) {
}
