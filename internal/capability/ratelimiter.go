package capability

import (
	"context"
	"errors"
	"time"

	"github.com/autocoder/kernel/pkg/models"
	"golang.org/x/time/rate"
)

// RateLimiter is the kernel's tier-20 capability: one token bucket per
// component chain, shared by all of that component's ports; there is no
// separate bucket per port. Exhaustion is never an error — it suspends the
// caller (BLOCK) or bounds the suspension (timeout), converting to
// backpressure at the ingress boundary rather than incrementing
// errors_total.
type RateLimiter struct {
	limiter   *rate.Limiter
	timeoutMs int // 0 means block without bound
}

// NewRateLimiter builds a token bucket with the given sustained rate
// (events/sec) and burst size.
// timeoutMs bounds token acquisition; 0 blocks indefinitely.
func NewRateLimiter(ratePerSec float64, burst int, timeoutMs int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), burst),
		timeoutMs: timeoutMs,
	}
}

func (r *RateLimiter) Name() string    { return "RateLimiter" }
func (r *RateLimiter) Tier() int       { return TierRateLimiter }
func (r *RateLimiter) Reentrant() bool { return false }

func (r *RateLimiter) BeforeProcess(ctx context.Context, pc *ProcessContext, msg models.Message) error {
	waitCtx := ctx
	var cancel context.CancelFunc
	if r.timeoutMs > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, time.Duration(r.timeoutMs)*time.Millisecond)
		defer cancel()
	}
	if err := r.limiter.Wait(waitCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errIngressTimeout
		}
		return err
	}
	return nil
}

func (r *RateLimiter) AroundProcess(ctx context.Context, pc *ProcessContext, msg models.Message, next Hook) (models.Message, bool, error) {
	return next(ctx, msg)
}

func (r *RateLimiter) AfterProcess(ctx context.Context, pc *ProcessContext, in, out models.Message, dropped bool, err error) {
}

// errIngressTimeout is RateLimiter's own timeout signal. It is a distinct
// value from port.ErrIngressTimeout, with a different message, so a
// caller can tell a rate-limit timeout from a channel-level ingress
// timeout.
var errIngressTimeout = errors.New("rate limiter: token acquisition timed out")
