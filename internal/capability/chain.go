// Package capability implements the deterministic capability kernel:
// SchemaValidator, RateLimiter, and MetricsCollector always run, in
// that tier order, on every processed item; StateCapability,
// RetryHandler, and CircuitBreaker are opt-in and tier-ordered
// alongside them.
package capability

import (
	"context"
	"fmt"
	"sort"

	"github.com/autocoder/kernel/pkg/models"
)

// Kernel tiers — fixed points in the chain, never renumbered.
const (
	TierSchemaValidator  = 10
	TierRateLimiter      = 20
	TierState            = 30
	TierRetry            = 40
	TierCircuitBreaker   = 50
	TierMetricsCollector = 90
)

// MaxReentryDepth is the default maximum re-entry depth for capabilities
// annotated as re-entrant.
const MaxReentryDepth = 1

// ProcessContext carries per-item state through the capability chain.
type ProcessContext struct {
	Component string
	Port      string
	Depth     int
	Attempt   int

	// PolicyDrop marks an item discarded by the channel's overflow
	// policy rather than by the business-logic hook. Policy drops are
	// counted from channel statistics by the harness observer, so
	// MetricsCollector must not count them again per item.
	PolicyDrop bool
}

// Hook is the primitive's business-logic invocation, the innermost link
// of the around_process chain.
type Hook func(ctx context.Context, msg models.Message) (models.Message, bool, error)

// Capability is a cross-cutting behavior applied to every processed
// item. Tier determines chain position; Reentrant marks capabilities
// permitted to re-invoke the processing chain (only RetryHandler does, by
// default).
type Capability interface {
	Name() string
	Tier() int
	Reentrant() bool

	// BeforeProcess runs in ascending tier order before the hook.
	BeforeProcess(ctx context.Context, pc *ProcessContext, msg models.Message) error

	// AroundProcess wraps `next`; the outermost wrapper is the
	// highest-tier capability.
	AroundProcess(ctx context.Context, pc *ProcessContext, msg models.Message, next Hook) (models.Message, bool, error)

	// AfterProcess runs in descending tier order after the hook,
	// best-effort: it must not mask the original error.
	AfterProcess(ctx context.Context, pc *ProcessContext, msg models.Message, out models.Message, dropped bool, err error)
}

// Chain is a tier-sorted, immutable-after-construction capability chain.
// The kernel triple is always present; NewChain enforces that no caller
// can omit it: the kernel triple cannot be removed by configuration.
type Chain struct {
	caps []Capability
}

// NewChain builds a chain from the kernel triple plus any opt-in
// capabilities, sorted by tier. Returns an error if any kernel-tier slot
// is missing (nil) or any tier is duplicated — that is a programmer error
// at construction time, not a runtime condition.
func NewChain(kernelTriple [3]Capability, extras ...Capability) (*Chain, error) {
	seen := map[int]bool{}
	all := make([]Capability, 0, len(kernelTriple)+len(extras))
	for _, c := range append(kernelTriple[:], extras...) {
		if c != nil {
			all = append(all, c)
		}
	}

	for _, c := range all {
		if seen[c.Tier()] {
			return nil, fmt.Errorf("capability chain: duplicate tier %d (%s)", c.Tier(), c.Name())
		}
		seen[c.Tier()] = true
	}
	for _, tier := range []int{TierSchemaValidator, TierRateLimiter, TierMetricsCollector} {
		if !seen[tier] {
			return nil, fmt.Errorf("capability chain: kernel tier %d missing — kernel triple is non-bypassable", tier)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Tier() < all[j].Tier() })
	return &Chain{caps: all}, nil
}

// Capabilities returns the chain in ascending tier order.
func (c *Chain) Capabilities() []Capability { return c.caps }

// Process runs one item through the full before/around/after sequence.
func (c *Chain) Process(ctx context.Context, pc *ProcessContext, msg models.Message, hook Hook) (models.Message, bool, error) {
	if pc.Depth > MaxReentryDepth {
		return models.Message{}, false, fmt.Errorf("%s: reentrancy depth %d exceeds max %d", models.ErrReentrancyDepth, pc.Depth, MaxReentryDepth)
	}

	for _, cap := range c.caps {
		if err := cap.BeforeProcess(ctx, pc, msg); err != nil {
			return models.Message{}, false, err
		}
	}

	chain := hook
	for _, cap := range c.caps {
		capRef := cap
		inner := chain
		chain = func(ctx context.Context, m models.Message) (models.Message, bool, error) {
			return capRef.AroundProcess(ctx, pc, m, inner)
		}
	}

	out, dropped, err := chain(ctx, msg)

	for i := len(c.caps) - 1; i >= 0; i-- {
		c.caps[i].AfterProcess(ctx, pc, msg, out, dropped, err)
	}

	return out, dropped, err
}
