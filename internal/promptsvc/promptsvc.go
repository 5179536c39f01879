// Package promptsvc defines the Prompt Service SPI: the
// provider-agnostic surface a Transformer business-logic hook calls when
// its recipe config names a model provider, plus a static name-to-
// constructor registry so Blueprint config can select a provider by
// name without the kernel importing any specific vendor SDK.
package promptsvc

import (
	"context"
	"fmt"
	"time"
)

// GenerateRequest is a provider-agnostic completion request.
type GenerateRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// GenerateResponse is a provider-agnostic completion result.
type GenerateResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider is the SPI every prompt backend implements: generate, embed,
// and a stable name used in logs/metrics and Blueprint config.
type Provider interface {
	ProviderName() string
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Config bounds a provider call's budget — a component's recipe config
// sets these, never the provider itself: timeouts and budgets are
// configuration, not code paths.
type Config struct {
	TimeoutMs   int
	MaxTokens   int
	MaxRequests int
}

// Factory constructs a Provider from its static config, registered by
// name so recipes select a provider declaratively.
type Factory func(cfg map[string]any) (Provider, error)

var registry = map[string]Factory{}

// Register adds a provider constructor under name. Intended to be called
// from provider-specific init() functions, mirroring the static
// name-to-class registration pattern recipes already use for method
// slots.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Build looks up a registered provider by name and constructs it.
func Build(name string, cfg map[string]any) (Provider, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("promptsvc: no provider registered under %q", name)
	}
	return factory(cfg)
}

// WithBudget derives a bounded context for one provider call from a
// Config's timeout, defaulting to no timeout when unset.
func WithBudget(ctx context.Context, cfg Config) (context.Context, context.CancelFunc) {
	if cfg.TimeoutMs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(cfg.TimeoutMs)*time.Millisecond)
}
