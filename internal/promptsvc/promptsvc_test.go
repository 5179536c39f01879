package promptsvc_test

import (
	"context"
	"testing"
	"time"

	"github.com/autocoder/kernel/internal/promptsvc"
)

type stubProvider struct{ name string }

func (s *stubProvider) ProviderName() string { return s.name }

func (s *stubProvider) Generate(ctx context.Context, req promptsvc.GenerateRequest) (promptsvc.GenerateResponse, error) {
	return promptsvc.GenerateResponse{Text: "echo: " + req.Prompt}, nil
}

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{float64(len(text))}, nil
}

func TestBuild_UnregisteredNameReturnsError(t *testing.T) {
	if _, err := promptsvc.Build("no-such-provider", nil); err == nil {
		t.Fatal("Build() with an unregistered name, want an error")
	}
}

func TestRegisterAndBuild_ReturnsConstructedProvider(t *testing.T) {
	promptsvc.Register("stub", func(cfg map[string]any) (promptsvc.Provider, error) {
		return &stubProvider{name: "stub"}, nil
	})

	provider, err := promptsvc.Build("stub", map[string]any{"model": "test"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if provider.ProviderName() != "stub" {
		t.Fatalf("ProviderName() = %q, want %q", provider.ProviderName(), "stub")
	}

	resp, err := provider.Generate(context.Background(), promptsvc.GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "echo: hi" {
		t.Fatalf("Generate().Text = %q, want %q", resp.Text, "echo: hi")
	}
}

func TestWithBudget_ZeroTimeoutNeverExpires(t *testing.T) {
	ctx, cancel := promptsvc.WithBudget(context.Background(), promptsvc.Config{})
	defer cancel()
	select {
	case <-ctx.Done():
		t.Fatal("WithBudget() with no configured timeout, context should not be done")
	default:
	}
}

func TestWithBudget_PositiveTimeoutExpires(t *testing.T) {
	ctx, cancel := promptsvc.WithBudget(context.Background(), promptsvc.Config{TimeoutMs: 5})
	defer cancel()
	select {
	case <-ctx.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("WithBudget() with a 5ms timeout never expired")
	}
}
