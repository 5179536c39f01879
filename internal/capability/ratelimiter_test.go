package capability_test

import (
	"context"
	"testing"

	"github.com/autocoder/kernel/internal/capability"
	"github.com/autocoder/kernel/pkg/models"
)

func TestRateLimiter_ExhaustedBucketFailsWithinTimeout(t *testing.T) {
	// Burst of 1 and a near-zero refill rate: the first acquisition
	// drains the bucket, the second cannot complete within the bound.
	limiter := capability.NewRateLimiter(0.001, 1, 50)
	pc := &capability.ProcessContext{Component: "c", Port: "p"}
	msg := models.Message{ID: "1", Fields: map[string]any{}}

	if err := limiter.BeforeProcess(context.Background(), pc, msg); err != nil {
		t.Fatalf("BeforeProcess() within burst error = %v", err)
	}
	if err := limiter.BeforeProcess(context.Background(), pc, msg); err == nil {
		t.Fatal("BeforeProcess() with the bucket exhausted returned nil, want bounded timeout")
	}
}

func TestRateLimiter_UnboundedBlockRespectsCancellation(t *testing.T) {
	limiter := capability.NewRateLimiter(0.001, 1, 0)
	pc := &capability.ProcessContext{Component: "c", Port: "p"}
	msg := models.Message{ID: "1", Fields: map[string]any{}}

	if err := limiter.BeforeProcess(context.Background(), pc, msg); err != nil {
		t.Fatalf("BeforeProcess() within burst error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.BeforeProcess(ctx, pc, msg); err == nil {
		t.Fatal("BeforeProcess() with a canceled context returned nil, want error")
	}
}
