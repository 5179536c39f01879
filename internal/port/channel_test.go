package port_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/autocoder/kernel/internal/port"
	"github.com/autocoder/kernel/pkg/models"
)

func msg(id string) models.Message {
	return models.Message{ID: id, Fields: map[string]any{"id": id}}
}

func TestChannel_FIFO(t *testing.T) {
	ch := port.NewChannel(4, models.OverflowBlock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := ch.Send(ctx, msg(string(rune('a'+i)))); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	for i := 0; i < 4; i++ {
		got, err := ch.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		want := string(rune('a' + i))
		if got.ID != want {
			t.Errorf("Receive() = %q, want %q (FIFO order violated)", got.ID, want)
		}
	}
}

func TestChannel_BoundedDepth(t *testing.T) {
	ch := port.NewChannel(2, models.OverflowDropNewest)
	ctx := context.Background()

	ch.Send(ctx, msg("1"))
	ch.Send(ctx, msg("2"))
	ch.Send(ctx, msg("3")) // dropped

	stats := ch.Stats()
	if stats.Depth != 2 {
		t.Errorf("Depth = %d, want 2", stats.Depth)
	}
	if stats.MessagesDropped != 1 {
		t.Errorf("MessagesDropped = %d, want 1", stats.MessagesDropped)
	}
	if got, want := stats.BufferUtilization, 1.0; got != want {
		t.Errorf("BufferUtilization = %v, want %v", got, want)
	}
}

func TestChannel_DropOldest(t *testing.T) {
	ch := port.NewChannel(2, models.OverflowDropOldest)
	ctx := context.Background()

	ch.Send(ctx, msg("1"))
	ch.Send(ctx, msg("2"))
	dropped, err := ch.Send(ctx, msg("3")) // evicts "1"
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if dropped {
		t.Error("Send() dropped = true under DROP_OLDEST, want false (incoming message is enqueued)")
	}
	if got := ch.Stats().MessagesDropped; got != 1 {
		t.Errorf("MessagesDropped = %d, want 1 (evicted head counts as a drop)", got)
	}

	first, _ := ch.Receive(ctx)
	second, _ := ch.Receive(ctx)
	if first.ID != "2" || second.ID != "3" {
		t.Errorf("got %q, %q; want head=1 evicted, remaining 2,3", first.ID, second.ID)
	}
}

func TestChannel_DropNewest(t *testing.T) {
	ch := port.NewChannel(1, models.OverflowDropNewest)
	ctx := context.Background()

	ch.Send(ctx, msg("1"))
	dropped, err := ch.Send(ctx, msg("2")) // dropped, "1" stays
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !dropped {
		t.Error("Send() dropped = false under DROP_NEWEST at capacity, want true")
	}

	got, _ := ch.Receive(ctx)
	if got.ID != "1" {
		t.Errorf("got %q, want %q", got.ID, "1")
	}
}

func TestChannel_BlockUntilSpace(t *testing.T) {
	ch := port.NewChannel(1, models.OverflowBlock)
	ctx := context.Background()
	ch.Send(ctx, msg("1"))

	var wg sync.WaitGroup
	wg.Add(1)
	unblocked := false
	go func() {
		defer wg.Done()
		ch.Send(ctx, msg("2"))
		unblocked = true
	}()

	time.Sleep(30 * time.Millisecond)
	if unblocked {
		t.Fatal("Send() returned before capacity freed under BLOCK")
	}

	ch.Receive(ctx) // frees one slot
	wg.Wait()
	if !unblocked {
		t.Fatal("Send() never unblocked after capacity freed")
	}
}

func TestChannel_BlockWithTimeoutRejects(t *testing.T) {
	ch := port.NewChannel(1, models.OverflowBlockWithTimeout)
	ctx := context.Background()
	ch.Send(ctx, msg("1"))

	start := time.Now()
	_, err := ch.Send(ctx, msg("2"))
	elapsed := time.Since(start)

	if err != port.ErrIngressTimeout {
		t.Fatalf("Send() error = %v, want ErrIngressTimeout", err)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("Send() took %v, want bounded by default timeout", elapsed)
	}
	if ch.Depth() != 1 {
		t.Fatalf("Depth() = %d, want 1 (no partial enqueue on timeout)", ch.Depth())
	}
}

func TestChannel_CloseDrainsBeforeClosed(t *testing.T) {
	ch := port.NewChannel(4, models.OverflowBlock)
	ctx := context.Background()
	ch.Send(ctx, msg("1"))
	ch.Close()

	got, err := ch.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() after Close() on non-empty queue error = %v, want drain first", err)
	}
	if got.ID != "1" {
		t.Fatalf("got %q, want %q", got.ID, "1")
	}

	_, err = ch.Receive(ctx)
	if err != port.ErrClosed {
		t.Fatalf("Receive() on drained closed channel error = %v, want ErrClosed", err)
	}
}
