package state_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/autocoder/kernel/internal/state"
)

func TestRedisAdapter_SaveLoadDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	adapter := state.NewRedisAdapter(mr.Addr(), 0, "")
	t.Cleanup(func() { adapter.Close() })

	ctx := context.Background()

	if _, ok, err := adapter.Load(ctx, "comp-1"); err != nil || ok {
		t.Fatalf("Load() on empty store: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	if err := adapter.Save(ctx, "comp-1", []byte("snapshot")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := adapter.Load(ctx, "comp-1")
	if err != nil || !ok {
		t.Fatalf("Load() after Save: ok=%v err=%v, want ok=true", ok, err)
	}
	if string(got) != "snapshot" {
		t.Errorf("Load() = %q, want %q", got, "snapshot")
	}

	if err := adapter.Delete(ctx, "comp-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := adapter.Load(ctx, "comp-1"); ok {
		t.Error("Load() after Delete() found a value, want none")
	}
}
