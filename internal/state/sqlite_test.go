package state_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/autocoder/kernel/internal/state"
)

func newSQLite(t *testing.T) *state.SQLiteAdapter {
	t.Helper()
	adapter, err := state.NewSQLiteAdapter(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewSQLiteAdapter() error = %v", err)
	}
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func TestSQLiteAdapter_SaveLoadDelete(t *testing.T) {
	adapter := newSQLite(t)
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

func TestSQLiteAdapter_SaveIsIdempotentPerKey(t *testing.T) {
	adapter := newSQLite(t)
	ctx := context.Background()

	if err := adapter.Save(ctx, "comp-1", []byte("v1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := adapter.Save(ctx, "comp-1", []byte("v2")); err != nil {
		t.Fatalf("Save() second write error = %v, want upsert", err)
	}

	got, ok, err := adapter.Load(ctx, "comp-1")
	if err != nil || !ok {
		t.Fatalf("Load() ok=%v err=%v, want ok=true", ok, err)
	}
	if string(got) != "v2" {
		t.Errorf("Load() = %q, want the latest write %q", got, "v2")
	}
}
