// Package state implements the StateAdapter SPI: the only sanctioned
// form of shared mutable state between components, which must never
// share in-memory state except through a capability. Two adapters are
// provided: SQLite for local/single-writer use and Redis for
// multi-process snapshotting.
package state

import "context"

// Adapter is the StateAdapter SPI. Implementations must serialize
// access per component id: SQLite via its single writer, Redis via
// atomic per-key operations.
type Adapter interface {
	Save(ctx context.Context, componentID string, blob []byte) error
	Load(ctx context.Context, componentID string) ([]byte, bool, error)
	Delete(ctx context.Context, componentID string) error
	Close() error
}
