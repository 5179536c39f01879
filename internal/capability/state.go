package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autocoder/kernel/internal/state"
	"github.com/autocoder/kernel/pkg/models"
)

// StateCapability is the tier-30 opt-in capability giving a component
// transactional get/set access to its own snapshot via a StateAdapter.
// It never participates in around_process directly — business logic
// reads state through Snapshot and writes it through Restore — so its
// chain hooks are no-ops;
// it exists in the chain only to occupy tier 30 and to make the
// capability's presence inspectable (a stateful component without one
// is a programmer error).
type StateCapability struct {
	adapter     state.Adapter
	componentID string
}

// NewStateCapability binds a StateAdapter to one component id.
func NewStateCapability(adapter state.Adapter, componentID string) *StateCapability {
	return &StateCapability{adapter: adapter, componentID: componentID}
}

func (s *StateCapability) Name() string    { return "StateCapability" }
func (s *StateCapability) Tier() int       { return TierState }
func (s *StateCapability) Reentrant() bool { return false }

func (s *StateCapability) BeforeProcess(ctx context.Context, pc *ProcessContext, msg models.Message) error {
	return nil
}

func (s *StateCapability) AroundProcess(ctx context.Context, pc *ProcessContext, msg models.Message, next Hook) (models.Message, bool, error) {
	return next(ctx, msg)
}

func (s *StateCapability) AfterProcess(ctx context.Context, pc *ProcessContext, in, out models.Message, dropped bool, err error) {
}

// Snapshot gets the component's current state value, decoded into v.
func (s *StateCapability) Snapshot(ctx context.Context, v any) (bool, error) {
	blob, ok, err := s.adapter.Load(ctx, s.componentID)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(blob, v); err != nil {
		return true, fmt.Errorf("state snapshot decode %q: %w", s.componentID, err)
	}
	return true, nil
}

// Restore persists v as the component's current state value.
func (s *StateCapability) Restore(ctx context.Context, v any) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state restore encode %q: %w", s.componentID, err)
	}
	return s.adapter.Save(ctx, s.componentID, blob)
}
