// Package primitive declares the five pure business-logic hook shapes
// every component shell (internal/shell) invokes. A
// component's ComponentDef.MethodSlot names exactly one of these; the
// shell is the only place a hook is ever called from.
package primitive

import (
	"context"

	"github.com/autocoder/kernel/pkg/models"
)

// ProduceFunc is a Source's hook (0→N): it runs until ctx is canceled,
// calling emit for each message it wants to send on a named OUT port.
// emit applies the capability kernel and port backpressure; a blocked
// emit is a normal suspension point, not an error.
type ProduceFunc func(ctx context.Context, emit func(port string, msg models.Message) error) error

// ConsumeFunc is a Sink's hook (N→0): acknowledges processing of one
// message before the shell requests the next.
type ConsumeFunc func(ctx context.Context, port string, msg models.Message) error

// TransformFunc is a Transformer's hook (1→{0,1}). Returning keep=false
// means "drop"; allowed only when the component's RequireOutput is
// false. A non-nil error aborts the item.
type TransformFunc func(ctx context.Context, msg models.Message) (out models.Message, keep bool, err error)

// SplitFunc is a Splitter's hook (1→N): returns a map keyed by declared
// OUT port name. A missing key means no emission on that port for this
// item; emitting to an undeclared port is a programmer error.
type SplitFunc func(ctx context.Context, msg models.Message) (map[string]models.Message, error)

// MergeFunc is a Merger's hook (N→1), called in arrival order across all
// IN ports by the shell's fair-ish scheduler. It may return
// zero or more messages to emit on the single OUT port.
type MergeFunc func(ctx context.Context, fromPort string, msg models.Message) ([]models.Message, error)
