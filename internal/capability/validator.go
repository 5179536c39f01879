package capability

import (
	"context"
	"fmt"

	"github.com/autocoder/kernel/internal/port"
	"github.com/autocoder/kernel/pkg/models"
)

// SchemaValidator is the kernel's tier-10 capability: it validates input
// and output messages against the owning port's schema. A schema failure
// is fail-fast — it aborts the item and is never masked by a later
// capability.
type SchemaValidator struct {
	InputSchema, OutputSchema models.Schema
}

func (v *SchemaValidator) Name() string    { return "SchemaValidator" }
func (v *SchemaValidator) Tier() int       { return TierSchemaValidator }
func (v *SchemaValidator) Reentrant() bool { return false }

func (v *SchemaValidator) BeforeProcess(ctx context.Context, pc *ProcessContext, msg models.Message) error {
	if v.InputSchema.Name == "" {
		return nil
	}
	if err := port.ValidateSchema(v.InputSchema, msg); err != nil {
		return fmt.Errorf("%s: %w", models.ErrSchemaValidation, err)
	}
	return nil
}

func (v *SchemaValidator) AroundProcess(ctx context.Context, pc *ProcessContext, msg models.Message, next Hook) (models.Message, bool, error) {
	out, dropped, err := next(ctx, msg)
	if err != nil || dropped {
		return out, dropped, err
	}
	if v.OutputSchema.Name != "" {
		if verr := port.ValidateSchema(v.OutputSchema, out); verr != nil {
			return models.Message{}, false, fmt.Errorf("%s: output %w", models.ErrSchemaValidation, verr)
		}
	}
	return out, dropped, err
}

func (v *SchemaValidator) AfterProcess(ctx context.Context, pc *ProcessContext, in, out models.Message, dropped bool, err error) {
}
