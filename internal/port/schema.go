package port

import (
	"fmt"

	"github.com/autocoder/kernel/pkg/models"
)

// ValidateSchema checks a message's fields against a schema: required
// fields must be present and correctly typed, and in strict mode no
// unexpected fields may appear.
func ValidateSchema(schema models.Schema, msg models.Message) error {
	declared := make(map[string]models.FieldSpec, len(schema.Fields))
	for _, f := range schema.Fields {
		declared[f.Name] = f
	}

	for _, f := range schema.Fields {
		v, present := msg.Fields[f.Name]
		if !present {
			if f.Required {
				return fmt.Errorf("schema %q: missing required field %q", schema.Name, f.Name)
			}
			continue
		}
		if !typeMatches(f.Type, v) {
			return fmt.Errorf("schema %q: field %q has wrong type", schema.Name, f.Name)
		}
	}

	if schema.Strict {
		for name := range msg.Fields {
			if _, ok := declared[name]; !ok {
				return fmt.Errorf("schema %q: unknown field %q in strict mode", schema.Name, name)
			}
		}
	}

	return nil
}

func typeMatches(t models.FieldType, v any) bool {
	if t == models.FieldAny || v == nil {
		return true
	}
	switch t {
	case models.FieldString:
		_, ok := v.(string)
		return ok
	case models.FieldBool:
		_, ok := v.(bool)
		return ok
	case models.FieldInt:
		switch v.(type) {
		case int, int32, int64:
			return true
		default:
			return false
		}
	case models.FieldFloat:
		switch v.(type) {
		case float32, float64:
			return true
		default:
			return false
		}
	default:
		return true
	}
}

// Compatible reports whether an OUT port producing under `out` can
// connect to an IN port declaring `in` — same schema name, version
// compatible under the producer/consumer rule.
func Compatible(out, in models.Schema) bool {
	if out.Name != in.Name {
		return false
	}
	return out.Version.Compatible(in.Version)
}
