package port_test

import (
	"testing"

	"github.com/autocoder/kernel/internal/port"
	"github.com/autocoder/kernel/pkg/models"
)

func recordSchema(strict bool) models.Schema {
	return models.Schema{
		Name:   "record",
		Strict: strict,
		Fields: []models.FieldSpec{
			{Name: "id", Type: models.FieldString, Required: true},
			{Name: "count", Type: models.FieldInt},
		},
	}
}

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name    string
		schema  models.Schema
		fields  map[string]any
		wantErr bool
	}{
		{"valid", recordSchema(false), map[string]any{"id": "a", "count": 3}, false},
		{"missing required", recordSchema(false), map[string]any{"count": 3}, true},
		{"wrong type", recordSchema(false), map[string]any{"id": 42}, true},
		{"optional absent", recordSchema(false), map[string]any{"id": "a"}, false},
		{"unknown field lenient", recordSchema(false), map[string]any{"id": "a", "extra": 1}, false},
		{"unknown field strict", recordSchema(true), map[string]any{"id": "a", "extra": 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := port.ValidateSchema(tt.schema, models.Message{ID: "m", Fields: tt.fields})
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompatible_VersionRule(t *testing.T) {
	out := models.Schema{Name: "evt", Version: models.SchemaVersion{Major: 1, Minor: 2}}

	if !port.Compatible(out, models.Schema{Name: "evt", Version: models.SchemaVersion{Major: 1, Minor: 1}}) {
		t.Error("Compatible() = false for consumer on an older minor, want true")
	}
	if port.Compatible(out, models.Schema{Name: "evt", Version: models.SchemaVersion{Major: 1, Minor: 3}}) {
		t.Error("Compatible() = true for consumer demanding a newer minor, want false")
	}
	if port.Compatible(out, models.Schema{Name: "evt", Version: models.SchemaVersion{Major: 2}}) {
		t.Error("Compatible() = true across majors, want false")
	}
	if port.Compatible(out, models.Schema{Name: "other", Version: out.Version}) {
		t.Error("Compatible() = true across schema names, want false")
	}
}
