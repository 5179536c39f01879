package errors_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/autocoder/kernel/internal/errors"
	"github.com/autocoder/kernel/pkg/models"
)

func TestRedact_MasksSensitiveFieldNames(t *testing.T) {
	fields := map[string]any{
		"id":            "u-1",
		"Password":      "hunter2",
		"api_token":     "tok_abc",
		"credit_card":   "4111",
		"user_ssn":      "000-00-0000",
		"client_secret": "shh",
	}
	out := errors.Redact(fields)

	if out["id"] != "u-1" {
		t.Errorf("Redact() masked a non-sensitive field: id = %v", out["id"])
	}
	for _, key := range []string{"Password", "api_token", "credit_card", "user_ssn", "client_secret"} {
		if out[key] != "[REDACTED]" {
			t.Errorf("Redact()[%q] = %v, want [REDACTED]", key, out[key])
		}
	}
	if fields["Password"] != "hunter2" {
		t.Error("Redact() mutated its input map")
	}
}

func TestPayloadPreview_CapsAtMaxBytes(t *testing.T) {
	msg := models.Message{ID: "big", Fields: map[string]any{
		"blob": strings.Repeat("x", models.MaxPayloadPreviewBytes*2),
	}}
	preview := errors.PayloadPreview(msg)
	if len(preview) > models.MaxPayloadPreviewBytes {
		t.Fatalf("PayloadPreview() length = %d, want <= %d", len(preview), models.MaxPayloadPreviewBytes)
	}
}

func TestNew_BuildsEnvelopeWithRedactedPreview(t *testing.T) {
	msg := models.Message{ID: "1", Fields: map[string]any{"id": "1", "password": "hunter2"}}
	cause := fmt.Errorf("schema %q: missing required field %q", "record", "email")

	env := errors.New("validator", "in", models.ErrSchemaValidation, cause, msg, false)

	if env.ErrorID == "" {
		t.Error("New().ErrorID is empty, want a generated id")
	}
	if env.Component != "validator" || env.Port != "in" {
		t.Errorf("New() component/port = %q/%q, want validator/in", env.Component, env.Port)
	}
	if env.Code != models.ErrSchemaValidation {
		t.Errorf("New().Code = %q, want %q", env.Code, models.ErrSchemaValidation)
	}
	if env.Message != cause.Error() {
		t.Errorf("New().Message = %q, want cause text", env.Message)
	}
	if strings.Contains(env.PayloadPreview, "hunter2") {
		t.Errorf("New().PayloadPreview leaked a sensitive value: %s", env.PayloadPreview)
	}
	if !strings.Contains(env.PayloadPreview, "[REDACTED]") {
		t.Errorf("New().PayloadPreview = %s, want redaction marker", env.PayloadPreview)
	}
}
