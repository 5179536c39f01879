// Package errors builds the standard error envelope: size-capped,
// PII-redacted error records emitted on failures. Redaction is driven
// by field name, not value inspection — any payload key matching the
// sensitive-name pattern is masked before the preview is rendered.
package errors

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/autocoder/kernel/pkg/models"
	"github.com/google/uuid"
)

// sensitiveFieldName matches field names carrying likely PII,
// case-insensitive.
var sensitiveFieldName = regexp.MustCompile(`(?i)ssn|credit_card|password|token|secret`)

const redacted = "[REDACTED]"

// Redact returns a copy of fields with any key matching sensitiveFieldName
// replaced by a redaction marker.
func Redact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if sensitiveFieldName.MatchString(k) {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

// PayloadPreview renders msg.Fields as JSON after redaction, capped at
// models.MaxPayloadPreviewBytes.
func PayloadPreview(msg models.Message) string {
	redactedFields := Redact(msg.Fields)
	blob, err := json.Marshal(redactedFields)
	if err != nil {
		return "<payload preview unavailable: " + err.Error() + ">"
	}
	if len(blob) > models.MaxPayloadPreviewBytes {
		blob = blob[:models.MaxPayloadPreviewBytes]
	}
	return string(blob)
}

// New builds an ErrorEnvelope for a failure observed on component/port.
func New(component, port string, code models.ErrorCode, cause error, msg models.Message, retryable bool) models.ErrorEnvelope {
	return models.ErrorEnvelope{
		ErrorID:        uuid.New().String(),
		Timestamp:      time.Now().UTC(),
		Component:      component,
		Port:           port,
		Code:           code,
		Message:        cause.Error(),
		PayloadPreview: PayloadPreview(msg),
		Cause:          cause,
		Retryable:      retryable,
	}
}
