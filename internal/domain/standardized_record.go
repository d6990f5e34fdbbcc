package domain

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// ValidationStatus classifies a standardized row by its validation errors.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationWarning ValidationStatus = "warning"
	ValidationFailed  ValidationStatus = "failed"
)

// FieldError is one field-level validation failure on a row.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// StandardizedRecord is the canonical pipeline output: one record per
// surviving raw row, carrying both the standardized payload and the original
// raw values for audit.
type StandardizedRecord struct {
	ID               uuid.UUID         `json:"id"`
	FileID           uuid.UUID         `json:"file_id"`
	CompanyID        uuid.UUID         `json:"company_id"`
	RowNumber        int               `json:"row_number"`
	ContentHash      string            `json:"content_hash"`
	EntityType       string            `json:"entity_type"`
	Payload          map[string]any    `json:"payload"`
	RawPayload       map[string]string `json:"raw_payload"`
	ValidationStatus ValidationStatus  `json:"validation_status"`
	ValidationErrors []FieldError      `json:"validation_errors,omitempty"`
	QualityScore     int               `json:"quality_score"`
	Dashboards       []string          `json:"dashboards"`
	CreatedAt        time.Time         `json:"created_at"`
}

// GetPayloadAsJSONB returns the standardized payload for JSONB storage.
func (r StandardizedRecord) GetPayloadAsJSONB() (json.RawMessage, error) {
	if r.Payload == nil {
		return json.Marshal(map[string]any{})
	}
	return json.Marshal(r.Payload)
}

// GetRawPayloadAsJSONB returns the original row values for JSONB storage.
func (r StandardizedRecord) GetRawPayloadAsJSONB() (json.RawMessage, error) {
	if r.RawPayload == nil {
		return json.Marshal(map[string]string{})
	}
	return json.Marshal(r.RawPayload)
}

// StatusForErrorCount maps an error count onto a validation status. The
// warning ceiling is configurable; errors beyond it fail the row.
func StatusForErrorCount(errorCount, warningCeiling int) ValidationStatus {
	if warningCeiling <= 0 {
		warningCeiling = 2
	}
	switch {
	case errorCount == 0:
		return ValidationPassed
	case errorCount <= warningCeiling:
		return ValidationWarning
	default:
		return ValidationFailed
	}
}

// BlendQualityScore blends completeness and accuracy fractions 50/50 into an
// integer percentage.
func BlendQualityScore(completeness, accuracy float64) int {
	score := math.Round(50*completeness + 50*accuracy)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score)
}
