package domain

import (
	"time"

	"github.com/google/uuid"
)

// ErrorType classifies processing errors for the append-only error log.
type ErrorType string

const (
	ErrorTypeParse          ErrorType = "parse"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeTransformation ErrorType = "transformation"
	ErrorTypeSystem         ErrorType = "system"
)

// ErrorSeverity ranks how damaging a processing error is.
type ErrorSeverity string

const (
	SeverityWarning  ErrorSeverity = "warning"
	SeverityError    ErrorSeverity = "error"
	SeverityCritical ErrorSeverity = "critical"
)

// ProcessingError captures one row or file level issue during processing.
type ProcessingError struct {
	ID        uuid.UUID     `json:"id"`
	FileID    uuid.UUID     `json:"file_id"`
	RowNumber *int          `json:"row_number,omitempty"`
	ErrorType ErrorType     `json:"error_type"`
	Message   string        `json:"message"`
	Field     string        `json:"field,omitempty"`
	Value     string        `json:"value,omitempty"`
	Severity  ErrorSeverity `json:"severity"`
	Resolved  bool          `json:"resolved"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewProcessingError creates an unresolved error entry for a file.
func NewProcessingError(fileID uuid.UUID, rowNumber *int, errType ErrorType, message string, severity ErrorSeverity) ProcessingError {
	return ProcessingError{
		ID:        uuid.New(),
		FileID:    fileID,
		RowNumber: rowNumber,
		ErrorType: errType,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
	}
}
