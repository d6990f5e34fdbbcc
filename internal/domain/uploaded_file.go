package domain

import (
	"time"

	"github.com/google/uuid"
)

// FileStatus represents the lifecycle state of an uploaded file.
type FileStatus string

const (
	FileStatusUploaded            FileStatus = "uploaded"
	FileStatusAnalyzing           FileStatus = "analyzing"
	FileStatusMappingRequired     FileStatus = "mapping_required"
	FileStatusMappingConfirmed    FileStatus = "mapping_confirmed"
	FileStatusProcessing          FileStatus = "processing"
	FileStatusCompleted           FileStatus = "completed"
	FileStatusCompletedWithErrors FileStatus = "completed_with_errors"
	FileStatusFailed              FileStatus = "failed"
	FileStatusCancelled           FileStatus = "cancelled"
)

// statusTransitions enumerates the legal forward edges of the lifecycle.
// cancelled is reachable from any non-terminal state, failed -> uploaded is
// the retry edge, and any active state may fall to failed.
var statusTransitions = map[FileStatus][]FileStatus{
	FileStatusUploaded:         {FileStatusAnalyzing, FileStatusFailed, FileStatusCancelled},
	FileStatusAnalyzing:        {FileStatusMappingRequired, FileStatusFailed, FileStatusCancelled},
	FileStatusMappingRequired:  {FileStatusMappingConfirmed, FileStatusAnalyzing, FileStatusFailed, FileStatusCancelled},
	FileStatusMappingConfirmed: {FileStatusProcessing, FileStatusFailed, FileStatusCancelled},
	FileStatusProcessing:       {FileStatusCompleted, FileStatusCompletedWithErrors, FileStatusFailed, FileStatusCancelled},
	FileStatusFailed:           {FileStatusUploaded},
}

// Terminal reports whether no further transitions are expected.
func (s FileStatus) Terminal() bool {
	switch s {
	case FileStatusCompleted, FileStatusCompletedWithErrors, FileStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving to the target status is legal.
func (s FileStatus) CanTransition(to FileStatus) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Progress maps a status to a fixed completion percentage for status polling.
func (s FileStatus) Progress() int {
	switch s {
	case FileStatusUploaded:
		return 10
	case FileStatusAnalyzing:
		return 25
	case FileStatusMappingRequired:
		return 40
	case FileStatusMappingConfirmed:
		return 55
	case FileStatusProcessing:
		return 75
	case FileStatusCompleted, FileStatusCompletedWithErrors:
		return 100
	case FileStatusFailed, FileStatusCancelled:
		return 0
	}
	return 0
}

// StepLabel returns a human readable description of the current stage.
func (s FileStatus) StepLabel() string {
	switch s {
	case FileStatusUploaded:
		return "File received"
	case FileStatusAnalyzing:
		return "Detecting columns and entity type"
	case FileStatusMappingRequired:
		return "Waiting for column mapping confirmation"
	case FileStatusMappingConfirmed:
		return "Mappings confirmed, ready to process"
	case FileStatusProcessing:
		return "Standardizing rows"
	case FileStatusCompleted:
		return "Processing complete"
	case FileStatusCompletedWithErrors:
		return "Processing complete with errors"
	case FileStatusFailed:
		return "Processing failed"
	case FileStatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// UploadedFile records one uploaded spreadsheet or CSV and its lifecycle.
type UploadedFile struct {
	ID           uuid.UUID  `json:"id"`
	CompanyID    uuid.UUID  `json:"company_id"`
	UploadedBy   uuid.UUID  `json:"uploaded_by"`
	FileName     string     `json:"file_name"`
	ByteSize     int64      `json:"byte_size"`
	FileType     string     `json:"file_type"` // csv | xlsx
	ContentHash  string     `json:"content_hash"`
	EntityType   string     `json:"entity_type"`
	RowCount     int        `json:"row_count"`
	ColumnCount  int        `json:"column_count"`
	QualityScore *int       `json:"quality_score,omitempty"`
	StorageKey   string     `json:"storage_key,omitempty"`
	Status       FileStatus `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	AnalyzedAt   *time.Time `json:"analyzed_at,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewUploadedFile creates a file record in the uploaded state.
func NewUploadedFile(companyID, uploadedBy uuid.UUID, fileName string, byteSize int64, fileType, contentHash, entityType string) UploadedFile {
	now := time.Now()
	return UploadedFile{
		ID:          uuid.New(),
		CompanyID:   companyID,
		UploadedBy:  uploadedBy,
		FileName:    fileName,
		ByteSize:    byteSize,
		FileType:    fileType,
		ContentHash: contentHash,
		EntityType:  entityType,
		Status:      FileStatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
