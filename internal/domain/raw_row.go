package domain

import (
	"time"

	"github.com/google/uuid"
)

// RawRow is one parsed input row, immutable once written. Row numbers are
// 1-based and follow source order.
type RawRow struct {
	ID        uuid.UUID         `json:"id"`
	FileID    uuid.UUID         `json:"file_id"`
	RowNumber int               `json:"row_number"`
	Values    map[string]string `json:"values"`
	RowHash   string            `json:"row_hash"`
	IsHeader  bool              `json:"is_header"`
	Processed bool              `json:"processed"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewRawRow creates a raw row entry for the given file.
func NewRawRow(fileID uuid.UUID, rowNumber int, values map[string]string, rowHash string) RawRow {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return RawRow{
		ID:        uuid.New(),
		FileID:    fileID,
		RowNumber: rowNumber,
		Values:    copied,
		RowHash:   rowHash,
		CreatedAt: time.Now(),
	}
}
