package pipeline

import (
	"context"

	"github.com/foreko/ingest/internal/domain"

	"github.com/google/uuid"
)

const recentErrorLimit = 10

// StatusReport is the polling view of one file's progress through the
// pipeline.
type StatusReport struct {
	File          domain.UploadedFile      `json:"file"`
	Progress      int                      `json:"progress"`
	Step          string                   `json:"step"`
	RowCount      int                      `json:"row_count"`
	RecordsTotal  int                      `json:"records_total"`
	RecordsFailed int                      `json:"records_failed"`
	ErrorCount    int                      `json:"error_count"`
	RecentErrors  []domain.ProcessingError `json:"recent_errors,omitempty"`
	// Mappings carries the current suggestion or confirmation set while the
	// file waits on, or has passed, the mapping step.
	Mappings []domain.ColumnMapping `json:"mappings,omitempty"`
}

// Status assembles the report for one file.
func (s *Service) Status(ctx context.Context, fileID uuid.UUID) (StatusReport, error) {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return StatusReport{}, err
	}

	report := StatusReport{
		File:     file,
		Progress: file.Status.Progress(),
		Step:     file.Status.StepLabel(),
		RowCount: file.RowCount,
	}

	total, failed, err := s.recordRepo.CountByFile(ctx, fileID)
	if err != nil {
		return StatusReport{}, err
	}
	report.RecordsTotal = total
	report.RecordsFailed = failed

	errorCount, err := s.errorRepo.CountByFile(ctx, fileID)
	if err != nil {
		return StatusReport{}, err
	}
	report.ErrorCount = errorCount
	if errorCount > 0 {
		recent, err := s.errorRepo.ListByFile(ctx, fileID, recentErrorLimit, 0)
		if err != nil {
			return StatusReport{}, err
		}
		report.RecentErrors = recent
	}

	switch file.Status {
	case domain.FileStatusMappingRequired, domain.FileStatusMappingConfirmed:
		mappings, err := s.mappingRepo.ListByFile(ctx, fileID)
		if err != nil {
			return StatusReport{}, err
		}
		report.Mappings = mappings
	}

	return report, nil
}
