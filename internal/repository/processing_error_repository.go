package repository

import (
	"context"
	"fmt"

	"github.com/foreko/ingest/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type processingErrorRepository struct {
	db DB
}

// NewProcessingErrorRepository creates the append-only error log repository.
func NewProcessingErrorRepository(db DB) ProcessingErrorRepository {
	return &processingErrorRepository{db: db}
}

func (r *processingErrorRepository) Record(ctx context.Context, procErr domain.ProcessingError) error {
	return r.RecordBatch(ctx, []domain.ProcessingError{procErr})
}

func (r *processingErrorRepository) RecordBatch(ctx context.Context, procErrs []domain.ProcessingError) error {
	if len(procErrs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, procErr := range procErrs {
		var rowNumber any
		if procErr.RowNumber != nil {
			rowNumber = *procErr.RowNumber
		}
		batch.Queue(
			`INSERT INTO processing_errors (id, file_id, row_number, error_type, message,
				field, value, severity, resolved)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			procErr.ID,
			procErr.FileID,
			rowNumber,
			string(procErr.ErrorType),
			procErr.Message,
			procErr.Field,
			procErr.Value,
			string(procErr.Severity),
			procErr.Resolved,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to record processing errors: %w", err)
		}
	}
	return nil
}

func (r *processingErrorRepository) ListByFile(ctx context.Context, fileID uuid.UUID, limit, offset int) ([]domain.ProcessingError, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, file_id, row_number, error_type, message, field, value, severity, resolved, created_at
		 FROM processing_errors
		 WHERE file_id = $1
		 ORDER BY row_number ASC NULLS FIRST, created_at ASC
		 LIMIT $2 OFFSET $3`,
		fileID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing errors: %w", err)
	}
	defer rows.Close()

	procErrs := []domain.ProcessingError{}
	for rows.Next() {
		var (
			procErr   domain.ProcessingError
			rowNumber pgtype.Int4
			errorType string
			severity  string
		)
		if scanErr := rows.Scan(
			&procErr.ID,
			&procErr.FileID,
			&rowNumber,
			&errorType,
			&procErr.Message,
			&procErr.Field,
			&procErr.Value,
			&severity,
			&procErr.Resolved,
			&procErr.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan processing error: %w", scanErr)
		}

		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			procErr.RowNumber = &value
		}
		procErr.ErrorType = domain.ErrorType(errorType)
		procErr.Severity = domain.ErrorSeverity(severity)
		procErrs = append(procErrs, procErr)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate processing errors: %w", rowsErr)
	}
	return procErrs, nil
}

func (r *processingErrorRepository) CountByFile(ctx context.Context, fileID uuid.UUID) (int, error) {
	var count int
	if err := r.db.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM processing_errors WHERE file_id = $1`,
		fileID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count processing errors: %w", err)
	}
	return count, nil
}
