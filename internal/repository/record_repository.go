package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/foreko/ingest/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type recordRepository struct {
	db DB
}

// NewRecordRepository creates a repository for standardized records.
func NewRecordRepository(db DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) CreateBatch(ctx context.Context, records []domain.StandardizedRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, record := range records {
		payload, err := record.GetPayloadAsJSONB()
		if err != nil {
			return fmt.Errorf("failed to encode payload for row %d: %w", record.RowNumber, err)
		}
		rawPayload, err := record.GetRawPayloadAsJSONB()
		if err != nil {
			return fmt.Errorf("failed to encode raw payload for row %d: %w", record.RowNumber, err)
		}
		validationErrors, err := json.Marshal(record.ValidationErrors)
		if err != nil {
			return fmt.Errorf("failed to encode validation errors for row %d: %w", record.RowNumber, err)
		}
		dashboards, err := json.Marshal(record.Dashboards)
		if err != nil {
			return fmt.Errorf("failed to encode dashboards for row %d: %w", record.RowNumber, err)
		}

		batch.Queue(
			`INSERT INTO standardized_records (id, file_id, company_id, row_number, content_hash,
				entity_type, payload, raw_payload, validation_status, validation_errors,
				quality_score, dashboards)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (file_id, row_number) DO UPDATE SET
				content_hash = EXCLUDED.content_hash,
				entity_type = EXCLUDED.entity_type,
				payload = EXCLUDED.payload,
				raw_payload = EXCLUDED.raw_payload,
				validation_status = EXCLUDED.validation_status,
				validation_errors = EXCLUDED.validation_errors,
				quality_score = EXCLUDED.quality_score,
				dashboards = EXCLUDED.dashboards`,
			record.ID,
			record.FileID,
			record.CompanyID,
			record.RowNumber,
			record.ContentHash,
			record.EntityType,
			payload,
			rawPayload,
			string(record.ValidationStatus),
			validationErrors,
			record.QualityScore,
			dashboards,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert standardized record batch: %w", err)
		}
	}
	return nil
}

func (r *recordRepository) ListByFile(ctx context.Context, fileID uuid.UUID, limit, offset int) ([]domain.StandardizedRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, file_id, company_id, row_number, content_hash, entity_type, payload,
			raw_payload, validation_status, validation_errors, quality_score, dashboards, created_at
		 FROM standardized_records
		 WHERE file_id = $1
		 ORDER BY row_number ASC
		 LIMIT $2 OFFSET $3`,
		fileID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list standardized records: %w", err)
	}
	defer rows.Close()

	records := []domain.StandardizedRecord{}
	for rows.Next() {
		var (
			record           domain.StandardizedRecord
			status           string
			payload          []byte
			rawPayload       []byte
			validationErrors []byte
			dashboards       []byte
		)
		if scanErr := rows.Scan(
			&record.ID,
			&record.FileID,
			&record.CompanyID,
			&record.RowNumber,
			&record.ContentHash,
			&record.EntityType,
			&payload,
			&rawPayload,
			&status,
			&validationErrors,
			&record.QualityScore,
			&dashboards,
			&record.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan standardized record: %w", scanErr)
		}

		record.ValidationStatus = domain.ValidationStatus(status)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &record.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode payload for row %d: %w", record.RowNumber, err)
			}
		}
		if len(rawPayload) > 0 {
			if err := json.Unmarshal(rawPayload, &record.RawPayload); err != nil {
				return nil, fmt.Errorf("failed to decode raw payload for row %d: %w", record.RowNumber, err)
			}
		}
		if len(validationErrors) > 0 {
			if err := json.Unmarshal(validationErrors, &record.ValidationErrors); err != nil {
				return nil, fmt.Errorf("failed to decode validation errors for row %d: %w", record.RowNumber, err)
			}
		}
		if len(dashboards) > 0 {
			if err := json.Unmarshal(dashboards, &record.Dashboards); err != nil {
				return nil, fmt.Errorf("failed to decode dashboards for row %d: %w", record.RowNumber, err)
			}
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate standardized records: %w", rowsErr)
	}
	return records, nil
}

func (r *recordRepository) CountByFile(ctx context.Context, fileID uuid.UUID) (int, int, error) {
	var total, failed int
	if err := r.db.QueryRow(
		ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE validation_status = 'failed')
		 FROM standardized_records
		 WHERE file_id = $1`,
		fileID,
	).Scan(&total, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to count standardized records: %w", err)
	}
	return total, failed, nil
}
