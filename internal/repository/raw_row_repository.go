package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/foreko/ingest/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type rawRowRepository struct {
	db DB
}

// NewRawRowRepository creates a repository for parsed input rows.
func NewRawRowRepository(db DB) RawRowRepository {
	return &rawRowRepository{db: db}
}

func (r *rawRowRepository) CreateBatch(ctx context.Context, rows []domain.RawRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		values, err := json.Marshal(row.Values)
		if err != nil {
			return fmt.Errorf("failed to encode row %d values: %w", row.RowNumber, err)
		}
		batch.Queue(
			`INSERT INTO raw_rows (id, file_id, row_number, row_values, row_hash, is_header, processed)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			row.ID,
			row.FileID,
			row.RowNumber,
			values,
			row.RowHash,
			row.IsHeader,
			row.Processed,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert raw row batch: %w", err)
		}
	}
	return nil
}

func (r *rawRowRepository) ListByFile(ctx context.Context, fileID uuid.UUID) ([]domain.RawRow, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, file_id, row_number, row_values, row_hash, is_header, processed, created_at
		 FROM raw_rows
		 WHERE file_id = $1
		 ORDER BY row_number ASC`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw rows: %w", err)
	}
	defer rows.Close()

	result := []domain.RawRow{}
	for rows.Next() {
		var (
			row    domain.RawRow
			values []byte
		)
		if scanErr := rows.Scan(
			&row.ID,
			&row.FileID,
			&row.RowNumber,
			&values,
			&row.RowHash,
			&row.IsHeader,
			&row.Processed,
			&row.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan raw row: %w", scanErr)
		}
		if len(values) > 0 {
			if err := json.Unmarshal(values, &row.Values); err != nil {
				return nil, fmt.Errorf("failed to decode row %d values: %w", row.RowNumber, err)
			}
		}
		result = append(result, row)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate raw rows: %w", rowsErr)
	}
	return result, nil
}

func (r *rawRowRepository) MarkProcessed(ctx context.Context, fileID uuid.UUID) error {
	_, err := r.db.Exec(
		ctx,
		`UPDATE raw_rows SET processed = TRUE WHERE file_id = $1`,
		fileID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark raw rows processed: %w", err)
	}
	return nil
}

func (r *rawRowRepository) CountByFile(ctx context.Context, fileID uuid.UUID) (int, error) {
	var count int
	if err := r.db.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM raw_rows WHERE file_id = $1`,
		fileID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count raw rows: %w", err)
	}
	return count, nil
}
