package repository

import (
	"context"
	"fmt"

	"github.com/foreko/ingest/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const mappingColumns = `id, file_id, source_column, target_field, confidence, match_type,
	transform, user_confirmed, created_at, updated_at`

type mappingRepository struct {
	db DB
}

// NewMappingRepository creates a repository for column mappings.
func NewMappingRepository(db DB) MappingRepository {
	return &mappingRepository{db: db}
}

func (r *mappingRepository) WithDB(db DB) MappingRepository {
	return &mappingRepository{db: db}
}

// Upsert inserts the mapping or, when the source column is already mapped for
// the file, replaces the target side of the row.
func (r *mappingRepository) Upsert(ctx context.Context, mapping domain.ColumnMapping) (domain.ColumnMapping, error) {
	row := r.db.QueryRow(
		ctx,
		`INSERT INTO column_mappings (id, file_id, source_column, target_field, confidence,
			match_type, transform, user_confirmed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (file_id, source_column) DO UPDATE
		 SET target_field = EXCLUDED.target_field,
		     confidence = EXCLUDED.confidence,
		     match_type = EXCLUDED.match_type,
		     transform = EXCLUDED.transform,
		     user_confirmed = EXCLUDED.user_confirmed,
		     updated_at = now()
		 RETURNING `+mappingColumns,
		mapping.ID,
		mapping.FileID,
		mapping.SourceColumn,
		mapping.TargetField,
		mapping.Confidence,
		string(mapping.MatchType),
		mapping.Transform,
		mapping.UserConfirmed,
	)

	saved, err := scanMapping(row)
	if err != nil {
		return domain.ColumnMapping{}, fmt.Errorf("failed to upsert column mapping: %w", err)
	}
	return saved, nil
}

func (r *mappingRepository) ListByFile(ctx context.Context, fileID uuid.UUID) ([]domain.ColumnMapping, error) {
	return r.list(ctx, fileID, false)
}

func (r *mappingRepository) ListConfirmedByFile(ctx context.Context, fileID uuid.UUID) ([]domain.ColumnMapping, error) {
	return r.list(ctx, fileID, true)
}

func (r *mappingRepository) list(ctx context.Context, fileID uuid.UUID, confirmedOnly bool) ([]domain.ColumnMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM column_mappings WHERE file_id = $1`
	if confirmedOnly {
		query += ` AND user_confirmed = TRUE`
	}
	query += ` ORDER BY source_column ASC`

	rows, err := r.db.Query(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list column mappings: %w", err)
	}
	defer rows.Close()

	mappings := []domain.ColumnMapping{}
	for rows.Next() {
		mapping, scanErr := scanMapping(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan column mapping: %w", scanErr)
		}
		mappings = append(mappings, mapping)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate column mappings: %w", rowsErr)
	}
	return mappings, nil
}

func (r *mappingRepository) DeleteByFile(ctx context.Context, fileID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM column_mappings WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete column mappings: %w", err)
	}
	return nil
}

func scanMapping(row pgx.Row) (domain.ColumnMapping, error) {
	var (
		mapping   domain.ColumnMapping
		matchType string
	)
	if err := row.Scan(
		&mapping.ID,
		&mapping.FileID,
		&mapping.SourceColumn,
		&mapping.TargetField,
		&mapping.Confidence,
		&matchType,
		&mapping.Transform,
		&mapping.UserConfirmed,
		&mapping.CreatedAt,
		&mapping.UpdatedAt,
	); err != nil {
		return domain.ColumnMapping{}, err
	}
	mapping.MatchType = domain.MatchType(matchType)
	return mapping, nil
}
