package repository

import (
	"context"
	"fmt"

	"github.com/foreko/ingest/internal/domain"

	"github.com/google/uuid"
)

type learningRepository struct {
	db DB
}

// NewLearningRepository creates a repository for mapping confirmation history.
func NewLearningRepository(db DB) LearningRepository {
	return &learningRepository{db: db}
}

func (r *learningRepository) WithDB(db DB) LearningRepository {
	return &learningRepository{db: db}
}

func (r *learningRepository) RecordOutcome(ctx context.Context, companyID *uuid.UUID, entityType, sourceColumn, targetField string, success bool) error {
	successIncrement := 0
	if success {
		successIncrement = 1
	}

	_, err := r.db.Exec(
		ctx,
		`INSERT INTO learning_entries (id, company_id, entity_type, source_column, target_field,
			success_count, total_count)
		 VALUES ($1, $2, $3, $4, $5, $6, 1)
		 ON CONFLICT (company_id, entity_type, source_column, target_field) DO UPDATE
		 SET success_count = learning_entries.success_count + $6,
		     total_count = learning_entries.total_count + 1,
		     updated_at = now()`,
		uuid.New(),
		companyID,
		entityType,
		domain.NormalizeColumnName(sourceColumn),
		targetField,
		successIncrement,
	)
	if err != nil {
		return fmt.Errorf("failed to record mapping outcome: %w", err)
	}
	return nil
}

func (r *learningRepository) ListFor(ctx context.Context, companyID uuid.UUID, entityType string) ([]domain.LearningEntry, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, company_id, entity_type, source_column, target_field,
			success_count, total_count, created_at, updated_at
		 FROM learning_entries
		 WHERE entity_type = $1 AND (company_id = $2 OR company_id IS NULL)
		 ORDER BY company_id NULLS LAST, total_count DESC`,
		entityType,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list learning entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.LearningEntry{}
	for rows.Next() {
		var entry domain.LearningEntry
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.CompanyID,
			&entry.EntityType,
			&entry.SourceColumn,
			&entry.TargetField,
			&entry.SuccessCount,
			&entry.TotalCount,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan learning entry: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate learning entries: %w", rowsErr)
	}
	return entries, nil
}
