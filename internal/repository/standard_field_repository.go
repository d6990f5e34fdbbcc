package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/foreko/ingest/internal/domain"

	"github.com/jackc/pgx/v5"
)

type standardFieldRepository struct {
	db DB
}

// NewStandardFieldRepository creates a read-only repository over the seeded
// field dictionary.
func NewStandardFieldRepository(db DB) StandardFieldRepository {
	return &standardFieldRepository{db: db}
}

func (r *standardFieldRepository) ListByDomain(ctx context.Context, businessDomain string) ([]domain.StandardFieldDefinition, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, domain, name, display_name, data_type, required, aliases, validation
		 FROM standard_fields
		 WHERE domain = $1
		 ORDER BY name ASC`,
		businessDomain,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list standard fields: %w", err)
	}
	return scanFields(rows)
}

func (r *standardFieldRepository) ListAll(ctx context.Context) ([]domain.StandardFieldDefinition, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, domain, name, display_name, data_type, required, aliases, validation
		 FROM standard_fields
		 ORDER BY domain ASC, name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list standard fields: %w", err)
	}
	return scanFields(rows)
}

func scanFields(rows pgx.Rows) ([]domain.StandardFieldDefinition, error) {
	defer rows.Close()

	fields := []domain.StandardFieldDefinition{}
	for rows.Next() {
		var (
			field      domain.StandardFieldDefinition
			dataType   string
			aliases    []byte
			validation []byte
		)
		if err := rows.Scan(
			&field.ID,
			&field.Domain,
			&field.Name,
			&field.DisplayName,
			&dataType,
			&field.Required,
			&aliases,
			&validation,
		); err != nil {
			return nil, fmt.Errorf("failed to scan standard field: %w", err)
		}

		field.Type = domain.FieldType(dataType)
		if len(aliases) > 0 {
			if err := json.Unmarshal(aliases, &field.Aliases); err != nil {
				return nil, fmt.Errorf("failed to decode aliases for %s: %w", field.Name, err)
			}
		}
		if len(validation) > 0 {
			if err := json.Unmarshal(validation, &field.Validation); err != nil {
				return nil, fmt.Errorf("failed to decode validation for %s: %w", field.Name, err)
			}
		}
		fields = append(fields, field)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate standard fields: %w", rowsErr)
	}
	return fields, nil
}
