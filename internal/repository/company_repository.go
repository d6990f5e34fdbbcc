package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/foreko/ingest/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type companyRepository struct {
	db DB
}

// NewCompanyRepository creates a repository for tenant records.
func NewCompanyRepository(db DB) CompanyRepository {
	return &companyRepository{db: db}
}

func (r *companyRepository) Create(ctx context.Context, company domain.Company) (domain.Company, error) {
	row := r.db.QueryRow(
		ctx,
		`INSERT INTO companies (id, name, plan)
		 VALUES ($1, $2, $3)
		 RETURNING id, name, plan, created_at, updated_at`,
		company.ID,
		company.Name,
		company.Plan,
	)

	var created domain.Company
	if err := row.Scan(&created.ID, &created.Name, &created.Plan, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return domain.Company{}, fmt.Errorf("failed to create company: %w", err)
	}
	return created, nil
}

func (r *companyRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Company, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT id, name, plan, created_at, updated_at FROM companies WHERE id = $1`,
		id,
	)

	var company domain.Company
	if err := row.Scan(&company.ID, &company.Name, &company.Plan, &company.CreatedAt, &company.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Company{}, ErrNotFound
		}
		return domain.Company{}, fmt.Errorf("failed to get company: %w", err)
	}
	return company, nil
}

func (r *companyRepository) List(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, plan, created_at, updated_at FROM companies ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	companies := []domain.Company{}
	for rows.Next() {
		var company domain.Company
		if scanErr := rows.Scan(&company.ID, &company.Name, &company.Plan, &company.CreatedAt, &company.UpdatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan company: %w", scanErr)
		}
		companies = append(companies, company)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate companies: %w", rowsErr)
	}
	return companies, nil
}
