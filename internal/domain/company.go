package domain

import (
	"time"

	"github.com/google/uuid"
)

// Company represents a tenant in the system. Files, mappings, learning data
// and dashboard syncs are all scoped to a company.
type Company struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCompany creates a new company with immutable pattern
func NewCompany(name, plan string) Company {
	now := time.Now()
	return Company{
		ID:        uuid.New(),
		Name:      name,
		Plan:      plan,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WithName returns a new company with updated name
func (c Company) WithName(name string) Company {
	return Company{
		ID:        c.ID,
		Name:      name,
		Plan:      c.Plan,
		CreatedAt: c.CreatedAt,
		UpdatedAt: time.Now(),
	}
}

// WithPlan returns a new company with updated billing plan
func (c Company) WithPlan(plan string) Company {
	return Company{
		ID:        c.ID,
		Name:      c.Name,
		Plan:      plan,
		CreatedAt: c.CreatedAt,
		UpdatedAt: time.Now(),
	}
}
