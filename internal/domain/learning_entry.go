package domain

import (
	"time"

	"github.com/google/uuid"
)

// LearningEntry accumulates confirmation history for a (entity type, source
// column, target field) triple. Entries scoped to a company bias future
// suggestions for that company; global entries apply to everyone.
type LearningEntry struct {
	ID           uuid.UUID  `json:"id"`
	CompanyID    *uuid.UUID `json:"company_id,omitempty"` // nil means global
	EntityType   string     `json:"entity_type"`
	SourceColumn string     `json:"source_column"`
	TargetField  string     `json:"target_field"`
	SuccessCount int        `json:"success_count"`
	TotalCount   int        `json:"total_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SuccessRate returns the observed confirmation rate in [0,1].
func (e LearningEntry) SuccessRate() float64 {
	if e.TotalCount == 0 {
		return 0
	}
	return float64(e.SuccessCount) / float64(e.TotalCount)
}

// Global reports whether the entry applies across companies.
func (e LearningEntry) Global() bool {
	return e.CompanyID == nil
}
