package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus is the per-dashboard outcome of a fan-out run.
type SyncStatus string

const (
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// DashboardSyncStatus is the fan-out bookkeeping row, upserted per
// (company, dashboard) after each processing run.
type DashboardSyncStatus struct {
	ID               uuid.UUID  `json:"id"`
	CompanyID        uuid.UUID  `json:"company_id"`
	Dashboard        string     `json:"dashboard"`
	Status           SyncStatus `json:"status"`
	RecordsProcessed int        `json:"records_processed"`
	RecordsCreated   int        `json:"records_created"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	LastSyncAt       time.Time  `json:"last_sync_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
