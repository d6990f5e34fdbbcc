package repository

import (
	"context"
	"fmt"

	"github.com/foreko/ingest/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type dashboardRepository struct {
	db DB
}

// NewDashboardRepository creates a repository for per-dashboard sync state.
func NewDashboardRepository(db DB) DashboardRepository {
	return &dashboardRepository{db: db}
}

// UpsertSync records the latest sync outcome for one (company, dashboard)
// pair. Each dashboard row is independent so one failing sync never blocks
// the others. Record counts accumulate across processing runs; status and
// error message always reflect the latest run.
func (r *dashboardRepository) UpsertSync(ctx context.Context, sync domain.DashboardSyncStatus) error {
	_, err := r.db.Exec(
		ctx,
		`INSERT INTO dashboard_sync_status (id, company_id, dashboard, status,
			records_processed, records_created, error_message, last_sync_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (company_id, dashboard) DO UPDATE
		 SET status = EXCLUDED.status,
		     records_processed = dashboard_sync_status.records_processed + EXCLUDED.records_processed,
		     records_created = dashboard_sync_status.records_created + EXCLUDED.records_created,
		     error_message = EXCLUDED.error_message,
		     last_sync_at = now(),
		     updated_at = now()`,
		sync.ID,
		sync.CompanyID,
		sync.Dashboard,
		string(sync.Status),
		sync.RecordsProcessed,
		sync.RecordsCreated,
		sync.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dashboard sync status: %w", err)
	}
	return nil
}

func (r *dashboardRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]domain.DashboardSyncStatus, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, company_id, dashboard, status, records_processed, records_created,
			error_message, last_sync_at, updated_at
		 FROM dashboard_sync_status
		 WHERE company_id = $1
		 ORDER BY dashboard ASC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboard sync status: %w", err)
	}
	defer rows.Close()

	syncs := []domain.DashboardSyncStatus{}
	for rows.Next() {
		var (
			sync         domain.DashboardSyncStatus
			status       string
			errorMessage pgtype.Text
		)
		if scanErr := rows.Scan(
			&sync.ID,
			&sync.CompanyID,
			&sync.Dashboard,
			&status,
			&sync.RecordsProcessed,
			&sync.RecordsCreated,
			&errorMessage,
			&sync.LastSyncAt,
			&sync.UpdatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan dashboard sync status: %w", scanErr)
		}

		sync.Status = domain.SyncStatus(status)
		if errorMessage.Valid {
			sync.ErrorMessage = &errorMessage.String
		}
		syncs = append(syncs, sync)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate dashboard sync status: %w", rowsErr)
	}
	return syncs, nil
}
