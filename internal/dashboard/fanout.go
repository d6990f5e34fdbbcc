// Package dashboard routes standardized records to the downstream dashboards
// and records per-dashboard sync bookkeeping.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/foreko/ingest/internal/domain"
	"github.com/foreko/ingest/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// routeTable is the fixed entity-type → dashboards lookup. Order matters:
// sync rows and record dashboard lists follow it.
var routeTable = map[string][]string{
	"inventory": {"inventory_management", "supply_chain", "executive_dashboard"},
	"orders":    {"order_management", "sales_analytics", "executive_dashboard"},
	"financial": {"financial_reporting", "cash_flow", "executive_dashboard"},
	"customers": {"customer_analytics", "sales_analytics"},
	"suppliers": {"supplier_management", "supply_chain"},
}

// RoutesFor returns the dashboards fed by an entity type. Unknown entity
// types route nowhere.
func RoutesFor(entityType string) []string {
	routes, ok := routeTable[entityType]
	if !ok {
		return nil
	}
	out := make([]string, len(routes))
	copy(out, routes)
	return out
}

// Fanout upserts sync status rows after a processing run.
type Fanout struct {
	syncRepo repository.DashboardRepository
	logger   *zap.Logger
}

// NewFanout creates a dashboard fan-out service.
func NewFanout(syncRepo repository.DashboardRepository, logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{syncRepo: syncRepo, logger: logger}
}

// Result reports the per-dashboard outcome of one fan-out run.
type Result struct {
	Dashboard string
	Status    domain.SyncStatus
	Err       error
}

// Sync records one sync-status row per target dashboard. A failing dashboard
// does not block the others; partial success is a valid terminal state.
func (f *Fanout) Sync(ctx context.Context, companyID uuid.UUID, entityType string, processed, created int) ([]Result, error) {
	routes := RoutesFor(entityType)
	if len(routes) == 0 {
		return nil, fmt.Errorf("no dashboards registered for entity type %q", entityType)
	}

	results := make([]Result, 0, len(routes))
	var failures int
	for _, dash := range routes {
		sync := domain.DashboardSyncStatus{
			ID:               uuid.New(),
			CompanyID:        companyID,
			Dashboard:        dash,
			Status:           domain.SyncStatusCompleted,
			RecordsProcessed: processed,
			RecordsCreated:   created,
			LastSyncAt:       time.Now(),
		}

		err := f.syncRepo.UpsertSync(ctx, sync)
		if err != nil {
			failures++
			message := err.Error()
			sync.Status = domain.SyncStatusFailed
			sync.ErrorMessage = &message
			f.logger.Warn("dashboard sync failed",
				zap.String("dashboard", dash),
				zap.String("company_id", companyID.String()),
				zap.Error(err))
			// Best effort: persist the failure marker so operators can see it.
			if markErr := f.syncRepo.UpsertSync(ctx, sync); markErr != nil {
				f.logger.Warn("unable to record failed sync status",
					zap.String("dashboard", dash),
					zap.Error(markErr))
			}
		}
		results = append(results, Result{Dashboard: dash, Status: sync.Status, Err: err})
	}

	if failures == len(routes) {
		return results, fmt.Errorf("all %d dashboard syncs failed for entity type %q", failures, entityType)
	}
	return results, nil
}
