package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/foreko/ingest/internal/domain"

	"github.com/google/uuid"
)

// stubSyncRepo mirrors the store's conflict behavior: counts accumulate per
// (company, dashboard), status and error reflect the latest run.
type stubSyncRepo struct {
	upserts  []domain.DashboardSyncStatus
	totals   map[string]domain.DashboardSyncStatus
	failFor  string
	failAll  bool
	failOnce bool
}

func (r *stubSyncRepo) UpsertSync(_ context.Context, sync domain.DashboardSyncStatus) error {
	if r.failAll {
		return errors.New("sync store unavailable")
	}
	if sync.Dashboard == r.failFor && sync.Status == domain.SyncStatusCompleted {
		return errors.New("dashboard rejected batch")
	}
	r.upserts = append(r.upserts, sync)

	if r.totals == nil {
		r.totals = make(map[string]domain.DashboardSyncStatus)
	}
	total, seen := r.totals[sync.Dashboard]
	if seen {
		sync.RecordsProcessed += total.RecordsProcessed
		sync.RecordsCreated += total.RecordsCreated
	}
	r.totals[sync.Dashboard] = sync
	return nil
}

func (r *stubSyncRepo) ListByCompany(_ context.Context, _ uuid.UUID) ([]domain.DashboardSyncStatus, error) {
	return r.upserts, nil
}

func TestRoutesForOrders(t *testing.T) {
	routes := RoutesFor("orders")
	want := []string{"order_management", "sales_analytics", "executive_dashboard"}
	if len(routes) != len(want) {
		t.Fatalf("routes: %v", routes)
	}
	for i := range want {
		if routes[i] != want[i] {
			t.Errorf("route %d: got %s, want %s", i, routes[i], want[i])
		}
	}
	if RoutesFor("unknown") != nil {
		t.Error("unknown entity type must route nowhere")
	}
}

func TestFanoutRecordsEveryDashboard(t *testing.T) {
	repo := &stubSyncRepo{}
	fanout := NewFanout(repo, nil)
	companyID := uuid.New()

	results, err := fanout.Sync(context.Background(), companyID, "orders", 120, 118)
	if err != nil {
		t.Fatalf("sync returned error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results: %v", results)
	}
	for _, res := range results {
		if res.Status != domain.SyncStatusCompleted || res.Err != nil {
			t.Errorf("dashboard %s: %+v", res.Dashboard, res)
		}
	}
	for _, sync := range repo.upserts {
		if sync.RecordsProcessed != 120 || sync.RecordsCreated != 118 {
			t.Errorf("counts on %s: %+v", sync.Dashboard, sync)
		}
		if sync.CompanyID != companyID {
			t.Errorf("company on %s: %s", sync.Dashboard, sync.CompanyID)
		}
	}
}

func TestFanoutCountsAccumulateAcrossRuns(t *testing.T) {
	repo := &stubSyncRepo{}
	fanout := NewFanout(repo, nil)
	companyID := uuid.New()

	if _, err := fanout.Sync(context.Background(), companyID, "orders", 120, 118); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if _, err := fanout.Sync(context.Background(), companyID, "orders", 30, 30); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	for _, dashboard := range RoutesFor("orders") {
		total := repo.totals[dashboard]
		if total.RecordsProcessed != 150 || total.RecordsCreated != 148 {
			t.Errorf("totals on %s: processed=%d created=%d",
				dashboard, total.RecordsProcessed, total.RecordsCreated)
		}
	}
}

func TestFanoutPartialFailureDoesNotBlockOthers(t *testing.T) {
	repo := &stubSyncRepo{failFor: "sales_analytics"}
	fanout := NewFanout(repo, nil)

	results, err := fanout.Sync(context.Background(), uuid.New(), "orders", 10, 10)
	if err != nil {
		t.Fatalf("partial failure must not fail the run: %v", err)
	}

	byDashboard := map[string]Result{}
	for _, res := range results {
		byDashboard[res.Dashboard] = res
	}
	if res := byDashboard["sales_analytics"]; res.Status != domain.SyncStatusFailed || res.Err == nil {
		t.Errorf("sales_analytics: %+v", res)
	}
	if res := byDashboard["order_management"]; res.Status != domain.SyncStatusCompleted {
		t.Errorf("order_management: %+v", res)
	}
	if res := byDashboard["executive_dashboard"]; res.Status != domain.SyncStatusCompleted {
		t.Errorf("executive_dashboard: %+v", res)
	}

	// Failure marker persisted with its message.
	var markedFailed bool
	for _, sync := range repo.upserts {
		if sync.Dashboard == "sales_analytics" && sync.Status == domain.SyncStatusFailed {
			markedFailed = true
			if sync.ErrorMessage == nil || *sync.ErrorMessage == "" {
				t.Error("failed sync missing error message")
			}
		}
	}
	if !markedFailed {
		t.Error("failed dashboard sync was not recorded")
	}
}

func TestFanoutAllDashboardsFailing(t *testing.T) {
	repo := &stubSyncRepo{failAll: true}
	fanout := NewFanout(repo, nil)

	results, err := fanout.Sync(context.Background(), uuid.New(), "orders", 5, 5)
	if err == nil {
		t.Fatal("expected error when every dashboard sync fails")
	}
	for _, res := range results {
		if res.Status != domain.SyncStatusFailed {
			t.Errorf("dashboard %s: %+v", res.Dashboard, res)
		}
	}
}

func TestFanoutUnknownEntityType(t *testing.T) {
	fanout := NewFanout(&stubSyncRepo{}, nil)
	if _, err := fanout.Sync(context.Background(), uuid.New(), "telemetry", 1, 1); err == nil {
		t.Fatal("expected error for unrouted entity type")
	}
}
