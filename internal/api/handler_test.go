package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/foreko/ingest/internal/auth"
	"github.com/foreko/ingest/internal/dashboard"
	"github.com/foreko/ingest/internal/domain"
	"github.com/foreko/ingest/internal/ingestion"
	"github.com/foreko/ingest/internal/mapping"
	"github.com/foreko/ingest/internal/pipeline"
	"github.com/foreko/ingest/internal/repository"
	"github.com/foreko/ingest/internal/standardize"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type stubFileRepo struct {
	files map[uuid.UUID]domain.UploadedFile
}

func newStubFileRepo(files ...domain.UploadedFile) *stubFileRepo {
	r := &stubFileRepo{files: make(map[uuid.UUID]domain.UploadedFile)}
	for _, f := range files {
		r.files[f.ID] = f
	}
	return r
}

func (r *stubFileRepo) Create(_ context.Context, file domain.UploadedFile) (domain.UploadedFile, error) {
	for _, existing := range r.files {
		if existing.CompanyID == file.CompanyID && existing.ContentHash == file.ContentHash {
			return domain.UploadedFile{}, repository.ErrDuplicateFile
		}
	}
	r.files[file.ID] = file
	return file, nil
}

func (r *stubFileRepo) GetByID(_ context.Context, id uuid.UUID) (domain.UploadedFile, error) {
	file, ok := r.files[id]
	if !ok {
		return domain.UploadedFile{}, repository.ErrNotFound
	}
	return file, nil
}

func (r *stubFileRepo) FindByContentHash(_ context.Context, companyID uuid.UUID, hash string) (domain.UploadedFile, error) {
	for _, file := range r.files {
		if file.CompanyID == companyID && file.ContentHash == hash {
			return file, nil
		}
	}
	return domain.UploadedFile{}, repository.ErrNotFound
}

func (r *stubFileRepo) ListByCompany(_ context.Context, companyID uuid.UUID, _, _ int) ([]domain.UploadedFile, error) {
	var out []domain.UploadedFile
	for _, file := range r.files {
		if file.CompanyID == companyID {
			out = append(out, file)
		}
	}
	return out, nil
}

func (r *stubFileRepo) TransitionStatus(_ context.Context, id uuid.UUID, from []domain.FileStatus, to domain.FileStatus) error {
	file, ok := r.files[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, expected := range from {
		if file.Status == expected {
			file.Status = to
			r.files[id] = file
			return nil
		}
	}
	return repository.ErrStatusConflict
}

func (r *stubFileRepo) MarkFailed(_ context.Context, id uuid.UUID, message string) error {
	file := r.files[id]
	file.Status = domain.FileStatusFailed
	file.ErrorMessage = &message
	r.files[id] = file
	return nil
}

func (r *stubFileRepo) SetCounts(_ context.Context, id uuid.UUID, rowCount, columnCount int) error {
	file := r.files[id]
	file.RowCount = rowCount
	file.ColumnCount = columnCount
	r.files[id] = file
	return nil
}

func (r *stubFileRepo) SetStorageKey(_ context.Context, _ uuid.UUID, _ string) error { return nil }

func (r *stubFileRepo) SetEntityType(_ context.Context, id uuid.UUID, entityType string) error {
	file := r.files[id]
	file.EntityType = entityType
	r.files[id] = file
	return nil
}

func (r *stubFileRepo) CompleteProcessing(_ context.Context, id uuid.UUID, status domain.FileStatus, quality int) error {
	file := r.files[id]
	file.Status = status
	file.QualityScore = &quality
	r.files[id] = file
	return nil
}

func (r *stubFileRepo) ResetForRetry(_ context.Context, id uuid.UUID) error {
	file := r.files[id]
	if file.Status != domain.FileStatusFailed {
		return repository.ErrStatusConflict
	}
	file.Status = domain.FileStatusUploaded
	file.ErrorMessage = nil
	r.files[id] = file
	return nil
}

func (r *stubFileRepo) WithDB(_ repository.DB) repository.FileRepository { return r }

type stubRowRepo struct {
	rows map[uuid.UUID][]domain.RawRow
}

func newStubRowRepo() *stubRowRepo {
	return &stubRowRepo{rows: make(map[uuid.UUID][]domain.RawRow)}
}

func (r *stubRowRepo) CreateBatch(_ context.Context, rows []domain.RawRow) error {
	for _, row := range rows {
		r.rows[row.FileID] = append(r.rows[row.FileID], row)
	}
	return nil
}

func (r *stubRowRepo) ListByFile(_ context.Context, fileID uuid.UUID) ([]domain.RawRow, error) {
	return r.rows[fileID], nil
}

func (r *stubRowRepo) MarkProcessed(_ context.Context, _ uuid.UUID) error { return nil }

func (r *stubRowRepo) CountByFile(_ context.Context, fileID uuid.UUID) (int, error) {
	return len(r.rows[fileID]), nil
}

type stubMappingRepo struct {
	byFile map[uuid.UUID][]domain.ColumnMapping
}

func newStubMappingRepo() *stubMappingRepo {
	return &stubMappingRepo{byFile: make(map[uuid.UUID][]domain.ColumnMapping)}
}

func (r *stubMappingRepo) Upsert(_ context.Context, mapping domain.ColumnMapping) (domain.ColumnMapping, error) {
	mappings := r.byFile[mapping.FileID]
	for i, existing := range mappings {
		if existing.SourceColumn == mapping.SourceColumn {
			mappings[i] = mapping
			return mapping, nil
		}
	}
	r.byFile[mapping.FileID] = append(mappings, mapping)
	return mapping, nil
}

func (r *stubMappingRepo) ListByFile(_ context.Context, fileID uuid.UUID) ([]domain.ColumnMapping, error) {
	return r.byFile[fileID], nil
}

func (r *stubMappingRepo) ListConfirmedByFile(_ context.Context, fileID uuid.UUID) ([]domain.ColumnMapping, error) {
	var out []domain.ColumnMapping
	for _, m := range r.byFile[fileID] {
		if m.UserConfirmed {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stubMappingRepo) DeleteByFile(_ context.Context, fileID uuid.UUID) error {
	delete(r.byFile, fileID)
	return nil
}

func (r *stubMappingRepo) WithDB(_ repository.DB) repository.MappingRepository { return r }

type stubFieldRepo struct{}

func (stubFieldRepo) ListByDomain(_ context.Context, businessDomain string) ([]domain.StandardFieldDefinition, error) {
	return domain.CatalogForDomain(domain.DefaultCatalog(), businessDomain), nil
}

func (stubFieldRepo) ListAll(_ context.Context) ([]domain.StandardFieldDefinition, error) {
	return domain.DefaultCatalog(), nil
}

type stubLearningRepo struct{}

func (stubLearningRepo) RecordOutcome(_ context.Context, _ *uuid.UUID, _, _, _ string, _ bool) error {
	return nil
}

func (stubLearningRepo) ListFor(_ context.Context, _ uuid.UUID, _ string) ([]domain.LearningEntry, error) {
	return nil, nil
}

func (r stubLearningRepo) WithDB(_ repository.DB) repository.LearningRepository { return r }

type stubRecordRepo struct {
	records map[uuid.UUID][]domain.StandardizedRecord
}

func newStubRecordRepo() *stubRecordRepo {
	return &stubRecordRepo{records: make(map[uuid.UUID][]domain.StandardizedRecord)}
}

func (r *stubRecordRepo) CreateBatch(_ context.Context, records []domain.StandardizedRecord) error {
	for _, record := range records {
		r.records[record.FileID] = append(r.records[record.FileID], record)
	}
	return nil
}

func (r *stubRecordRepo) ListByFile(_ context.Context, fileID uuid.UUID, limit, offset int) ([]domain.StandardizedRecord, error) {
	records := r.records[fileID]
	if offset >= len(records) {
		return nil, nil
	}
	records = records[offset:]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *stubRecordRepo) CountByFile(_ context.Context, fileID uuid.UUID) (int, int, error) {
	return len(r.records[fileID]), 0, nil
}

type stubErrorRepo struct{}

func (stubErrorRepo) Record(_ context.Context, _ domain.ProcessingError) error        { return nil }
func (stubErrorRepo) RecordBatch(_ context.Context, _ []domain.ProcessingError) error { return nil }
func (stubErrorRepo) ListByFile(_ context.Context, _ uuid.UUID, _, _ int) ([]domain.ProcessingError, error) {
	return nil, nil
}
func (stubErrorRepo) CountByFile(_ context.Context, _ uuid.UUID) (int, error) { return 0, nil }

type stubSyncRepo struct {
	upserts []domain.DashboardSyncStatus
}

func (r *stubSyncRepo) UpsertSync(_ context.Context, sync domain.DashboardSyncStatus) error {
	r.upserts = append(r.upserts, sync)
	return nil
}

func (r *stubSyncRepo) ListByCompany(_ context.Context, _ uuid.UUID) ([]domain.DashboardSyncStatus, error) {
	return r.upserts, nil
}

type stubCompanyRepo struct {
	companies []domain.Company
}

func (r *stubCompanyRepo) Create(_ context.Context, company domain.Company) (domain.Company, error) {
	r.companies = append(r.companies, company)
	return company, nil
}

func (r *stubCompanyRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Company, error) {
	for _, company := range r.companies {
		if company.ID == id {
			return company, nil
		}
	}
	return domain.Company{}, repository.ErrNotFound
}

func (r *stubCompanyRepo) List(_ context.Context) ([]domain.Company, error) {
	return r.companies, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

type testEnv struct {
	handler     http.Handler
	pipeline    *pipeline.Service
	companyRepo *stubCompanyRepo
	fileRepo    *stubFileRepo
	rowRepo     *stubRowRepo
	mappingRepo *stubMappingRepo
	recordRepo  *stubRecordRepo
	syncRepo    *stubSyncRepo
}

func newTestEnv(files ...domain.UploadedFile) *testEnv {
	env := &testEnv{
		companyRepo: &stubCompanyRepo{},
		fileRepo:    newStubFileRepo(files...),
		rowRepo:     newStubRowRepo(),
		mappingRepo: newStubMappingRepo(),
		recordRepo:  newStubRecordRepo(),
		syncRepo:    &stubSyncRepo{},
	}

	suggester := mapping.NewSuggester(stubFieldRepo{}, stubLearningRepo{}, nil, mapping.DefaultConfidences(), nil)
	confirmer := mapping.NewConfirmer(stubTxRunner{}, env.fileRepo, env.mappingRepo, stubLearningRepo{},
		stubFieldRepo{}, standardize.IsValidTransform, nil)
	engine := standardize.NewEngine(dashboard.RoutesFor, standardize.Options{RowConcurrency: 2, WarningErrorCeiling: 2})
	fanout := dashboard.NewFanout(env.syncRepo, nil)

	env.pipeline = pipeline.NewService(
		env.fileRepo, env.rowRepo, env.mappingRepo, stubFieldRepo{},
		env.recordRepo, stubErrorRepo{},
		suggester, confirmer, engine, fanout, nil)

	uploadService := ingestion.NewService(env.fileRepo, env.rowRepo, nil, ingestion.Options{}, nil)
	env.handler = auth.Middleware(NewHandler(
		env.pipeline, uploadService, env.companyRepo, env.fileRepo, env.recordRepo, env.syncRepo, nil))
	return env
}

func uploadRequest(t *testing.T, companyID, uploadedBy uuid.UUID, fileName, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("companyId", companyID.String())
	_ = writer.WriteField("uploadedBy", uploadedBy.String())
	_ = writer.WriteField("entityType", "orders")
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

const ordersCSV = "Order No,Client,Placed,Total\nORD-001,acme corp,2024-01-15,100.00\nORD-002,globex,2024-01-16,250.00\n"

func TestUploadEndpoint(t *testing.T) {
	env := newTestEnv()
	companyID, uploadedBy := uuid.New(), uuid.New()

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, uploadRequest(t, companyID, uploadedBy, "orders.csv", ordersCSV))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var result ingestion.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.RowCount != 2 || len(result.Columns) != 4 {
		t.Errorf("result: rows=%d columns=%d", result.RowCount, len(result.Columns))
	}

	// Same bytes again: 409 referencing the original.
	rec2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec2, uploadRequest(t, companyID, uploadedBy, "orders.csv", ordersCSV))
	if rec2.Code != http.StatusConflict {
		t.Fatalf("duplicate status %d: %s", rec2.Code, rec2.Body.String())
	}
	var dup map[string]any
	if err := json.Unmarshal(rec2.Body.Bytes(), &dup); err != nil {
		t.Fatalf("decode duplicate response: %v", err)
	}
	if dup["existing_file_id"] != result.File.ID.String() {
		t.Errorf("existing_file_id: %v", dup["existing_file_id"])
	}
}

func seededFile(env *testEnv, status domain.FileStatus) domain.UploadedFile {
	file := domain.NewUploadedFile(uuid.New(), uuid.New(), "orders.csv", 128, "csv", uuid.NewString(), "orders")
	file.Status = status
	env.fileRepo.files[file.ID] = file
	env.rowRepo.rows[file.ID] = []domain.RawRow{
		domain.NewRawRow(file.ID, 1, map[string]string{
			"order_no": "ORD-001", "client": "acme", "placed": "2024-01-15", "total": "100",
		}, "h1"),
	}
	return file
}

func TestAnalyzeEndpoint(t *testing.T) {
	env := newTestEnv()
	file := seededFile(env, domain.FileStatusUploaded)

	req := httptest.NewRequest(http.MethodPost, "/analyze/"+file.ID.String(), nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Suggestions []domain.MappingSuggestion `json:"suggestions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Suggestions) != 4 {
		t.Errorf("suggestions: %d", len(payload.Suggestions))
	}

	// Analyzing a processing file conflicts.
	busy := seededFile(env, domain.FileStatusProcessing)
	rec2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/analyze/"+busy.ID.String(), nil))
	if rec2.Code != http.StatusConflict {
		t.Errorf("busy analyze status %d", rec2.Code)
	}
}

func TestConfirmMappingMissingRequiredFields(t *testing.T) {
	env := newTestEnv()
	file := seededFile(env, domain.FileStatusMappingRequired)

	body, _ := json.Marshal(confirmRequest{Mappings: []mapping.Confirmation{
		{SourceColumn: "order_no", TargetField: "order_id"},
	}})
	req := httptest.NewRequest(http.MethodPost, "/confirm-mapping/"+file.ID.String(), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		MissingFields []string `json:"missing_fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.MissingFields) != 3 {
		t.Errorf("missing fields: %v", payload.MissingFields)
	}
}

func TestConfirmAndProcessFlow(t *testing.T) {
	env := newTestEnv()
	file := seededFile(env, domain.FileStatusMappingRequired)

	body, _ := json.Marshal(confirmRequest{
		Mappings: []mapping.Confirmation{
			{SourceColumn: "order_no", TargetField: "order_id"},
			{SourceColumn: "client", TargetField: "customer_name"},
			{SourceColumn: "placed", TargetField: "order_date", Transform: "date"},
			{SourceColumn: "total", TargetField: "total_amount", Transform: "number"},
		},
		AutoProcess: true,
	})
	req := httptest.NewRequest(http.MethodPost, "/confirm-mapping/"+file.ID.String(), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	env.pipeline.Wait()

	if got := env.fileRepo.files[file.ID].Status; got != domain.FileStatusCompleted {
		t.Fatalf("file status: %s", got)
	}
	if len(env.recordRepo.records[file.ID]) != 1 {
		t.Errorf("records: %d", len(env.recordRepo.records[file.ID]))
	}
	if len(env.syncRepo.upserts) != 3 {
		t.Errorf("dashboard syncs: %d", len(env.syncRepo.upserts))
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv()
	file := seededFile(env, domain.FileStatusMappingRequired)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/"+file.ID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var report pipeline.StatusReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if report.Progress != 40 || report.Step == "" {
		t.Errorf("report: progress=%d step=%q", report.Progress, report.Step)
	}

	rec2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/status/"+uuid.NewString(), nil))
	if rec2.Code != http.StatusNotFound {
		t.Errorf("unknown file status %d", rec2.Code)
	}
}

func TestActionCancel(t *testing.T) {
	env := newTestEnv()
	file := seededFile(env, domain.FileStatusMappingRequired)

	body := strings.NewReader(`{"action": "cancel"}`)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status/"+file.ID.String(), body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := env.fileRepo.files[file.ID].Status; got != domain.FileStatusCancelled {
		t.Errorf("file status: %s", got)
	}
}

func TestActionAliases(t *testing.T) {
	env := newTestEnv()

	// cancel_processing behaves exactly like cancel.
	file := seededFile(env, domain.FileStatusMappingRequired)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status/"+file.ID.String(),
		strings.NewReader(`{"action": "cancel_processing"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel_processing status %d: %s", rec.Code, rec.Body.String())
	}
	if got := env.fileRepo.files[file.ID].Status; got != domain.FileStatusCancelled {
		t.Errorf("file status: %s", got)
	}

	// retry_processing resets a failed file.
	failed := seededFile(env, domain.FileStatusFailed)
	rec2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/status/"+failed.ID.String(),
		strings.NewReader(`{"action": "retry_processing"}`)))
	if rec2.Code != http.StatusOK {
		t.Fatalf("retry_processing status %d: %s", rec2.Code, rec2.Body.String())
	}
	if got := env.fileRepo.files[failed.ID].Status; got != domain.FileStatusUploaded {
		t.Errorf("file status after retry: %s", got)
	}
}

func TestActionMarkCompleted(t *testing.T) {
	env := newTestEnv()
	file := seededFile(env, domain.FileStatusProcessing)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status/"+file.ID.String(),
		strings.NewReader(`{"action": "mark_completed"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if got := env.fileRepo.files[file.ID].Status; got != domain.FileStatusCompleted {
		t.Errorf("file status: %s", got)
	}

	// Only processing files can be force-completed.
	idle := seededFile(env, domain.FileStatusMappingRequired)
	rec2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/status/"+idle.ID.String(),
		strings.NewReader(`{"action": "mark_completed"}`)))
	if rec2.Code != http.StatusConflict {
		t.Errorf("mark_completed on idle file status %d", rec2.Code)
	}
}

func TestUploadRejectsBadInputWith400(t *testing.T) {
	env := newTestEnv()
	companyID, uploadedBy := uuid.New(), uuid.New()

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, uploadRequest(t, companyID, uploadedBy, "notes.txt", "free text"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported type status %d, want 400", rec.Code)
	}
}

func TestRecordsCSVExport(t *testing.T) {
	env := newTestEnv()
	file := seededFile(env, domain.FileStatusCompleted)
	env.recordRepo.records[file.ID] = []domain.StandardizedRecord{
		{
			ID: uuid.New(), FileID: file.ID, CompanyID: file.CompanyID, RowNumber: 1,
			ValidationStatus: domain.ValidationPassed, QualityScore: 100,
			Payload: map[string]any{"order_id": "ORD-001", "total_amount": 100.5},
		},
		{
			ID: uuid.New(), FileID: file.ID, CompanyID: file.CompanyID, RowNumber: 2,
			ValidationStatus: domain.ValidationWarning, QualityScore: 75,
			Payload: map[string]any{"order_id": "ORD-002", "total_amount": -5.0},
		},
	}

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/files/%s/records.csv", file.ID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type: %s", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv lines: %v", lines)
	}
	if lines[0] != "row_number,validation_status,quality_score,order_id,total_amount" {
		t.Errorf("header: %s", lines[0])
	}
	if lines[1] != "1,passed,100,ORD-001,100.5" {
		t.Errorf("row 1: %s", lines[1])
	}
}

func TestCreateAndListCompanies(t *testing.T) {
	env := newTestEnv()

	body := strings.NewReader(`{"name": "Acme Corp", "plan": "growth"}`)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Company
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Name != "Acme Corp" || created.Plan != "growth" {
		t.Errorf("company: %+v", created)
	}

	rec2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/companies", nil))
	if rec2.Code != http.StatusOK {
		t.Fatalf("list status %d: %s", rec2.Code, rec2.Body.String())
	}
	var listed struct {
		Companies []domain.Company `json:"companies"`
	}
	if err := json.Unmarshal(rec2.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Companies) != 1 {
		t.Errorf("companies: %d", len(listed.Companies))
	}

	// Name is mandatory.
	rec3 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec3, httptest.NewRequest(http.MethodPost, "/companies", strings.NewReader(`{"plan": "starter"}`)))
	if rec3.Code != http.StatusBadRequest {
		t.Errorf("nameless company status %d", rec3.Code)
	}
}

func TestCompanyScopeEnforced(t *testing.T) {
	env := newTestEnv()
	file := seededFile(env, domain.FileStatusMappingRequired)

	req := httptest.NewRequest(http.MethodGet, "/status/"+file.ID.String(), nil)
	req.Header.Set(auth.CompanyHeader, uuid.NewString())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rec.Code)
	}

	// Matching scope passes.
	req2 := httptest.NewRequest(http.MethodGet, "/status/"+file.ID.String(), nil)
	req2.Header.Set(auth.CompanyHeader, file.CompanyID.String())
	rec2 := httptest.NewRecorder()
	env.handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("scoped status %d: %s", rec2.Code, rec2.Body.String())
	}
}
