// Package api is the HTTP surface of the ingestion pipeline.
package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/foreko/ingest/internal/auth"
	"github.com/foreko/ingest/internal/domain"
	"github.com/foreko/ingest/internal/ingestion"
	"github.com/foreko/ingest/internal/llm"
	"github.com/foreko/ingest/internal/mapping"
	"github.com/foreko/ingest/internal/pipeline"
	"github.com/foreko/ingest/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler routes pipeline requests.
type Handler struct {
	pipeline    *pipeline.Service
	upload      http.Handler
	companyRepo repository.CompanyRepository
	fileRepo    repository.FileRepository
	recordRepo  repository.RecordRepository
	syncRepo    repository.DashboardRepository
	logger      *zap.Logger
}

// NewHandler builds the HTTP mux for the service.
func NewHandler(
	pipelineService *pipeline.Service,
	uploadService *ingestion.Service,
	companyRepo repository.CompanyRepository,
	fileRepo repository.FileRepository,
	recordRepo repository.RecordRepository,
	syncRepo repository.DashboardRepository,
	logger *zap.Logger,
) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		pipeline:    pipelineService,
		upload:      ingestion.NewHTTPHandler(uploadService),
		companyRepo: companyRepo,
		fileRepo:    fileRepo,
		recordRepo:  recordRepo,
		syncRepo:    syncRepo,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.Handle("POST /upload", h.upload)
	mux.HandleFunc("POST /analyze/{fileID}", h.analyze)
	mux.HandleFunc("POST /confirm-mapping/{fileID}", h.confirmMapping)
	mux.HandleFunc("GET /status/{fileID}", h.status)
	mux.HandleFunc("POST /status/{fileID}", h.action)
	mux.HandleFunc("GET /files", h.listFiles)
	mux.HandleFunc("GET /files/{fileID}/records", h.listRecords)
	mux.HandleFunc("GET /files/{fileID}/records.csv", h.exportRecords)
	mux.HandleFunc("POST /companies", h.createCompany)
	mux.HandleFunc("GET /companies", h.listCompanies)
	mux.HandleFunc("GET /companies/{companyID}/dashboards", h.listDashboards)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func (h *Handler) fileID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("fileID"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid file id: %v", err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// scopedFile loads the file and enforces the tenant boundary.
func (h *Handler) scopedFile(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := h.fileID(w, r)
	if !ok {
		return uuid.Nil, false
	}
	file, err := h.fileRepo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return uuid.Nil, false
	}
	if err := auth.EnforceCompanyScope(r.Context(), file.CompanyID); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return uuid.Nil, false
	}
	return id, true
}

type analyzeRequest struct {
	EntityType string `json:"entity_type,omitempty"`
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scopedFile(w, r)
	if !ok {
		return
	}

	var req analyzeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	suggestions, err := h.pipeline.Analyze(r.Context(), id, req.EntityType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_id":     id,
		"suggestions": suggestions,
	})
}

type confirmRequest struct {
	Mappings    []mapping.Confirmation `json:"mappings"`
	AutoProcess bool                   `json:"auto_process"`
}

func (h *Handler) confirmMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scopedFile(w, r)
	if !ok {
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	confirmed, err := h.pipeline.ConfirmMappings(r.Context(), id, req.Mappings, req.AutoProcess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_id":  id,
		"mappings": confirmed,
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scopedFile(w, r)
	if !ok {
		return
	}
	report, err := h.pipeline.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type actionRequest struct {
	Action string `json:"action"`
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scopedFile(w, r)
	if !ok {
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "process", "confirm_mapping":
		// confirm_mapping at this endpoint starts processing of a file whose
		// mappings are already confirmed.
		if err := h.pipeline.Process(r.Context(), id); err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"file_id": id, "action": "process"})
	case "cancel", "cancel_processing":
		file, err := h.pipeline.Cancel(r.Context(), id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, file)
	case "retry", "retry_processing":
		file, err := h.pipeline.Retry(r.Context(), id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, file)
	case "mark_completed":
		file, err := h.pipeline.MarkCompleted(r.Context(), id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, file)
	default:
		http.Error(w, fmt.Sprintf("unknown action %q", req.Action), http.StatusBadRequest)
	}
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(r.URL.Query().Get("companyId"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid company id: %v", err), http.StatusBadRequest)
		return
	}
	if err := auth.EnforceCompanyScope(r.Context(), companyID); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	files, err := h.fileRepo.ListByCompany(r.Context(), companyID, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scopedFile(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	records, err := h.recordRepo.ListByFile(r.Context(), id, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file_id": id, "records": records})
}

// exportRecords streams a file's standardized records as CSV. Columns are the
// union of payload keys, sorted, prefixed by row bookkeeping.
func (h *Handler) exportRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scopedFile(w, r)
	if !ok {
		return
	}
	file, err := h.fileRepo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	const pageSize = 500
	records, err := h.recordRepo.ListByFile(r.Context(), id, pageSize, 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(records) == 0 {
		http.Error(w, "file has no standardized records", http.StatusNotFound)
		return
	}

	fieldSet := make(map[string]struct{})
	for _, record := range records {
		for name := range record.Payload {
			fieldSet[name] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for name := range fieldSet {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-records.csv", file.ID)))

	csvWriter := csv.NewWriter(w)
	header := append([]string{"row_number", "validation_status", "quality_score"}, fields...)
	if err := csvWriter.Write(header); err != nil {
		return
	}

	offset := 0
	row := make([]string, len(header))
	for len(records) > 0 {
		for _, record := range records {
			row[0] = strconv.Itoa(record.RowNumber)
			row[1] = string(record.ValidationStatus)
			row[2] = strconv.Itoa(record.QualityScore)
			for i, field := range fields {
				row[3+i] = formatCSVValue(record.Payload[field])
			}
			if err := csvWriter.Write(row); err != nil {
				return
			}
		}
		csvWriter.Flush()
		if len(records) < pageSize {
			break
		}
		offset += pageSize
		records, err = h.recordRepo.ListByFile(r.Context(), id, pageSize, offset)
		if err != nil {
			h.logger.Warn("record export aborted mid-stream",
				zap.String("file_id", id.String()),
				zap.Error(err))
			return
		}
	}
	csvWriter.Flush()
}

type createCompanyRequest struct {
	Name string `json:"name"`
	Plan string `json:"plan"`
}

func (h *Handler) createCompany(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "company name is required", http.StatusBadRequest)
		return
	}
	if req.Plan == "" {
		req.Plan = "starter"
	}

	created, err := h.companyRepo.Create(r.Context(), domain.NewCompany(req.Name, req.Plan))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.companyRepo.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

func (h *Handler) listDashboards(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(r.PathValue("companyID"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid company id: %v", err), http.StatusBadRequest)
		return
	}
	if err := auth.EnforceCompanyScope(r.Context(), companyID); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	syncs, err := h.syncRepo.ListByCompany(r.Context(), companyID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dashboards": syncs})
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var missing *mapping.MissingFieldsError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, repository.ErrStatusConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &missing):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":          "required fields are not mapped",
			"missing_fields": missing.Fields,
		})
	case errors.Is(err, llm.ErrUnauthorized):
		http.Error(w, "mapping model rejected the configured credentials", http.StatusBadGateway)
	case errors.Is(err, llm.ErrModelNotFound):
		http.Error(w, "configured mapping model does not exist", http.StatusBadGateway)
	case errors.Is(err, llm.ErrRateLimited):
		http.Error(w, "mapping model is rate limited, try again shortly", http.StatusServiceUnavailable)
	default:
		h.logger.Error("request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func formatCSVValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
