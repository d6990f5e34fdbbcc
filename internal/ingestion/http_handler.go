package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Handler exposes file upload as an HTTP endpoint.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a POST endpoint.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	companyID, err := uuid.Parse(strings.TrimSpace(r.FormValue("companyId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid company id: %v", err), http.StatusBadRequest)
		return
	}
	uploadedBy, err := uuid.Parse(strings.TrimSpace(r.FormValue("uploadedBy")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid uploader id: %v", err), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.service.Upload(r.Context(), Request{
		CompanyID:  companyID,
		UploadedBy: uploadedBy,
		FileName:   header.Filename,
		EntityType: strings.TrimSpace(r.FormValue("entityType")),
		Data:       bytes.NewReader(data),
	})
	if err != nil {
		writeUploadError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func writeUploadError(w http.ResponseWriter, err error) {
	var dup *DuplicateError
	switch {
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":            "identical file already uploaded",
			"existing_file_id": dup.Existing.ID,
			"existing_status":  dup.Existing.Status,
		})
	case errors.Is(err, ErrFileTooLarge), errors.Is(err, ErrUnsupportedFormat):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
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
