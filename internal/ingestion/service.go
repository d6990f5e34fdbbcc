package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/foreko/ingest/internal/domain"
	"github.com/foreko/ingest/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrFileTooLarge is returned when the upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")
	// ErrDuplicateUpload wraps the original file so callers can point at it.
	ErrDuplicateUpload = errors.New("identical file already uploaded")
)

// DuplicateError carries the previously uploaded file alongside
// ErrDuplicateUpload.
type DuplicateError struct {
	Existing domain.UploadedFile
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("identical file already uploaded as %s", e.Existing.ID)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicateUpload }

// Archiver stores the original upload bytes for later retrieval. Archival is
// best effort; the pipeline runs from the parsed rows in Postgres.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Options tunes upload acceptance.
type Options struct {
	MaxUploadBytes   int64
	AllowedFileTypes []string
}

// Service accepts uploads, parses them, and persists the file record plus raw
// rows. The file stays in the uploaded state; analysis runs separately.
type Service struct {
	fileRepo repository.FileRepository
	rowRepo  repository.RawRowRepository
	archiver Archiver
	opts     Options
	logger   *zap.Logger
}

// NewService creates a new upload service.
func NewService(
	fileRepo repository.FileRepository,
	rowRepo repository.RawRowRepository,
	archiver Archiver,
	opts Options,
	logger *zap.Logger,
) *Service {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 * 1024 * 1024
	}
	if len(opts.AllowedFileTypes) == 0 {
		opts.AllowedFileTypes = []string{"csv", "xlsx"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		fileRepo: fileRepo,
		rowRepo:  rowRepo,
		archiver: archiver,
		opts:     opts,
		logger:   logger,
	}
}

// Request describes one upload.
type Request struct {
	CompanyID  uuid.UUID
	UploadedBy uuid.UUID
	FileName   string
	EntityType string
	Data       io.Reader
}

// Result returns the stored file plus parse metadata.
type Result struct {
	File     domain.UploadedFile `json:"file"`
	Columns  []ColumnProfile     `json:"columns"`
	RowCount int                 `json:"row_count"`
}

// Upload validates, parses and persists one uploaded file.
func (s *Service) Upload(ctx context.Context, req Request) (Result, error) {
	if req.CompanyID == uuid.Nil {
		return Result{}, errors.New("company id is required")
	}
	if req.UploadedBy == uuid.Nil {
		return Result{}, errors.New("uploader id is required")
	}
	if strings.TrimSpace(req.FileName) == "" {
		return Result{}, errors.New("file name is required")
	}
	if req.Data == nil {
		return Result{}, errors.New("data reader is required")
	}

	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(req.FileName)), ".")
	if !s.typeAllowed(fileType) {
		return Result{}, fmt.Errorf("%w: .%s", ErrUnsupportedFormat, fileType)
	}

	payload, err := io.ReadAll(io.LimitReader(req.Data, s.opts.MaxUploadBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return Result{}, errors.New("file is empty")
	}
	if int64(len(payload)) > s.opts.MaxUploadBytes {
		return Result{}, ErrFileTooLarge
	}

	contentHash := hashBytes(payload)
	if existing, err := s.fileRepo.FindByContentHash(ctx, req.CompanyID, contentHash); err == nil {
		return Result{}, &DuplicateError{Existing: existing}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Result{}, fmt.Errorf("failed to check for duplicate upload: %w", err)
	}

	table, err := ParseTable(req.FileName, payload)
	if err != nil {
		return Result{}, err
	}

	file := domain.NewUploadedFile(
		req.CompanyID,
		req.UploadedBy,
		req.FileName,
		int64(len(payload)),
		fileType,
		contentHash,
		strings.TrimSpace(req.EntityType),
	)
	file.RowCount = len(table.Rows)
	file.ColumnCount = len(table.Headers)

	created, err := s.fileRepo.Create(ctx, file)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateFile) {
			// Concurrent upload of the same content won the insert race.
			if existing, lookupErr := s.fileRepo.FindByContentHash(ctx, req.CompanyID, contentHash); lookupErr == nil {
				return Result{}, &DuplicateError{Existing: existing}
			}
			return Result{}, ErrDuplicateUpload
		}
		return Result{}, err
	}

	rows := buildRawRows(created.ID, table)
	if err := s.rowRepo.CreateBatch(ctx, rows); err != nil {
		if markErr := s.fileRepo.MarkFailed(ctx, created.ID, "failed to persist parsed rows"); markErr != nil {
			s.logger.Error("failed to mark file failed", zap.String("file_id", created.ID.String()), zap.Error(markErr))
		}
		return Result{}, fmt.Errorf("failed to persist raw rows: %w", err)
	}

	if err := s.fileRepo.SetCounts(ctx, created.ID, len(table.Rows), len(table.Headers)); err != nil {
		s.logger.Warn("failed to update file counts", zap.String("file_id", created.ID.String()), zap.Error(err))
	}
	created.RowCount = len(table.Rows)
	created.ColumnCount = len(table.Headers)

	if s.archiver != nil {
		key := fmt.Sprintf("%s/%d-%s", req.CompanyID, created.CreatedAt.UnixMilli(), filepath.Base(req.FileName))
		if storedKey, archiveErr := s.archiver.Put(ctx, key, payload, contentTypeFor(fileType)); archiveErr != nil {
			s.logger.Warn("failed to archive upload",
				zap.String("file_id", created.ID.String()),
				zap.Error(archiveErr))
		} else if err := s.fileRepo.SetStorageKey(ctx, created.ID, storedKey); err != nil {
			s.logger.Warn("failed to record storage key", zap.String("file_id", created.ID.String()), zap.Error(err))
		} else {
			created.StorageKey = storedKey
		}
	}

	s.logger.Info("file uploaded",
		zap.String("file_id", created.ID.String()),
		zap.String("company_id", req.CompanyID.String()),
		zap.Int("rows", created.RowCount),
		zap.Int("columns", created.ColumnCount))

	return Result{File: created, Columns: table.Profiles, RowCount: created.RowCount}, nil
}

func (s *Service) typeAllowed(fileType string) bool {
	for _, allowed := range s.opts.AllowedFileTypes {
		if strings.EqualFold(allowed, fileType) {
			return true
		}
	}
	return false
}

func buildRawRows(fileID uuid.UUID, table ParsedTable) []domain.RawRow {
	rows := make([]domain.RawRow, 0, len(table.Rows))
	for idx, raw := range table.Rows {
		values := make(map[string]string, len(table.Headers))
		for colIdx, header := range table.Headers {
			if colIdx < len(raw) {
				values[header] = strings.TrimSpace(raw[colIdx])
			} else {
				values[header] = ""
			}
		}
		rows = append(rows, domain.NewRawRow(fileID, idx+1, values, hashRow(values)))
	}
	return rows
}

func hashBytes(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// hashRow hashes the row's values in key order so identical rows produce
// identical hashes regardless of map iteration order.
func hashRow(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(values[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func contentTypeFor(fileType string) string {
	switch fileType {
	case "csv":
		return "text/csv"
	case "xlsx", "xlsm":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
