package repository

import (
	"context"
	"errors"

	"github.com/foreko/ingest/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict is returned when a CAS status transition matched no
	// rows, meaning another writer got there first or the transition is
	// illegal for the file's current state.
	ErrStatusConflict = errors.New("file status conflict")
	// ErrDuplicateFile is returned when a company re-uploads identical content.
	ErrDuplicateFile = errors.New("duplicate file content")
)

// DB is the querier shared by *pgxpool.Pool and pgx.Tx so repositories can
// run either standalone or inside a transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// CompanyRepository defines the interface for tenant records.
type CompanyRepository interface {
	Create(ctx context.Context, company domain.Company) (domain.Company, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Company, error)
	List(ctx context.Context) ([]domain.Company, error)
}

// FileRepository defines the interface for uploaded file metadata.
type FileRepository interface {
	Create(ctx context.Context, file domain.UploadedFile) (domain.UploadedFile, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.UploadedFile, error)
	FindByContentHash(ctx context.Context, companyID uuid.UUID, contentHash string) (domain.UploadedFile, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]domain.UploadedFile, error)
	// TransitionStatus performs a compare-and-set move to the target status.
	// It returns ErrStatusConflict when the file is not in any of the
	// expected source states; this doubles as the per-file processing lease.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []domain.FileStatus, to domain.FileStatus) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	SetCounts(ctx context.Context, id uuid.UUID, rowCount, columnCount int) error
	SetStorageKey(ctx context.Context, id uuid.UUID, key string) error
	SetEntityType(ctx context.Context, id uuid.UUID, entityType string) error
	CompleteProcessing(ctx context.Context, id uuid.UUID, status domain.FileStatus, qualityScore int) error
	// ResetForRetry moves a failed file back to uploaded, clearing phase
	// timestamps and the stored error.
	ResetForRetry(ctx context.Context, id uuid.UUID) error
	WithDB(db DB) FileRepository
}

// RawRowRepository stores parsed input rows.
type RawRowRepository interface {
	CreateBatch(ctx context.Context, rows []domain.RawRow) error
	ListByFile(ctx context.Context, fileID uuid.UUID) ([]domain.RawRow, error)
	MarkProcessed(ctx context.Context, fileID uuid.UUID) error
	CountByFile(ctx context.Context, fileID uuid.UUID) (int, error)
}

// StandardFieldRepository reads the field dictionary.
type StandardFieldRepository interface {
	ListByDomain(ctx context.Context, businessDomain string) ([]domain.StandardFieldDefinition, error)
	ListAll(ctx context.Context) ([]domain.StandardFieldDefinition, error)
}

// MappingRepository stores column mappings, unique on (file, source column).
type MappingRepository interface {
	Upsert(ctx context.Context, mapping domain.ColumnMapping) (domain.ColumnMapping, error)
	ListByFile(ctx context.Context, fileID uuid.UUID) ([]domain.ColumnMapping, error)
	ListConfirmedByFile(ctx context.Context, fileID uuid.UUID) ([]domain.ColumnMapping, error)
	DeleteByFile(ctx context.Context, fileID uuid.UUID) error
	// WithDB returns a repository bound to the given querier, used to run
	// upserts inside a caller-owned transaction.
	WithDB(db DB) MappingRepository
}

// LearningRepository accumulates mapping confirmation history.
type LearningRepository interface {
	// RecordOutcome upserts the (entity type, source column, target field)
	// entry, incrementing the total count and, when success is true, the
	// success count. Counts only ever grow.
	RecordOutcome(ctx context.Context, companyID *uuid.UUID, entityType, sourceColumn, targetField string, success bool) error
	// ListFor returns company-scoped entries plus global ones.
	ListFor(ctx context.Context, companyID uuid.UUID, entityType string) ([]domain.LearningEntry, error)
	WithDB(db DB) LearningRepository
}

// RecordRepository stores standardized records.
type RecordRepository interface {
	// CreateBatch writes records, replacing any prior record for the same
	// (file, row number) so reprocessing after a retry is idempotent.
	CreateBatch(ctx context.Context, records []domain.StandardizedRecord) error
	ListByFile(ctx context.Context, fileID uuid.UUID, limit, offset int) ([]domain.StandardizedRecord, error)
	CountByFile(ctx context.Context, fileID uuid.UUID) (total int, failed int, err error)
}

// ProcessingErrorRepository is the append-only error log for a file.
type ProcessingErrorRepository interface {
	Record(ctx context.Context, procErr domain.ProcessingError) error
	RecordBatch(ctx context.Context, procErrs []domain.ProcessingError) error
	ListByFile(ctx context.Context, fileID uuid.UUID, limit, offset int) ([]domain.ProcessingError, error)
	CountByFile(ctx context.Context, fileID uuid.UUID) (int, error)
}

// DashboardRepository upserts per-dashboard sync bookkeeping.
type DashboardRepository interface {
	// UpsertSync adds the run's record counts to the (company, dashboard)
	// totals; status and error message reflect the latest run.
	UpsertSync(ctx context.Context, sync domain.DashboardSyncStatus) error
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]domain.DashboardSyncStatus, error)
}
