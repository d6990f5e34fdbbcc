package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/foreko/ingest/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const fileColumns = `id, company_id, uploaded_by, file_name, byte_size, file_type, content_hash,
	entity_type, row_count, column_count, quality_score, storage_key, status, error_message,
	analyzed_at, confirmed_at, processed_at, created_at, updated_at`

type fileRepository struct {
	db DB
}

// NewFileRepository creates a repository for uploaded file metadata.
func NewFileRepository(db DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) WithDB(db DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file domain.UploadedFile) (domain.UploadedFile, error) {
	row := r.db.QueryRow(
		ctx,
		`INSERT INTO uploaded_files (id, company_id, uploaded_by, file_name, byte_size, file_type,
			content_hash, entity_type, status, storage_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+fileColumns,
		file.ID,
		file.CompanyID,
		file.UploadedBy,
		file.FileName,
		file.ByteSize,
		file.FileType,
		file.ContentHash,
		file.EntityType,
		string(file.Status),
		file.StorageKey,
	)

	created, err := scanFile(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.UploadedFile{}, ErrDuplicateFile
		}
		return domain.UploadedFile{}, fmt.Errorf("failed to create uploaded file: %w", err)
	}
	return created, nil
}

func (r *fileRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.UploadedFile, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT `+fileColumns+` FROM uploaded_files WHERE id = $1`,
		id,
	)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UploadedFile{}, ErrNotFound
		}
		return domain.UploadedFile{}, fmt.Errorf("failed to get uploaded file: %w", err)
	}
	return file, nil
}

func (r *fileRepository) FindByContentHash(ctx context.Context, companyID uuid.UUID, contentHash string) (domain.UploadedFile, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT `+fileColumns+`
		 FROM uploaded_files
		 WHERE company_id = $1 AND content_hash = $2`,
		companyID,
		contentHash,
	)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UploadedFile{}, ErrNotFound
		}
		return domain.UploadedFile{}, fmt.Errorf("failed to look up file by content hash: %w", err)
	}
	return file, nil
}

func (r *fileRepository) ListByCompany(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]domain.UploadedFile, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT `+fileColumns+`
		 FROM uploaded_files
		 WHERE company_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		companyID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploaded files: %w", err)
	}
	defer rows.Close()

	files := []domain.UploadedFile{}
	for rows.Next() {
		file, scanErr := scanFile(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan uploaded file: %w", scanErr)
		}
		files = append(files, file)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate uploaded files: %w", rowsErr)
	}
	return files, nil
}

func (r *fileRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []domain.FileStatus, to domain.FileStatus) error {
	expected := make([]string, len(from))
	for i, s := range from {
		expected[i] = string(s)
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE uploaded_files
		 SET status = $2,
		     analyzed_at  = CASE WHEN $2 = 'mapping_required' THEN now() ELSE analyzed_at END,
		     confirmed_at = CASE WHEN $2 = 'mapping_confirmed' THEN now() ELSE confirmed_at END,
		     processed_at = CASE WHEN $2 IN ('completed', 'completed_with_errors') THEN now() ELSE processed_at END,
		     updated_at = now()
		 WHERE id = $1 AND status = ANY($3)`,
		id,
		string(to),
		expected,
	)
	if err != nil {
		return fmt.Errorf("failed to transition file status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *fileRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE uploaded_files
		 SET status = 'failed', error_message = $2, updated_at = now()
		 WHERE id = $1
		   AND status NOT IN ('completed', 'completed_with_errors', 'cancelled')`,
		id,
		message,
	)
	if err != nil {
		return fmt.Errorf("failed to mark file failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *fileRepository) SetCounts(ctx context.Context, id uuid.UUID, rowCount, columnCount int) error {
	_, err := r.db.Exec(
		ctx,
		`UPDATE uploaded_files
		 SET row_count = $2, column_count = $3, updated_at = now()
		 WHERE id = $1`,
		id,
		rowCount,
		columnCount,
	)
	if err != nil {
		return fmt.Errorf("failed to set file counts: %w", err)
	}
	return nil
}

func (r *fileRepository) SetStorageKey(ctx context.Context, id uuid.UUID, key string) error {
	_, err := r.db.Exec(
		ctx,
		`UPDATE uploaded_files SET storage_key = $2, updated_at = now() WHERE id = $1`,
		id,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to set storage key: %w", err)
	}
	return nil
}

func (r *fileRepository) SetEntityType(ctx context.Context, id uuid.UUID, entityType string) error {
	_, err := r.db.Exec(
		ctx,
		`UPDATE uploaded_files SET entity_type = $2, updated_at = now() WHERE id = $1`,
		id,
		entityType,
	)
	if err != nil {
		return fmt.Errorf("failed to set entity type: %w", err)
	}
	return nil
}

func (r *fileRepository) CompleteProcessing(ctx context.Context, id uuid.UUID, status domain.FileStatus, qualityScore int) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE uploaded_files
		 SET status = $2, quality_score = $3, processed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'processing'`,
		id,
		string(status),
		qualityScore,
	)
	if err != nil {
		return fmt.Errorf("failed to complete processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *fileRepository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE uploaded_files
		 SET status = 'uploaded',
		     error_message = NULL,
		     quality_score = NULL,
		     analyzed_at = NULL,
		     confirmed_at = NULL,
		     processed_at = NULL,
		     updated_at = now()
		 WHERE id = $1 AND status = 'failed'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to reset file for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func scanFile(row pgx.Row) (domain.UploadedFile, error) {
	var (
		file         domain.UploadedFile
		status       string
		qualityScore pgtype.Int4
		errorMessage pgtype.Text
		analyzedAt   pgtype.Timestamptz
		confirmedAt  pgtype.Timestamptz
		processedAt  pgtype.Timestamptz
	)
	if err := row.Scan(
		&file.ID,
		&file.CompanyID,
		&file.UploadedBy,
		&file.FileName,
		&file.ByteSize,
		&file.FileType,
		&file.ContentHash,
		&file.EntityType,
		&file.RowCount,
		&file.ColumnCount,
		&qualityScore,
		&file.StorageKey,
		&status,
		&errorMessage,
		&analyzedAt,
		&confirmedAt,
		&processedAt,
		&file.CreatedAt,
		&file.UpdatedAt,
	); err != nil {
		return domain.UploadedFile{}, err
	}

	file.Status = domain.FileStatus(status)
	if qualityScore.Valid {
		value := int(qualityScore.Int32)
		file.QualityScore = &value
	}
	if errorMessage.Valid {
		file.ErrorMessage = &errorMessage.String
	}
	if analyzedAt.Valid {
		file.AnalyzedAt = &analyzedAt.Time
	}
	if confirmedAt.Valid {
		file.ConfirmedAt = &confirmedAt.Time
	}
	if processedAt.Valid {
		file.ProcessedAt = &processedAt.Time
	}
	return file, nil
}
