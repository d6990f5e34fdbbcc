package mapping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/foreko/ingest/internal/domain"
	"github.com/foreko/ingest/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrMissingRequiredFields is returned when confirmations leave required
// standard fields uncovered.
var ErrMissingRequiredFields = errors.New("required fields are not mapped")

// MissingFieldsError lists the uncovered required fields.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("required fields are not mapped: %s", strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error { return ErrMissingRequiredFields }

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Confirmation is one user decision about a source column.
type Confirmation struct {
	SourceColumn string `json:"source_column"`
	TargetField  string `json:"target_field"`
	Transform    string `json:"transform,omitempty"`
}

// Confirmer applies user mapping decisions: it replaces the suggested
// mappings, feeds the learning history, and moves the file to the
// mapping_confirmed state. All of it commits atomically.
type Confirmer struct {
	runner       TxRunner
	fileRepo     repository.FileRepository
	mappingRepo  repository.MappingRepository
	learningRepo repository.LearningRepository
	fieldRepo    repository.StandardFieldRepository
	transforms   func(string) bool
	logger       *zap.Logger
}

// NewConfirmer creates a confirmer. validTransform reports whether a named
// transform is supported; nil accepts only the empty transform.
func NewConfirmer(
	runner TxRunner,
	fileRepo repository.FileRepository,
	mappingRepo repository.MappingRepository,
	learningRepo repository.LearningRepository,
	fieldRepo repository.StandardFieldRepository,
	validTransform func(string) bool,
	logger *zap.Logger,
) *Confirmer {
	if validTransform == nil {
		validTransform = func(name string) bool { return name == "" }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Confirmer{
		runner:       runner,
		fileRepo:     fileRepo,
		mappingRepo:  mappingRepo,
		learningRepo: learningRepo,
		fieldRepo:    fieldRepo,
		transforms:   validTransform,
		logger:       logger,
	}
}

// Confirm validates and persists the user's mapping decisions for one file.
func (c *Confirmer) Confirm(ctx context.Context, fileID uuid.UUID, confirmations []Confirmation) ([]domain.ColumnMapping, error) {
	if len(confirmations) == 0 {
		return nil, errors.New("at least one mapping confirmation is required")
	}

	file, err := c.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Status != domain.FileStatusMappingRequired {
		return nil, fmt.Errorf("%w: file is %s, expected %s",
			repository.ErrStatusConflict, file.Status, domain.FileStatusMappingRequired)
	}

	fields, err := c.fieldRepo.ListByDomain(ctx, file.EntityType)
	if err != nil {
		return nil, fmt.Errorf("failed to load field dictionary: %w", err)
	}
	fieldsByName := make(map[string]domain.StandardFieldDefinition, len(fields))
	for _, field := range fields {
		fieldsByName[field.Name] = field
	}

	seen := make(map[string]struct{}, len(confirmations))
	covered := make(map[string]struct{}, len(confirmations))
	for _, confirmation := range confirmations {
		source := domain.NormalizeColumnName(confirmation.SourceColumn)
		if source == "" {
			return nil, errors.New("confirmation with empty source column")
		}
		if _, dup := seen[source]; dup {
			return nil, fmt.Errorf("duplicate confirmation for column %q", confirmation.SourceColumn)
		}
		seen[source] = struct{}{}

		if confirmation.TargetField == "" {
			return nil, fmt.Errorf("column %q has no target field", confirmation.SourceColumn)
		}
		if !c.transforms(confirmation.Transform) {
			return nil, fmt.Errorf("unknown transform %q for column %q", confirmation.Transform, confirmation.SourceColumn)
		}
		covered[confirmation.TargetField] = struct{}{}
	}

	var missing []string
	for _, field := range fields {
		if !field.Required {
			continue
		}
		if _, ok := covered[field.Name]; !ok {
			missing = append(missing, field.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingFieldsError{Fields: missing}
	}

	suggested, err := c.mappingRepo.ListByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	suggestedByColumn := make(map[string]domain.ColumnMapping, len(suggested))
	for _, m := range suggested {
		suggestedByColumn[domain.NormalizeColumnName(m.SourceColumn)] = m
	}

	var confirmed []domain.ColumnMapping
	err = c.runner.WithTx(ctx, func(tx pgx.Tx) error {
		mappingRepo := c.mappingRepo.WithDB(tx)
		learningRepo := c.learningRepo.WithDB(tx)
		fileRepo := c.fileRepo.WithDB(tx)

		for _, confirmation := range confirmations {
			mapping := buildConfirmedMapping(fileID, confirmation, suggestedByColumn)
			saved, upsertErr := mappingRepo.Upsert(ctx, mapping)
			if upsertErr != nil {
				return upsertErr
			}
			confirmed = append(confirmed, saved)

			if recordErr := c.recordLearning(ctx, learningRepo, file, confirmation, suggestedByColumn); recordErr != nil {
				return recordErr
			}
		}

		return fileRepo.TransitionStatus(ctx, fileID,
			[]domain.FileStatus{domain.FileStatusMappingRequired},
			domain.FileStatusMappingConfirmed)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("mappings confirmed",
		zap.String("file_id", fileID.String()),
		zap.Int("mappings", len(confirmed)))
	return confirmed, nil
}

func buildConfirmedMapping(fileID uuid.UUID, confirmation Confirmation, suggested map[string]domain.ColumnMapping) domain.ColumnMapping {
	prior, had := suggested[domain.NormalizeColumnName(confirmation.SourceColumn)]

	mapping := domain.NewColumnMapping(fileID, confirmation.SourceColumn, confirmation.TargetField, 100, domain.MatchTypeUser)
	if had && prior.TargetField == confirmation.TargetField {
		// User kept the suggestion; keep its provenance.
		mapping.Confidence = prior.Confidence
		mapping.MatchType = prior.MatchType
	}
	mapping.Transform = confirmation.Transform
	mapping.UserConfirmed = true
	return mapping
}

// recordLearning feeds confirmation outcomes into the history: the chosen
// target gets a success, and a rejected suggestion gets a miss so its rate
// decays.
func (c *Confirmer) recordLearning(
	ctx context.Context,
	learningRepo repository.LearningRepository,
	file domain.UploadedFile,
	confirmation Confirmation,
	suggested map[string]domain.ColumnMapping,
) error {
	companyID := file.CompanyID
	if err := learningRepo.RecordOutcome(ctx, &companyID, file.EntityType, confirmation.SourceColumn, confirmation.TargetField, true); err != nil {
		return err
	}

	prior, had := suggested[domain.NormalizeColumnName(confirmation.SourceColumn)]
	if had && prior.TargetField != confirmation.TargetField {
		if err := learningRepo.RecordOutcome(ctx, &companyID, file.EntityType, confirmation.SourceColumn, prior.TargetField, false); err != nil {
			return err
		}
	}
	return nil
}
