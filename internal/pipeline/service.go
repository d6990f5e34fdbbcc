// Package pipeline orchestrates the file lifecycle: analysis, mapping
// confirmation, background standardization, cancellation and retry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/foreko/ingest/internal/dashboard"
	"github.com/foreko/ingest/internal/domain"
	"github.com/foreko/ingest/internal/ingestion"
	"github.com/foreko/ingest/internal/mapping"
	"github.com/foreko/ingest/internal/repository"
	"github.com/foreko/ingest/internal/standardize"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errFileNotRunnable = errors.New("file is no longer runnable")

// Service drives uploaded files through the pipeline. Status transitions are
// compare-and-set in the database, so concurrent triggers for the same file
// resolve to exactly one worker.
type Service struct {
	fileRepo    repository.FileRepository
	rowRepo     repository.RawRowRepository
	mappingRepo repository.MappingRepository
	fieldRepo   repository.StandardFieldRepository
	recordRepo  repository.RecordRepository
	errorRepo   repository.ProcessingErrorRepository

	suggester *mapping.Suggester
	confirmer *mapping.Confirmer
	engine    *standardize.Engine
	fanout    *dashboard.Fanout

	processTimeout time.Duration
	logger         *zap.Logger

	workerCancels sync.Map // map[uuid.UUID]context.CancelFunc
	workerWg      sync.WaitGroup
}

// Option customizes the pipeline service.
type Option func(*Service)

// WithProcessTimeout bounds how long one file may spend in processing.
func WithProcessTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.processTimeout = timeout
		}
	}
}

// NewService wires the pipeline orchestrator.
func NewService(
	fileRepo repository.FileRepository,
	rowRepo repository.RawRowRepository,
	mappingRepo repository.MappingRepository,
	fieldRepo repository.StandardFieldRepository,
	recordRepo repository.RecordRepository,
	errorRepo repository.ProcessingErrorRepository,
	suggester *mapping.Suggester,
	confirmer *mapping.Confirmer,
	engine *standardize.Engine,
	fanout *dashboard.Fanout,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &Service{
		fileRepo:       fileRepo,
		rowRepo:        rowRepo,
		mappingRepo:    mappingRepo,
		fieldRepo:      fieldRepo,
		recordRepo:     recordRepo,
		errorRepo:      errorRepo,
		suggester:      suggester,
		confirmer:      confirmer,
		engine:         engine,
		fanout:         fanout,
		processTimeout: 10 * time.Minute,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Analyze profiles the stored rows of a file and persists one mapping
// suggestion per column, leaving the file in mapping_required. Re-analyzing a
// file that already awaits confirmation replaces its suggestions.
func (s *Service) Analyze(ctx context.Context, fileID uuid.UUID, entityTypeOverride string) ([]domain.MappingSuggestion, error) {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if err := s.fileRepo.TransitionStatus(ctx, fileID,
		[]domain.FileStatus{domain.FileStatusUploaded, domain.FileStatusMappingRequired},
		domain.FileStatusAnalyzing); err != nil {
		return nil, err
	}

	if entityTypeOverride != "" && entityTypeOverride != file.EntityType {
		if err := s.fileRepo.SetEntityType(ctx, fileID, entityTypeOverride); err != nil {
			return nil, err
		}
		file.EntityType = entityTypeOverride
	}

	suggestions, err := s.analyze(ctx, file)
	if err != nil {
		if markErr := s.fileRepo.MarkFailed(ctx, fileID, truncateError(err)); markErr != nil {
			s.logger.Error("failed to mark file failed after analysis error",
				zap.String("file_id", fileID.String()),
				zap.Error(markErr))
		}
		return nil, err
	}

	if err := s.fileRepo.TransitionStatus(ctx, fileID,
		[]domain.FileStatus{domain.FileStatusAnalyzing},
		domain.FileStatusMappingRequired); err != nil {
		return nil, err
	}

	s.logger.Info("file analyzed",
		zap.String("file_id", fileID.String()),
		zap.String("entity_type", file.EntityType),
		zap.Int("columns", len(suggestions)))
	return suggestions, nil
}

func (s *Service) analyze(ctx context.Context, file domain.UploadedFile) ([]domain.MappingSuggestion, error) {
	rows, err := s.rowRepo.ListByFile(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("file %s has no stored rows", file.ID)
	}

	profiles := ingestion.ProfilesFromRows(rows)
	suggestions, err := s.suggester.Suggest(ctx, file.CompanyID, file.EntityType, profiles)
	if err != nil {
		return nil, err
	}

	// Replace, not append: re-analysis discards the previous suggestion set.
	if err := s.mappingRepo.DeleteByFile(ctx, file.ID); err != nil {
		return nil, err
	}
	for _, suggestion := range suggestions {
		m := domain.NewColumnMapping(file.ID, suggestion.SourceColumn, suggestion.TargetField,
			suggestion.Confidence, suggestion.MatchType)
		if _, err := s.mappingRepo.Upsert(ctx, m); err != nil {
			return nil, err
		}
	}
	return suggestions, nil
}

// ConfirmMappings applies the user's decisions and, when autoProcess is set,
// immediately queues standardization.
func (s *Service) ConfirmMappings(ctx context.Context, fileID uuid.UUID, confirmations []mapping.Confirmation, autoProcess bool) ([]domain.ColumnMapping, error) {
	confirmed, err := s.confirmer.Confirm(ctx, fileID, confirmations)
	if err != nil {
		return nil, err
	}
	if autoProcess {
		if err := s.Process(ctx, fileID); err != nil {
			return confirmed, err
		}
	}
	return confirmed, nil
}

// Process claims the file for standardization and runs it in the background.
// The mapping_confirmed -> processing transition is the lease: a second
// caller gets ErrStatusConflict.
func (s *Service) Process(ctx context.Context, fileID uuid.UUID) error {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return err
	}

	if err := s.fileRepo.TransitionStatus(ctx, fileID,
		[]domain.FileStatus{domain.FileStatusMappingConfirmed},
		domain.FileStatusProcessing); err != nil {
		return err
	}

	s.launchWorker(file)
	return nil
}

func (s *Service) launchWorker(file domain.UploadedFile) {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	ctx := baseCtx
	cancelFunc := baseCancel
	if s.processTimeout > 0 {
		timeoutCtx, timeoutCancel := context.WithTimeout(baseCtx, s.processTimeout)
		ctx = timeoutCtx
		cancelFunc = func() {
			timeoutCancel()
			baseCancel()
		}
	}
	s.workerCancels.Store(file.ID, cancelFunc)
	s.workerWg.Add(1)
	go func() {
		defer func() {
			cancelFunc()
			s.workerCancels.Delete(file.ID)
			s.workerWg.Done()
		}()
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				s.logger.Error("panic while processing file",
					zap.String("file_id", file.ID.String()),
					zap.Any("panic", rec))
				s.failFile(context.Background(), file.ID, err)
			}
		}()
		if err := s.runProcessing(ctx, file); err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				s.logger.Info("processing cancelled", zap.String("file_id", file.ID.String()))
			case errors.Is(err, errFileNotRunnable):
				s.logger.Info("file no longer runnable, skipping", zap.String("file_id", file.ID.String()))
			default:
				s.failFile(ctx, file.ID, err)
			}
		}
	}()
}

// Wait blocks until all in-flight workers finish. Used on shutdown.
func (s *Service) Wait() {
	s.workerWg.Wait()
}

func (s *Service) failFile(ctx context.Context, fileID uuid.UUID, err error) {
	if err == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	message := truncateError(err)
	procErr := domain.NewProcessingError(fileID, nil, domain.ErrorTypeSystem, message, domain.SeverityCritical)
	if recordErr := s.errorRepo.Record(ctx, procErr); recordErr != nil {
		s.logger.Error("failed to record processing error",
			zap.String("file_id", fileID.String()),
			zap.Error(recordErr))
	}
	if markErr := s.fileRepo.MarkFailed(ctx, fileID, message); markErr != nil {
		s.logger.Error("failed to mark file failed",
			zap.String("file_id", fileID.String()),
			zap.Error(markErr),
			zap.NamedError("original", err))
		return
	}
	s.logger.Warn("file processing failed",
		zap.String("file_id", fileID.String()),
		zap.Error(err))
}

func (s *Service) runProcessing(ctx context.Context, file domain.UploadedFile) error {
	rows, err := s.rowRepo.ListByFile(ctx, file.ID)
	if err != nil {
		return err
	}
	mappings, err := s.mappingRepo.ListConfirmedByFile(ctx, file.ID)
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		return fmt.Errorf("file %s has no confirmed mappings", file.ID)
	}
	fields, err := s.fieldRepo.ListByDomain(ctx, file.EntityType)
	if err != nil {
		return err
	}

	outcome, err := s.engine.Process(ctx, standardize.Input{
		File:     file,
		Rows:     rows,
		Mappings: mappings,
		Fields:   fields,
	})
	if err != nil {
		return err
	}

	if err := s.recordRepo.CreateBatch(ctx, outcome.Records); err != nil {
		return err
	}
	if err := s.errorRepo.RecordBatch(ctx, outcome.Errors); err != nil {
		return err
	}
	if err := s.rowRepo.MarkProcessed(ctx, file.ID); err != nil {
		return err
	}

	finalStatus := domain.FileStatusCompleted
	if outcome.FailedRows > 0 || outcome.WarningRows > 0 {
		finalStatus = domain.FileStatusCompletedWithErrors
	}
	if err := s.fileRepo.CompleteProcessing(ctx, file.ID, finalStatus, outcome.QualityScore); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return errFileNotRunnable
		}
		return err
	}

	created := len(outcome.Records) - outcome.FailedRows
	if _, err := s.fanout.Sync(ctx, file.CompanyID, file.EntityType, len(outcome.Records), created); err != nil {
		// Records are already committed; sync failures are reported but do
		// not undo processing.
		s.logger.Warn("dashboard fan-out incomplete",
			zap.String("file_id", file.ID.String()),
			zap.Error(err))
	}

	s.logger.Info("file processed",
		zap.String("file_id", file.ID.String()),
		zap.String("status", string(finalStatus)),
		zap.Int("records", len(outcome.Records)),
		zap.Int("warnings", outcome.WarningRows),
		zap.Int("failures", outcome.FailedRows),
		zap.Int("quality_score", outcome.QualityScore))
	return nil
}

// Cancel stops an in-flight file. Terminal files cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, fileID uuid.UUID) (domain.UploadedFile, error) {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	if file.Status.Terminal() || file.Status == domain.FileStatusFailed {
		return domain.UploadedFile{}, fmt.Errorf("%w: file is %s", repository.ErrStatusConflict, file.Status)
	}

	if err := s.fileRepo.TransitionStatus(ctx, fileID,
		[]domain.FileStatus{
			domain.FileStatusUploaded,
			domain.FileStatusAnalyzing,
			domain.FileStatusMappingRequired,
			domain.FileStatusMappingConfirmed,
			domain.FileStatusProcessing,
		},
		domain.FileStatusCancelled); err != nil {
		return domain.UploadedFile{}, err
	}

	if cancel, ok := s.workerCancels.LoadAndDelete(fileID); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
	}

	s.logger.Info("file cancelled", zap.String("file_id", fileID.String()))
	return s.fileRepo.GetByID(ctx, fileID)
}

// MarkCompleted moves a processing file straight to completed without waiting
// for its worker. Records and quality bookkeeping stay as they are.
func (s *Service) MarkCompleted(ctx context.Context, fileID uuid.UUID) (domain.UploadedFile, error) {
	if err := s.fileRepo.TransitionStatus(ctx, fileID,
		[]domain.FileStatus{domain.FileStatusProcessing},
		domain.FileStatusCompleted); err != nil {
		return domain.UploadedFile{}, err
	}

	if cancel, ok := s.workerCancels.LoadAndDelete(fileID); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
	}

	s.logger.Info("file marked completed", zap.String("file_id", fileID.String()))
	return s.fileRepo.GetByID(ctx, fileID)
}

// Retry moves a failed file back to uploaded and clears its suggestion set so
// the pipeline starts over from analysis. Stored raw rows are reused; the
// original bytes are not needed again.
func (s *Service) Retry(ctx context.Context, fileID uuid.UUID) (domain.UploadedFile, error) {
	if err := s.fileRepo.ResetForRetry(ctx, fileID); err != nil {
		return domain.UploadedFile{}, err
	}
	if err := s.mappingRepo.DeleteByFile(ctx, fileID); err != nil {
		return domain.UploadedFile{}, err
	}

	s.logger.Info("file reset for retry", zap.String("file_id", fileID.String()))
	return s.fileRepo.GetByID(ctx, fileID)
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 512
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
