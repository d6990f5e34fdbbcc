package standardize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/foreko/ingest/internal/domain"
	"github.com/foreko/ingest/internal/ingestion"
	"github.com/foreko/ingest/pkg/validator"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RouteFunc resolves which dashboards receive records of an entity type.
type RouteFunc func(entityType string) []string

// Options tunes the engine.
type Options struct {
	// RowConcurrency bounds how many rows standardize in parallel.
	RowConcurrency int
	// WarningErrorCeiling is the highest error count still classified as a
	// warning row.
	WarningErrorCeiling int
}

// Engine turns confirmed raw rows into standardized records. It is pure
// computation; persistence belongs to the caller.
type Engine struct {
	validator *validator.FieldValidator
	routes    RouteFunc
	opts      Options
}

// NewEngine creates a standardization engine.
func NewEngine(routes RouteFunc, opts Options) *Engine {
	if opts.RowConcurrency <= 0 {
		opts.RowConcurrency = 8
	}
	if routes == nil {
		routes = func(string) []string { return nil }
	}
	return &Engine{
		validator: validator.NewFieldValidator(),
		routes:    routes,
		opts:      opts,
	}
}

// Input is everything the engine needs for one file.
type Input struct {
	File     domain.UploadedFile
	Rows     []domain.RawRow
	Mappings []domain.ColumnMapping
	Fields   []domain.StandardFieldDefinition
}

// Outcome is the standardization result for one file. Records preserve the
// source row order regardless of processing concurrency.
type Outcome struct {
	Records      []domain.StandardizedRecord
	Errors       []domain.ProcessingError
	QualityScore int
	WarningRows  int
	FailedRows   int
}

type rowResult struct {
	record domain.StandardizedRecord
	errs   []domain.ProcessingError
}

// Process standardizes every raw row of the file.
func (e *Engine) Process(ctx context.Context, input Input) (Outcome, error) {
	if len(input.Mappings) == 0 {
		return Outcome{}, fmt.Errorf("file %s has no confirmed mappings", input.File.ID)
	}

	fieldsByName := make(map[string]domain.StandardFieldDefinition, len(input.Fields))
	for _, field := range input.Fields {
		fieldsByName[field.Name] = field
	}

	dashboards := e.routes(input.File.EntityType)

	results := make([]rowResult, len(input.Rows))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.RowConcurrency)

	for idx, row := range input.Rows {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			results[idx] = e.processRow(input.File, row, input.Mappings, fieldsByName, dashboards)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{
		Records: make([]domain.StandardizedRecord, 0, len(results)),
	}
	for _, result := range results {
		outcome.Records = append(outcome.Records, result.record)
		outcome.Errors = append(outcome.Errors, result.errs...)
		switch result.record.ValidationStatus {
		case domain.ValidationWarning:
			outcome.WarningRows++
		case domain.ValidationFailed:
			outcome.FailedRows++
		}
	}
	// File quality is the share of rows that did not fail, not a mean of
	// per-row scores.
	if len(results) > 0 {
		successful := len(results) - outcome.FailedRows
		outcome.QualityScore = int(math.Round(float64(successful) / float64(len(results)) * 100))
	}
	return outcome, nil
}

func (e *Engine) processRow(
	file domain.UploadedFile,
	row domain.RawRow,
	mappings []domain.ColumnMapping,
	fieldsByName map[string]domain.StandardFieldDefinition,
	dashboards []string,
) rowResult {
	payload := make(map[string]any, len(mappings))
	var fieldErrors []domain.FieldError
	var procErrors []domain.ProcessingError
	populated := 0

	rowNumber := row.RowNumber
	for _, mapping := range mappings {
		raw := strings.TrimSpace(row.Values[mapping.SourceColumn])
		if raw == "" {
			continue
		}
		populated++

		transformed, err := ApplyTransform(mapping.Transform, raw)
		if err != nil {
			fieldErrors = append(fieldErrors, domain.FieldError{
				Field:   mapping.TargetField,
				Message: err.Error(),
				Value:   raw,
			})
			procErr := domain.NewProcessingError(file.ID, &rowNumber, domain.ErrorTypeTransformation, err.Error(), domain.SeverityError)
			procErr.Field = mapping.TargetField
			procErr.Value = raw
			procErrors = append(procErrors, procErr)
			continue
		}

		def, known := fieldsByName[mapping.TargetField]
		if !known {
			// Custom column kept under its own name, no typing applied.
			payload[mapping.TargetField] = transformed
			continue
		}

		typed, err := coerceValue(def.Type, transformed)
		if err != nil {
			fieldErrors = append(fieldErrors, domain.FieldError{
				Field:   mapping.TargetField,
				Message: err.Error(),
				Value:   transformed,
			})
			procErr := domain.NewProcessingError(file.ID, &rowNumber, domain.ErrorTypeValidation, err.Error(), domain.SeverityError)
			procErr.Field = mapping.TargetField
			procErr.Value = transformed
			procErrors = append(procErrors, procErr)
			continue
		}
		payload[mapping.TargetField] = typed
	}

	for _, validationErr := range e.validator.ValidateRecord(payload, fieldsByName) {
		fieldErrors = append(fieldErrors, validationErr)
		procErr := domain.NewProcessingError(file.ID, &rowNumber, domain.ErrorTypeValidation, validationErr.Message, domain.SeverityError)
		procErr.Field = validationErr.Field
		if validationErr.Value != nil {
			procErr.Value = fmt.Sprintf("%v", validationErr.Value)
		}
		procErrors = append(procErrors, procErr)
	}

	status := domain.StatusForErrorCount(len(fieldErrors), e.opts.WarningErrorCeiling)

	completeness := 0.0
	accuracy := 1.0
	if len(mappings) > 0 {
		completeness = float64(populated) / float64(len(mappings))
		accuracy = 1 - float64(len(fieldErrors))/float64(len(mappings))
		if accuracy < 0 {
			accuracy = 0
		}
	}

	record := domain.StandardizedRecord{
		ID:               uuid.New(),
		FileID:           file.ID,
		CompanyID:        file.CompanyID,
		RowNumber:        row.RowNumber,
		ContentHash:      hashPayload(payload),
		EntityType:       file.EntityType,
		Payload:          payload,
		RawPayload:       row.Values,
		ValidationStatus: status,
		ValidationErrors: fieldErrors,
		QualityScore:     domain.BlendQualityScore(completeness, accuracy),
		Dashboards:       dashboards,
		CreatedAt:        time.Now(),
	}

	return rowResult{record: record, errs: procErrors}
}

// hashPayload hashes the standardized payload in key order so identical
// payloads produce identical hashes regardless of map iteration order.
func hashPayload(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		fmt.Fprintf(h, "%v", payload[k])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func coerceValue(fieldType domain.FieldType, raw string) (any, error) {
	switch fieldType {
	case domain.FieldTypeString:
		return raw, nil
	case domain.FieldTypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 {
			return int64(f), nil
		}
		return nil, fmt.Errorf("unable to coerce %q to integer", raw)
	case domain.FieldTypeFloat:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, nil
		}
		return nil, fmt.Errorf("unable to coerce %q to float", raw)
	case domain.FieldTypeBoolean:
		switch strings.ToLower(raw) {
		case "1", "yes", "y":
			return true, nil
		case "0", "no", "n":
			return false, nil
		}
		value, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
		}
		return value, nil
	case domain.FieldTypeTimestamp:
		ts, err := ingestion.ParseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to timestamp: %w", raw, err)
		}
		return ts.Format("2006-01-02T15:04:05Z07:00"), nil
	default:
		return raw, nil
	}
}
