// Package mapping turns parsed column profiles into standard field mapping
// suggestions and handles user confirmation of those suggestions.
package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/foreko/ingest/internal/domain"
	"github.com/foreko/ingest/internal/ingestion"
	"github.com/foreko/ingest/internal/llm"
	"github.com/foreko/ingest/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Confidences carries the fixed score assigned per match strategy.
type Confidences struct {
	Exact     int
	Learned   int
	Substring int
	Fallback  int
	// LearnedMinSuccessRate gates how reliable history must be before a
	// learned mapping outranks name matching.
	LearnedMinSuccessRate float64
}

// DefaultConfidences mirrors the shipped configuration defaults.
func DefaultConfidences() Confidences {
	return Confidences{
		Exact:                 95,
		Learned:               80,
		Substring:             75,
		Fallback:              50,
		LearnedMinSuccessRate: 0.7,
	}
}

// Suggester produces one mapping suggestion per source column. Learned
// history is consulted first, then the model provider when configured, and
// name matching covers everything else. Suggestions never fail the analyze
// phase: a column that matches nothing still gets a fallback guess.
type Suggester struct {
	fieldRepo    repository.StandardFieldRepository
	learningRepo repository.LearningRepository
	provider     llm.Provider
	confidences  Confidences
	logger       *zap.Logger
}

// NewSuggester creates a suggester. provider may be nil for deterministic-only
// operation.
func NewSuggester(
	fieldRepo repository.StandardFieldRepository,
	learningRepo repository.LearningRepository,
	provider llm.Provider,
	confidences Confidences,
	logger *zap.Logger,
) *Suggester {
	if confidences == (Confidences{}) {
		confidences = DefaultConfidences()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suggester{
		fieldRepo:    fieldRepo,
		learningRepo: learningRepo,
		provider:     provider,
		confidences:  confidences,
		logger:       logger,
	}
}

// Suggest maps every profiled column of a file onto a standard field.
func (s *Suggester) Suggest(ctx context.Context, companyID uuid.UUID, entityType string, profiles []ingestion.ColumnProfile) ([]domain.MappingSuggestion, error) {
	fields, err := s.fieldRepo.ListByDomain(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to load field dictionary: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no standard fields defined for entity type %q", entityType)
	}

	history, err := s.learningRepo.ListFor(ctx, companyID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to load learning entries: %w", err)
	}
	learned := s.reliableIndex(history)

	suggestions := make([]domain.MappingSuggestion, len(profiles))
	unresolved := make([]int, 0, len(profiles))
	for i, profile := range profiles {
		suggestion, confident := s.deterministicSuggestion(profile, fields, learned)
		suggestions[i] = suggestion
		if !confident {
			unresolved = append(unresolved, i)
		}
	}

	if s.provider != nil && len(unresolved) > 0 {
		if err := s.applyModelSuggestions(ctx, entityType, fields, profiles, history, suggestions, unresolved); err != nil {
			return nil, err
		}
	}

	return suggestions, nil
}

// reliableIndex keys reliable learning entries by normalized source column.
// Company-scoped entries shadow global ones.
func (s *Suggester) reliableIndex(entries []domain.LearningEntry) map[string]domain.LearningEntry {
	index := make(map[string]domain.LearningEntry)
	for _, entry := range entries {
		if entry.SuccessRate() < s.confidences.LearnedMinSuccessRate {
			continue
		}
		key := domain.NormalizeColumnName(entry.SourceColumn)
		existing, ok := index[key]
		if !ok {
			index[key] = entry
			continue
		}
		// Prefer company-scoped history, then higher volume.
		if existing.Global() && !entry.Global() {
			index[key] = entry
		} else if existing.Global() == entry.Global() && entry.TotalCount > existing.TotalCount {
			index[key] = entry
		}
	}
	return index
}

// deterministicSuggestion resolves one column without the model. The second
// return value reports whether the result is strong enough to skip the model.
func (s *Suggester) deterministicSuggestion(profile ingestion.ColumnProfile, fields []domain.StandardFieldDefinition, learned map[string]domain.LearningEntry) (domain.MappingSuggestion, bool) {
	normalized := domain.NormalizeColumnName(profile.Name)

	if entry, ok := learned[normalized]; ok {
		return domain.MappingSuggestion{
			SourceColumn:  profile.Name,
			TargetField:   entry.TargetField,
			Confidence:    s.confidences.Learned,
			MatchType:     domain.MatchTypeLearned,
			Justification: fmt.Sprintf("confirmed %d of %d times before", entry.SuccessCount, entry.TotalCount),
			Alternatives:  s.alternatives(profile, fields, entry.TargetField),
		}, true
	}

	for _, field := range fields {
		if field.MatchesName(profile.Name) || field.MatchesAlias(profile.Name) {
			return domain.MappingSuggestion{
				SourceColumn:  profile.Name,
				TargetField:   field.Name,
				Confidence:    s.confidences.Exact,
				MatchType:     domain.MatchTypeExact,
				Justification: "column name matches the field or one of its aliases",
				Alternatives:  s.alternatives(profile, fields, field.Name),
			}, true
		}
	}

	for _, field := range fields {
		if substringMatch(normalized, field) {
			return domain.MappingSuggestion{
				SourceColumn:  profile.Name,
				TargetField:   field.Name,
				Confidence:    s.confidences.Substring,
				MatchType:     domain.MatchTypeSubstring,
				Justification: "column name partially matches the field",
				Alternatives:  s.alternatives(profile, fields, field.Name),
			}, false
		}
	}

	return domain.MappingSuggestion{
		SourceColumn:  profile.Name,
		TargetField:   domain.Slugify(profile.Name),
		Confidence:    s.confidences.Fallback,
		MatchType:     domain.MatchTypeFallback,
		Justification: "no dictionary match; kept under its own name",
	}, false
}

func (s *Suggester) alternatives(profile ingestion.ColumnProfile, fields []domain.StandardFieldDefinition, chosen string) []domain.AlternativeMapping {
	normalized := domain.NormalizeColumnName(profile.Name)
	var alts []domain.AlternativeMapping
	for _, field := range fields {
		if field.Name == chosen {
			continue
		}
		if substringMatch(normalized, field) {
			alts = append(alts, domain.AlternativeMapping{
				TargetField: field.Name,
				Confidence:  s.confidences.Substring,
			})
		}
		if len(alts) == 2 {
			break
		}
	}
	return alts
}

func substringMatch(normalized string, field domain.StandardFieldDefinition) bool {
	candidates := append([]string{field.Name}, field.Aliases...)
	for _, candidate := range candidates {
		candidate = domain.NormalizeColumnName(candidate)
		if candidate == "" {
			continue
		}
		if strings.Contains(normalized, candidate) || strings.Contains(candidate, normalized) {
			return true
		}
	}
	return false
}

// modelSuggestion is the JSON shape the model is asked to produce.
type modelSuggestion struct {
	SourceColumn  string `json:"source_column"`
	TargetField   string `json:"target_field"`
	Confidence    int    `json:"confidence"`
	Justification string `json:"justification"`
}

// applyModelSuggestions asks the provider to resolve the weak columns and
// merges validated answers over the deterministic ones. Configuration errors
// from the provider propagate; a malformed reply keeps the deterministic
// suggestions.
func (s *Suggester) applyModelSuggestions(
	ctx context.Context,
	entityType string,
	fields []domain.StandardFieldDefinition,
	profiles []ingestion.ColumnProfile,
	history []domain.LearningEntry,
	suggestions []domain.MappingSuggestion,
	unresolved []int,
) error {
	weak := make([]ingestion.ColumnProfile, len(unresolved))
	for i, idx := range unresolved {
		weak[i] = profiles[idx]
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildMappingPrompt(entityType, fields, weak, history)},
		},
		Temperature: 0,
	})
	if err != nil {
		if errors.Is(err, llm.ErrUnauthorized) || errors.Is(err, llm.ErrModelNotFound) || errors.Is(err, llm.ErrRateLimited) {
			return err
		}
		s.logger.Warn("model suggestion request failed, keeping deterministic results", zap.Error(err))
		return nil
	}

	raw, err := llm.ExtractJSON(resp.Text)
	if err != nil {
		s.logger.Warn("model reply contained no JSON, keeping deterministic results", zap.Error(err))
		return nil
	}

	var parsed []modelSuggestion
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		s.logger.Warn("model reply JSON did not parse, keeping deterministic results", zap.Error(err))
		return nil
	}

	valid := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		valid[field.Name] = struct{}{}
	}

	byColumn := make(map[string]modelSuggestion, len(parsed))
	for _, ms := range parsed {
		byColumn[domain.NormalizeColumnName(ms.SourceColumn)] = ms
	}

	for _, idx := range unresolved {
		ms, ok := byColumn[domain.NormalizeColumnName(profiles[idx].Name)]
		if !ok {
			continue
		}
		if _, known := valid[ms.TargetField]; !known {
			continue
		}
		suggestions[idx] = domain.MappingSuggestion{
			SourceColumn:  profiles[idx].Name,
			TargetField:   ms.TargetField,
			Confidence:    domain.ClampConfidence(ms.Confidence),
			MatchType:     domain.MatchTypeAI,
			Justification: ms.Justification,
			Alternatives:  suggestions[idx].Alternatives,
		}
	}
	return nil
}
