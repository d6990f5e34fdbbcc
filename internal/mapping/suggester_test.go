package mapping

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/foreko/ingest/internal/domain"
	"github.com/foreko/ingest/internal/ingestion"
	"github.com/foreko/ingest/internal/llm"
	"github.com/foreko/ingest/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type stubFieldRepo struct {
	fields []domain.StandardFieldDefinition
}

func (r *stubFieldRepo) ListByDomain(_ context.Context, businessDomain string) ([]domain.StandardFieldDefinition, error) {
	return domain.CatalogForDomain(r.fields, businessDomain), nil
}

func (r *stubFieldRepo) ListAll(_ context.Context) ([]domain.StandardFieldDefinition, error) {
	return r.fields, nil
}

type learningKey struct {
	entityType   string
	sourceColumn string
	targetField  string
}

type stubLearningRepo struct {
	entries  []domain.LearningEntry
	recorded map[learningKey][2]int // success, total
}

func newStubLearningRepo() *stubLearningRepo {
	return &stubLearningRepo{recorded: make(map[learningKey][2]int)}
}

func (r *stubLearningRepo) RecordOutcome(_ context.Context, _ *uuid.UUID, entityType, sourceColumn, targetField string, success bool) error {
	key := learningKey{entityType, domain.NormalizeColumnName(sourceColumn), targetField}
	counts := r.recorded[key]
	if success {
		counts[0]++
	}
	counts[1]++
	r.recorded[key] = counts
	return nil
}

func (r *stubLearningRepo) ListFor(_ context.Context, _ uuid.UUID, entityType string) ([]domain.LearningEntry, error) {
	var out []domain.LearningEntry
	for _, entry := range r.entries {
		if entry.EntityType == entityType {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *stubLearningRepo) WithDB(_ repository.DB) repository.LearningRepository { return r }

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

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

func profilesFor(names ...string) []ingestion.ColumnProfile {
	profiles := make([]ingestion.ColumnProfile, len(names))
	for i, name := range names {
		profiles[i] = ingestion.ColumnProfile{Name: name, Label: name, DetectedType: "string"}
	}
	return profiles
}

func TestSuggesterExactAndAliasMatches(t *testing.T) {
	suggester := NewSuggester(
		&stubFieldRepo{fields: domain.DefaultCatalog()},
		newStubLearningRepo(),
		nil,
		DefaultConfidences(),
		nil,
	)

	suggestions, err := suggester.Suggest(context.Background(), uuid.New(), "inventory", profilesFor("sku", "qty", "product_name"))
	if err != nil {
		t.Fatalf("suggest returned error: %v", err)
	}

	byColumn := map[string]domain.MappingSuggestion{}
	for _, s := range suggestions {
		byColumn[s.SourceColumn] = s
	}

	if got := byColumn["sku"]; got.TargetField != "sku" || got.MatchType != domain.MatchTypeExact || got.Confidence != 95 {
		t.Errorf("sku: %+v", got)
	}
	// qty is an alias of quantity.
	if got := byColumn["qty"]; got.TargetField != "quantity" || got.MatchType != domain.MatchTypeExact {
		t.Errorf("qty: %+v", got)
	}
}

func TestSuggesterLearnedOutranksNameMatch(t *testing.T) {
	companyID := uuid.New()
	learningRepo := newStubLearningRepo()
	learningRepo.entries = []domain.LearningEntry{
		{
			CompanyID:    &companyID,
			EntityType:   "inventory",
			SourceColumn: "item_ref",
			TargetField:  "sku",
			SuccessCount: 9,
			TotalCount:   10,
		},
	}

	suggester := NewSuggester(
		&stubFieldRepo{fields: domain.DefaultCatalog()},
		learningRepo,
		nil,
		DefaultConfidences(),
		nil,
	)

	suggestions, err := suggester.Suggest(context.Background(), companyID, "inventory", profilesFor("item_ref"))
	if err != nil {
		t.Fatalf("suggest returned error: %v", err)
	}

	got := suggestions[0]
	if got.TargetField != "sku" || got.MatchType != domain.MatchTypeLearned || got.Confidence != 80 {
		t.Errorf("learned suggestion: %+v", got)
	}
}

func TestSuggesterIgnoresUnreliableHistory(t *testing.T) {
	companyID := uuid.New()
	learningRepo := newStubLearningRepo()
	learningRepo.entries = []domain.LearningEntry{
		{
			CompanyID:    &companyID,
			EntityType:   "inventory",
			SourceColumn: "stock",
			TargetField:  "warehouse",
			SuccessCount: 1,
			TotalCount:   10,
		},
	}

	suggester := NewSuggester(
		&stubFieldRepo{fields: domain.DefaultCatalog()},
		learningRepo,
		nil,
		DefaultConfidences(),
		nil,
	)

	suggestions, err := suggester.Suggest(context.Background(), companyID, "inventory", profilesFor("stock"))
	if err != nil {
		t.Fatalf("suggest returned error: %v", err)
	}

	// stock is an alias of quantity; the 10% success history must not win.
	if got := suggestions[0]; got.TargetField != "quantity" || got.MatchType != domain.MatchTypeExact {
		t.Errorf("expected alias match over weak history, got %+v", got)
	}
}

func TestSuggesterSubstringAndFallback(t *testing.T) {
	suggester := NewSuggester(
		&stubFieldRepo{fields: domain.DefaultCatalog()},
		newStubLearningRepo(),
		nil,
		DefaultConfidences(),
		nil,
	)

	suggestions, err := suggester.Suggest(context.Background(), uuid.New(), "inventory",
		profilesFor("sku_external", "internal_notes"))
	if err != nil {
		t.Fatalf("suggest returned error: %v", err)
	}

	if got := suggestions[0]; got.TargetField != "sku" || got.MatchType != domain.MatchTypeSubstring || got.Confidence != 75 {
		t.Errorf("substring suggestion: %+v", got)
	}
	if got := suggestions[1]; got.TargetField != "internal_notes" || got.MatchType != domain.MatchTypeFallback || got.Confidence != 50 {
		t.Errorf("fallback suggestion: %+v", got)
	}
}

func TestSuggesterModelResolvesWeakColumns(t *testing.T) {
	provider := &llm.MockProvider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{
				Text: "```json\n[{\"source_column\": \"mystery\", \"target_field\": \"warehouse\", \"confidence\": 88, \"justification\": \"values look like site codes\"}]\n```",
			}, nil
		},
	}

	suggester := NewSuggester(
		&stubFieldRepo{fields: domain.DefaultCatalog()},
		newStubLearningRepo(),
		provider,
		DefaultConfidences(),
		nil,
	)

	suggestions, err := suggester.Suggest(context.Background(), uuid.New(), "inventory", profilesFor("sku", "mystery"))
	if err != nil {
		t.Fatalf("suggest returned error: %v", err)
	}

	// Strong deterministic match is untouched.
	if got := suggestions[0]; got.MatchType != domain.MatchTypeExact {
		t.Errorf("sku should stay exact, got %+v", got)
	}
	if got := suggestions[1]; got.TargetField != "warehouse" || got.MatchType != domain.MatchTypeAI || got.Confidence != 88 {
		t.Errorf("model suggestion: %+v", got)
	}
}

func TestSuggesterPromptCarriesLearningHistory(t *testing.T) {
	companyID := uuid.New()
	learningRepo := newStubLearningRepo()
	// Below the reliability threshold: not used deterministically, but the
	// model still sees it as a hint.
	learningRepo.entries = []domain.LearningEntry{
		{
			CompanyID:    &companyID,
			EntityType:   "inventory",
			SourceColumn: "mystery",
			TargetField:  "warehouse",
			SuccessCount: 1,
			TotalCount:   10,
		},
	}

	var prompt string
	provider := &llm.MockProvider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			prompt = req.Messages[len(req.Messages)-1].Content
			return &llm.CompletionResponse{Text: "[]"}, nil
		},
	}

	suggester := NewSuggester(
		&stubFieldRepo{fields: domain.DefaultCatalog()},
		learningRepo,
		provider,
		DefaultConfidences(),
		nil,
	)

	if _, err := suggester.Suggest(context.Background(), companyID, "inventory", profilesFor("mystery")); err != nil {
		t.Fatalf("suggest returned error: %v", err)
	}

	if prompt == "" {
		t.Fatal("model was never called")
	}
	if !strings.Contains(prompt, `"mystery" -> warehouse`) {
		t.Errorf("prompt missing history hint:\n%s", prompt)
	}
	if !strings.Contains(prompt, "confirmed 1 of 10 times") {
		t.Errorf("prompt missing confirmation counts:\n%s", prompt)
	}
}

func TestSuggesterModelMalformedReplyKeepsDeterministic(t *testing.T) {
	provider := &llm.MockProvider{
		CompleteFunc: func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: "I think the mystery column is a warehouse."}, nil
		},
	}

	suggester := NewSuggester(
		&stubFieldRepo{fields: domain.DefaultCatalog()},
		newStubLearningRepo(),
		provider,
		DefaultConfidences(),
		nil,
	)

	suggestions, err := suggester.Suggest(context.Background(), uuid.New(), "inventory", profilesFor("mystery"))
	if err != nil {
		t.Fatalf("malformed model output must not fail analysis: %v", err)
	}
	if got := suggestions[0]; got.MatchType != domain.MatchTypeFallback {
		t.Errorf("expected fallback to survive, got %+v", got)
	}
}

func TestSuggesterModelAuthErrorSurfaces(t *testing.T) {
	provider := &llm.MockProvider{
		CompleteFunc: func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, llm.ErrUnauthorized
		},
	}

	suggester := NewSuggester(
		&stubFieldRepo{fields: domain.DefaultCatalog()},
		newStubLearningRepo(),
		provider,
		DefaultConfidences(),
		nil,
	)

	_, err := suggester.Suggest(context.Background(), uuid.New(), "inventory", profilesFor("mystery"))
	if !errors.Is(err, llm.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized to surface, got %v", err)
	}
}
