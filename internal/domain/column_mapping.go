package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchType identifies the strategy that produced a mapping suggestion. The
// confidence attached to each match type is configuration, not derivation.
type MatchType string

const (
	MatchTypeExact     MatchType = "exact"
	MatchTypeLearned   MatchType = "learned"
	MatchTypeSubstring MatchType = "substring"
	MatchTypeFallback  MatchType = "fallback"
	MatchTypeAI        MatchType = "ai"
	// MatchTypeUser marks a mapping the user picked over the suggestion.
	MatchTypeUser MatchType = "user"
)

// ColumnMapping associates one source column of a file with a target standard
// field. Unique per (file, source column); reassignment overwrites.
type ColumnMapping struct {
	ID            uuid.UUID `json:"id"`
	FileID        uuid.UUID `json:"file_id"`
	SourceColumn  string    `json:"source_column"`
	TargetField   string    `json:"target_field"`
	Confidence    int       `json:"confidence"`
	MatchType     MatchType `json:"match_type"`
	Transform     string    `json:"transform,omitempty"`
	UserConfirmed bool      `json:"user_confirmed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewColumnMapping creates an unconfirmed mapping with clamped confidence.
func NewColumnMapping(fileID uuid.UUID, sourceColumn, targetField string, confidence int, matchType MatchType) ColumnMapping {
	now := time.Now()
	return ColumnMapping{
		ID:           uuid.New(),
		FileID:       fileID,
		SourceColumn: sourceColumn,
		TargetField:  targetField,
		Confidence:   ClampConfidence(confidence),
		MatchType:    matchType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AlternativeMapping is a lower-ranked candidate attached to a suggestion.
type AlternativeMapping struct {
	TargetField string `json:"target_field"`
	Confidence  int    `json:"confidence"`
}

// MappingSuggestion is the suggester output for one source column. Every
// column gets exactly one suggestion, at minimum a slugified fallback guess.
type MappingSuggestion struct {
	SourceColumn  string               `json:"source_column"`
	TargetField   string               `json:"target_field"`
	Confidence    int                  `json:"confidence"`
	MatchType     MatchType            `json:"match_type"`
	Justification string               `json:"justification,omitempty"`
	Alternatives  []AlternativeMapping `json:"alternatives,omitempty"`
}

// ClampConfidence bounds a confidence score to [0,100].
func ClampConfidence(confidence int) int {
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}
