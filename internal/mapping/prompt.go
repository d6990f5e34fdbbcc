package mapping

import (
	"fmt"
	"strings"

	"github.com/foreko/ingest/internal/domain"
	"github.com/foreko/ingest/internal/ingestion"
)

const systemPrompt = `You map spreadsheet columns onto a fixed dictionary of standard fields.
Reply with a JSON array only, one object per column:
[{"source_column": "...", "target_field": "...", "confidence": 0-100, "justification": "..."}]
target_field must be one of the listed standard fields. Do not invent fields.`

// BuildMappingPrompt renders the field dictionary, column profiles and prior
// confirmation history for the model.
func BuildMappingPrompt(entityType string, fields []domain.StandardFieldDefinition, profiles []ingestion.ColumnProfile, history []domain.LearningEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Entity type: %s\n\nStandard fields:\n", entityType)
	for _, field := range fields {
		required := ""
		if field.Required {
			required = " (required)"
		}
		fmt.Fprintf(&b, "- %s [%s]%s", field.Name, field.Type, required)
		if len(field.Aliases) > 0 {
			fmt.Fprintf(&b, " aka: %s", strings.Join(field.Aliases, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nColumns to map:\n")
	for _, profile := range profiles {
		fmt.Fprintf(&b, "- %q (label %q, detected type %s, %.0f%% empty",
			profile.Name, profile.Label, profile.DetectedType, profile.NullFraction*100)
		if len(profile.SampleValues) > 0 {
			fmt.Fprintf(&b, ", samples: %s", strings.Join(profile.SampleValues, " | "))
		}
		b.WriteString(")\n")
	}

	if len(history) > 0 {
		b.WriteString("\nPreviously confirmed mappings (hints, not rules):\n")
		for _, entry := range history {
			fmt.Fprintf(&b, "- %q -> %s (confirmed %d of %d times)\n",
				entry.SourceColumn, entry.TargetField, entry.SuccessCount, entry.TotalCount)
		}
	}

	return b.String()
}
