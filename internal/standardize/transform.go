// Package standardize converts confirmed raw rows into validated, typed
// standardized records.
package standardize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/foreko/ingest/internal/ingestion"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Transform names accepted on a column mapping. replace takes arguments in
// the form replace:<old>:<new>.
const (
	TransformTrim      = "trim"
	TransformUppercase = "uppercase"
	TransformLowercase = "lowercase"
	TransformTitlecase = "titlecase"
	TransformNumber    = "number"
	TransformDate      = "date"
	TransformReplace   = "replace"
)

var titleCaser = cases.Title(language.English)

// IsValidTransform reports whether the named transform is supported. The
// empty name means no transform.
func IsValidTransform(name string) bool {
	if name == "" {
		return true
	}
	base, args, err := splitTransform(name)
	if err != nil {
		return false
	}
	switch base {
	case TransformReplace:
		return len(args) == 2
	case TransformTrim, TransformUppercase, TransformLowercase, TransformTitlecase,
		TransformNumber, TransformDate:
		return true
	}
	return false
}

// ApplyTransform runs one named transform over a raw cell value. Output is
// still a string; type coercion happens afterwards against the target field.
func ApplyTransform(name, value string) (string, error) {
	if name == "" {
		return value, nil
	}

	base, args, err := splitTransform(name)
	if err != nil {
		return "", err
	}

	switch base {
	case TransformTrim:
		return strings.TrimSpace(value), nil
	case TransformUppercase:
		return strings.ToUpper(value), nil
	case TransformLowercase:
		return strings.ToLower(value), nil
	case TransformTitlecase:
		return titleCaser.String(strings.ToLower(value)), nil
	case TransformNumber:
		return normalizeNumber(value)
	case TransformDate:
		ts, parseErr := ingestion.ParseTimestamp(value)
		if parseErr != nil {
			return "", parseErr
		}
		return ts.Format("2006-01-02T15:04:05Z07:00"), nil
	case TransformReplace:
		if len(args) != 2 {
			return "", fmt.Errorf("replace transform needs old and new arguments, got %q", name)
		}
		return strings.ReplaceAll(value, args[0], args[1]), nil
	default:
		return "", fmt.Errorf("unknown transform %q", name)
	}
}

func splitTransform(name string) (string, []string, error) {
	parts := strings.Split(name, ":")
	base := parts[0]
	args := parts[1:]
	if base != TransformReplace && len(args) > 0 {
		return "", nil, fmt.Errorf("transform %q takes no arguments", base)
	}
	return base, args, nil
}

// normalizeNumber strips currency symbols and thousands separators, leaving a
// parseable decimal string.
func normalizeNumber(value string) (string, error) {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.TrimLeft(cleaned, "$€£¥")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = strings.Trim(cleaned, "()")
	}

	if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
		return "", fmt.Errorf("value %q is not numeric", value)
	}
	if negative && !strings.HasPrefix(cleaned, "-") {
		cleaned = "-" + cleaned
	}
	return cleaned, nil
}
