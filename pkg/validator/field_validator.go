package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/foreko/ingest/internal/domain"
)

// FieldValidator checks standardized values against standard field
// definitions: declared type, regex pattern, numeric bounds, length bounds,
// and enumerated allowed values. Safe for concurrent use.
type FieldValidator struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// NewFieldValidator creates a new field validator.
func NewFieldValidator() *FieldValidator {
	return &FieldValidator{patterns: make(map[string]*regexp.Regexp)}
}

// ValidateRecord validates every mapped value in the payload and reports
// required fields that are missing entirely.
func (v *FieldValidator) ValidateRecord(payload map[string]any, definitions map[string]domain.StandardFieldDefinition) []domain.FieldError {
	var errs []domain.FieldError

	for name, def := range definitions {
		value, exists := payload[name]
		if !exists || value == nil || value == "" {
			if def.Required {
				errs = append(errs, domain.FieldError{
					Field:   name,
					Message: fmt.Sprintf("required field '%s' is missing", name),
				})
			}
			continue
		}
		errs = append(errs, v.ValidateField(def, value)...)
	}

	return errs
}

// ValidateField validates a single value against one field definition.
func (v *FieldValidator) ValidateField(def domain.StandardFieldDefinition, value any) []domain.FieldError {
	var errs []domain.FieldError

	if err := v.checkType(def, value); err != nil {
		errs = append(errs, domain.FieldError{Field: def.Name, Message: err.Error(), Value: value})
		// Type failures make the remaining constraint checks meaningless.
		return errs
	}

	rule := def.Validation
	if rule.IsZero() {
		return errs
	}

	if rule.Pattern != "" {
		if str, ok := stringValue(value); ok {
			re, err := v.compile(rule.Pattern)
			if err == nil && !re.MatchString(str) {
				errs = append(errs, domain.FieldError{
					Field:   def.Name,
					Message: fmt.Sprintf("field '%s' value %q does not match pattern %s", def.Name, str, rule.Pattern),
					Value:   value,
				})
			}
		}
	}

	if rule.Min != nil || rule.Max != nil {
		if num, ok := numericValue(value); ok {
			if rule.Min != nil && num < *rule.Min {
				errs = append(errs, domain.FieldError{
					Field:   def.Name,
					Message: fmt.Sprintf("field '%s' value %v is less than minimum %v", def.Name, num, *rule.Min),
					Value:   value,
				})
			}
			if rule.Max != nil && num > *rule.Max {
				errs = append(errs, domain.FieldError{
					Field:   def.Name,
					Message: fmt.Sprintf("field '%s' value %v is greater than maximum %v", def.Name, num, *rule.Max),
					Value:   value,
				})
			}
		}
	}

	if rule.MinLength != nil || rule.MaxLength != nil {
		if str, ok := stringValue(value); ok {
			if rule.MinLength != nil && len(str) < *rule.MinLength {
				errs = append(errs, domain.FieldError{
					Field:   def.Name,
					Message: fmt.Sprintf("field '%s' length %d is less than minimum %d", def.Name, len(str), *rule.MinLength),
					Value:   value,
				})
			}
			if rule.MaxLength != nil && len(str) > *rule.MaxLength {
				errs = append(errs, domain.FieldError{
					Field:   def.Name,
					Message: fmt.Sprintf("field '%s' length %d is greater than maximum %d", def.Name, len(str), *rule.MaxLength),
					Value:   value,
				})
			}
		}
	}

	if len(rule.AllowedValues) > 0 {
		if str, ok := stringValue(value); ok {
			allowed := false
			for _, candidate := range rule.AllowedValues {
				if strings.EqualFold(candidate, str) {
					allowed = true
					break
				}
			}
			if !allowed {
				errs = append(errs, domain.FieldError{
					Field:   def.Name,
					Message: fmt.Sprintf("field '%s' value %q is not one of the allowed values", def.Name, str),
					Value:   value,
				})
			}
		}
	}

	return errs
}

func (v *FieldValidator) checkType(def domain.StandardFieldDefinition, value any) error {
	switch def.Type {
	case domain.FieldTypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field '%s' must be a string, got %T", def.Name, value)
		}
	case domain.FieldTypeInteger:
		if !isInteger(value) {
			return fmt.Errorf("field '%s' must be an integer, got %v", def.Name, value)
		}
	case domain.FieldTypeFloat:
		if _, ok := numericValue(value); !ok {
			return fmt.Errorf("field '%s' must be a number, got %v", def.Name, value)
		}
	case domain.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field '%s' must be a boolean, got %T", def.Name, value)
		}
	case domain.FieldTypeTimestamp:
		switch ts := value.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339, ts); err != nil {
				return fmt.Errorf("field '%s' must be a valid timestamp (RFC3339): %v", def.Name, err)
			}
		default:
			return fmt.Errorf("field '%s' must be a timestamp, got %T", def.Name, value)
		}
	default:
		return fmt.Errorf("unknown field type: %s", def.Type)
	}
	return nil
}

func (v *FieldValidator) compile(pattern string) (*regexp.Regexp, error) {
	v.mu.RLock()
	re, ok := v.patterns[pattern]
	v.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.patterns[pattern] = re
	v.mu.Unlock()
	return re, nil
}

func stringValue(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}

func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == float64(int64(v))
	case string:
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	default:
		return false
	}
}
