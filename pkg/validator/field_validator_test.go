package validator

import (
	"strings"
	"testing"

	"github.com/foreko/ingest/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestValidateFieldNumericMinimum(t *testing.T) {
	v := NewFieldValidator()
	def := domain.StandardFieldDefinition{
		Name: "total_amount",
		Type: domain.FieldTypeFloat,
		Validation: domain.ValidationRule{
			Min: floatPtr(0),
		},
	}

	errs := v.ValidateField(def, float64(-5))
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %+v", len(errs), errs)
	}
	if errs[0].Field != "total_amount" {
		t.Errorf("unexpected field: %s", errs[0].Field)
	}
	if want := "minimum"; !strings.Contains(errs[0].Message, want) {
		t.Errorf("expected message to reference the minimum, got %q", errs[0].Message)
	}

	if errs := v.ValidateField(def, float64(10)); len(errs) != 0 {
		t.Fatalf("expected no errors for valid value, got %+v", errs)
	}
}

func TestValidateFieldPattern(t *testing.T) {
	v := NewFieldValidator()
	def := domain.StandardFieldDefinition{
		Name: "currency",
		Type: domain.FieldTypeString,
		Validation: domain.ValidationRule{
			Pattern: `^[A-Z]{3}$`,
		},
	}

	if errs := v.ValidateField(def, "USD"); len(errs) != 0 {
		t.Fatalf("expected USD to pass, got %+v", errs)
	}
	if errs := v.ValidateField(def, "dollars"); len(errs) != 1 {
		t.Fatalf("expected dollars to fail, got %+v", errs)
	}
}

func TestValidateFieldAllowedValues(t *testing.T) {
	v := NewFieldValidator()
	def := domain.StandardFieldDefinition{
		Name: "status",
		Type: domain.FieldTypeString,
		Validation: domain.ValidationRule{
			AllowedValues: []string{"pending", "shipped"},
		},
	}

	if errs := v.ValidateField(def, "Shipped"); len(errs) != 0 {
		t.Fatalf("allowed values should match case-insensitively, got %+v", errs)
	}
	if errs := v.ValidateField(def, "lost"); len(errs) != 1 {
		t.Fatalf("expected rejection, got %+v", errs)
	}
}

func TestValidateFieldTypeMismatchShortCircuits(t *testing.T) {
	v := NewFieldValidator()
	def := domain.StandardFieldDefinition{
		Name: "quantity",
		Type: domain.FieldTypeInteger,
		Validation: domain.ValidationRule{
			Min: floatPtr(0),
		},
	}

	errs := v.ValidateField(def, "not-a-number")
	if len(errs) != 1 {
		t.Fatalf("type failure should produce exactly one error, got %+v", errs)
	}
}

func TestValidateRecordRequiredFields(t *testing.T) {
	v := NewFieldValidator()
	defs := map[string]domain.StandardFieldDefinition{
		"sku": {Name: "sku", Type: domain.FieldTypeString, Required: true},
		"note": {Name: "note", Type: domain.FieldTypeString,
			Validation: domain.ValidationRule{MaxLength: intPtr(5)}},
	}

	errs := v.ValidateRecord(map[string]any{"note": "too long for the rule"}, defs)
	if len(errs) != 2 {
		t.Fatalf("expected missing-required plus length error, got %+v", errs)
	}
}
