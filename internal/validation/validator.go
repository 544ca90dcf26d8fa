package validation

import (
	"fmt"
	"strings"

	"github.com/zombor/id-capture/internal/document"
	"github.com/zombor/id-capture/internal/fieldset"
)

// Validator checks each field of a record on its own
type Validator struct {
	fields []fieldset.Field
	dates  DateParser
}

// New creates a Validator using the default date layouts
func New(cfg fieldset.Config) (*Validator, error) {
	return NewWithDateParser(cfg, NewLayoutParser())
}

// NewWithDateParser creates a Validator with a custom date collaborator
func NewWithDateParser(cfg fieldset.Config, dates DateParser) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field config: %w", err)
	}
	if dates == nil {
		return nil, fmt.Errorf("date parser is required")
	}
	return &Validator{fields: cfg.Fields, dates: dates}, nil
}

// Validate returns exactly one entry per configured field. Keys missing from
// the record are treated as empty.
func (v *Validator) Validate(record document.FieldRecord) document.ValidationResult {
	result := make(document.ValidationResult, len(v.fields))
	for _, f := range v.fields {
		result[f.Key] = v.check(f, record[f.Key].Value)
	}
	return result
}

func (v *Validator) check(f fieldset.Field, value string) document.FieldValidation {
	if strings.TrimSpace(value) == "" {
		return invalid(f, document.ReasonMissing)
	}
	if f.Kind == fieldset.KindDate {
		if _, err := v.dates.Parse(value); err != nil {
			return invalid(f, document.ReasonInvalidFormat)
		}
	}
	return document.FieldValidation{Valid: true}
}

func invalid(f fieldset.Field, reason document.Reason) document.FieldValidation {
	return document.FieldValidation{
		Valid:   false,
		Message: f.Message(reason),
		Reason:  reason,
	}
}
