// Package fieldset holds the declarative table of document fields: how each
// one is found in recognized text and how it is validated. Adding a field is
// a configuration change.
package fieldset

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/zombor/id-capture/internal/document"
)

// Kind selects the validation rule applied to a field
type Kind string

const (
	KindRequired Kind = "required"
	KindDate     Kind = "date"
)

// Field describes one document field
type Field struct {
	Key   document.FieldKey `json:"key"`
	Label string            `json:"label"`

	// Anchor is the literal label text preceding the value, matched case-insensitively
	Anchor string `json:"anchor"`
	// Pattern is the value shape
	Pattern string `json:"pattern"`
	// Group selects the capture group holding the value. Zero means 1, the whole value shape.
	Group int `json:"group,omitempty"`

	Kind            Kind   `json:"kind"`
	RequiredMessage string `json:"required_message"`
	// FormatMessage is used when a date field is present but does not parse.
	// Empty means RequiredMessage.
	FormatMessage string `json:"format_message,omitempty"`
}

// Config is an ordered list of fields
type Config struct {
	Fields []Field `json:"fields"`
}

// Default returns the name / document number / expiration date table
func Default() Config {
	return Config{
		Fields: []Field{
			{
				Key:             document.Name,
				Label:           "Name",
				Anchor:          "Name:",
				Pattern:         `\w+` + Space + `\w+`,
				Kind:            KindRequired,
				RequiredMessage: "Name is required",
			},
			{
				Key:             document.DocumentNumber,
				Label:           "Document Number",
				Anchor:          "Document Number:",
				Pattern:         `\w+`,
				Kind:            KindRequired,
				RequiredMessage: "Document number is required",
			},
			{
				Key:             document.ExpirationDate,
				Label:           "Expiration Date",
				Anchor:          "Expiration Date:",
				Pattern:         `\d{2}/\d{2}/\d{4}`,
				Kind:            KindDate,
				RequiredMessage: "Expiration date is required",
			},
		},
	}
}

// Load reads a JSON field table from path
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading field config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and checks a JSON field table
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling field config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that keys are unique and every pattern compiles
func (c Config) Validate() error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("field config has no fields")
	}
	seen := make(map[document.FieldKey]bool, len(c.Fields))
	for i, f := range c.Fields {
		if strings.TrimSpace(string(f.Key)) == "" {
			return fmt.Errorf("field %d: key is required", i)
		}
		if seen[f.Key] {
			return fmt.Errorf("field %q: duplicate key", f.Key)
		}
		seen[f.Key] = true
		if f.Anchor == "" {
			return fmt.Errorf("field %q: anchor is required", f.Key)
		}
		if f.Pattern == "" {
			return fmt.Errorf("field %q: pattern is required", f.Key)
		}
		re, err := regexp.Compile(f.Expression())
		if err != nil {
			return fmt.Errorf("field %q: compiling pattern: %w", f.Key, err)
		}
		if f.Group < 0 || f.Group > re.NumSubexp() {
			return fmt.Errorf("field %q: group %d out of range", f.Key, f.Group)
		}
		switch f.Kind {
		case KindRequired, KindDate:
		default:
			return fmt.Errorf("field %q: unknown kind %q", f.Key, f.Kind)
		}
		if f.RequiredMessage == "" {
			return fmt.Errorf("field %q: required_message is required", f.Key)
		}
	}
	return nil
}

// Keys returns the configured keys in table order
func (c Config) Keys() []document.FieldKey {
	keys := make([]document.FieldKey, 0, len(c.Fields))
	for _, f := range c.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// Field looks up a field by key
func (c Config) Field(key document.FieldKey) (Field, bool) {
	for _, f := range c.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Space matches one whitespace character of any kind, including NBSP and
// vertical tab, which \s alone does not cover.
const Space = `[\s\v\p{Zs}]`

// Expression is the full case-insensitive regular expression for the field.
// Capture group 1 always wraps the whole value shape.
func (f Field) Expression() string {
	return `(?i)` + regexp.QuoteMeta(f.Anchor) + Space + `*(` + f.Pattern + `)`
}

// ValueGroup is the capture group index holding the value
func (f Field) ValueGroup() int {
	if f.Group == 0 {
		return 1
	}
	return f.Group
}

// Message returns the failure message for a reason
func (f Field) Message(reason document.Reason) string {
	if reason == document.ReasonInvalidFormat && f.FormatMessage != "" {
		return f.FormatMessage
	}
	return f.RequiredMessage
}
