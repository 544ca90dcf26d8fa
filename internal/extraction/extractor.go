package extraction

import (
	"fmt"
	"regexp"

	"github.com/zombor/id-capture/internal/document"
	"github.com/zombor/id-capture/internal/fieldset"
)

type rule struct {
	key   document.FieldKey
	re    *regexp.Regexp
	group int
}

// Extractor maps recognized text to a field record using the field table
type Extractor struct {
	rules []rule
}

// New compiles the extraction rules of cfg
func New(cfg fieldset.Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field config: %w", err)
	}
	rules := make([]rule, 0, len(cfg.Fields))
	for _, f := range cfg.Fields {
		re, err := regexp.Compile(f.Expression())
		if err != nil {
			return nil, fmt.Errorf("compiling %s: %w", f.Key, err)
		}
		rules = append(rules, rule{key: f.Key, re: re, group: f.ValueGroup()})
	}
	return &Extractor{rules: rules}, nil
}

// Extract matches every field independently against the whole text and keeps
// the leftmost match. Fields that do not match are returned unmatched with an
// empty value; Extract never fails.
func (e *Extractor) Extract(text document.RecognizedText) document.FieldRecord {
	record := make(document.FieldRecord, len(e.rules))
	for _, r := range e.rules {
		record[r.key] = r.match(string(text))
	}
	return record
}

func (r rule) match(text string) document.ExtractedField {
	m := r.re.FindStringSubmatchIndex(text)
	if m == nil {
		return document.Unmatched(r.key)
	}
	start, end := m[2*r.group], m[2*r.group+1]
	if start < 0 {
		// optional group that did not participate
		return document.Unmatched(r.key)
	}
	return document.ExtractedField{
		Key:     r.key,
		Value:   text[start:end],
		Matched: true,
	}
}
