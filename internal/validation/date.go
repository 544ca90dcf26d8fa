package validation

import (
	"strings"
	"time"
)

// DateParser confirms that a string is a calendar date
type DateParser interface {
	Parse(value string) (time.Time, error)
}

// LayoutParser tries each layout in order
type LayoutParser struct {
	Layouts []string
}

// DefaultDateLayouts accept both day-first and month-first slash dates, with
// one or two digit day and month, as well as ISO dates. "05/06/2030" parses
// either way; which reading wins is not significant here.
var DefaultDateLayouts = []string{
	"2/1/2006",
	"1/2/2006",
	"2006-01-02",
}

// NewLayoutParser returns a parser over DefaultDateLayouts
func NewLayoutParser() *LayoutParser {
	return &LayoutParser{Layouts: DefaultDateLayouts}
}

// Parse returns the first successful parse
func (p *LayoutParser) Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var firstErr error
	for _, layout := range p.Layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
