package document

import (
	"time"
)

// FieldKey identifies a field on the identity document
type FieldKey string

// Default field keys
const (
	Name           FieldKey = "name"
	DocumentNumber FieldKey = "document_number"
	ExpirationDate FieldKey = "expiration_date"
)

// RawCapture is a still image produced by a camera
type RawCapture struct {
	Data        []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Empty reports whether the capture carries no image bytes
func (c RawCapture) Empty() bool {
	return len(c.Data) == 0
}

// RecognizedText is the full text recognized in one capture
type RecognizedText string

// ExtractedField holds one field's value.
//
// A field that was neither matched by extraction nor edited by the user
// always has an empty Value.
type ExtractedField struct {
	Key     FieldKey `json:"key"`
	Value   string   `json:"value"`
	Matched bool     `json:"matched"`
	Edited  bool     `json:"edited,omitempty"`
}

// Unmatched returns the empty entry for a key extraction did not find
func Unmatched(key FieldKey) ExtractedField {
	return ExtractedField{Key: key}
}

// FieldRecord maps every configured key to its field. It is never partial.
type FieldRecord map[FieldKey]ExtractedField

// Clone returns a copy safe to hand to another owner
func (r FieldRecord) Clone() FieldRecord {
	if r == nil {
		return nil
	}
	out := make(FieldRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Values returns the plain key to value mapping
func (r FieldRecord) Values() map[FieldKey]string {
	out := make(map[FieldKey]string, len(r))
	for k, v := range r {
		out[k] = v.Value
	}
	return out
}

// Reason explains why a field failed validation
type Reason string

const (
	ReasonMissing       Reason = "missing"
	ReasonInvalidFormat Reason = "invalid_format"
)

// FieldValidation is the validity of a single field. Valid entries carry no message.
type FieldValidation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	Reason  Reason `json:"reason,omitempty"`
}

// ValidationResult maps every configured key to its validity
type ValidationResult map[FieldKey]FieldValidation

// AllValid reports whether every field passed
func (v ValidationResult) AllValid() bool {
	if len(v) == 0 {
		return false
	}
	for _, fv := range v {
		if !fv.Valid {
			return false
		}
	}
	return true
}

// Clone returns a copy safe to hand to another owner
func (v ValidationResult) Clone() ValidationResult {
	if v == nil {
		return nil
	}
	out := make(ValidationResult, len(v))
	for k, fv := range v {
		out[k] = fv
	}
	return out
}

// Submission is the accepted set of field values handed downstream
type Submission struct {
	ID          string              `json:"id"`
	SessionID   string              `json:"session_id"`
	Fields      map[FieldKey]string `json:"fields"`
	CapturedAt  time.Time           `json:"captured_at"`
	SubmittedAt time.Time           `json:"submitted_at"`
}
