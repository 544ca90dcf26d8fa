package session

import (
	"errors"
	"time"

	"github.com/zombor/id-capture/internal/document"
)

// State is the internal state of a Session
type State string

const (
	Idle        State = "idle"
	Capturing   State = "capturing"
	Recognizing State = "recognizing"
	Extracted   State = "extracted"
	Errored     State = "errored"
	Submitted   State = "submitted"
)

// Status is what the presentation boundary shows. It equals the state except
// that Extracted splits into editing and submittable.
type Status string

const (
	StatusEditing     Status = "editing"
	StatusSubmittable Status = "submittable"
)

// ErrStale is reported by a Pending whose result was discarded because the
// session moved on to a newer generation.
var ErrStale = errors.New("recognition result discarded")

// Snapshot is a read-only copy of a session
type Snapshot struct {
	SessionID   string                    `json:"session_id"`
	State       State                     `json:"state"`
	Status      Status                    `json:"status"`
	Generation  uint64                    `json:"generation"`
	Fields      document.FieldRecord      `json:"fields,omitempty"`
	Validation  document.ValidationResult `json:"validation,omitempty"`
	Submittable bool                      `json:"submittable"`
	Error       string                    `json:"error,omitempty"`
	CapturedAt  *time.Time                `json:"captured_at,omitempty"`
	Submission  *document.Submission      `json:"submission,omitempty"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

func (s *Session) snapshotLocked() Snapshot {
	submittable := s.state == Extracted && s.validation.AllValid()

	status := Status(s.state)
	if s.state == Extracted {
		status = StatusEditing
		if submittable {
			status = StatusSubmittable
		}
	}

	snap := Snapshot{
		SessionID:   s.id,
		State:       s.state,
		Status:      status,
		Generation:  s.generation,
		Fields:      s.fields.Clone(),
		Validation:  s.validation.Clone(),
		Submittable: submittable,
		Error:       s.errDetail,
		UpdatedAt:   s.updatedAt,
	}
	if !s.capturedAt.IsZero() {
		t := s.capturedAt
		snap.CapturedAt = &t
	}
	if s.submission != nil {
		sub := *s.submission
		snap.Submission = &sub
	}
	return snap
}
