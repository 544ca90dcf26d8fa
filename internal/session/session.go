// Package session sequences a single document capture:
// capture, recognition, extraction, editing, validation and submission.
//
// A Session allows one recognition in flight. Every capture request or reset
// advances a generation counter, and a recognition result is applied only if
// its generation is still current, so a late result can never overwrite a
// newer capture.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/id-capture/internal/document"
	"github.com/zombor/id-capture/internal/recognition"
)

// Extractor maps recognized text to a fully populated field record
type Extractor interface {
	Extract(text document.RecognizedText) document.FieldRecord
}

// Validator checks a field record
type Validator interface {
	Validate(record document.FieldRecord) document.ValidationResult
}

// Submitter hands accepted values downstream
type Submitter interface {
	Submit(ctx context.Context, submission document.Submission) error
}

// Observer receives a snapshot after every transition. It is called with the
// session lock held and must not call back into the Session.
type Observer func(Snapshot)

// Deps are the collaborators of a Session
type Deps struct {
	Recognizer recognition.Recognizer
	Extractor  Extractor
	Validator  Validator
	Submitter  Submitter

	// Optional
	Observer     Observer
	Logger       *slog.Logger
	Now          func() time.Time
	SubmissionID func() string
}

// Session is one capture session. It is safe for concurrent use.
type Session struct {
	id   string
	deps Deps

	mu         sync.Mutex
	state      State
	generation uint64
	cancel     context.CancelFunc
	capturedAt time.Time
	fields     document.FieldRecord
	validation document.ValidationResult
	errDetail  string
	submission *document.Submission
	updatedAt  time.Time
}

// New creates an idle session
func New(id string, deps Deps) (*Session, error) {
	if deps.Recognizer == nil || deps.Extractor == nil || deps.Validator == nil || deps.Submitter == nil {
		return nil, fmt.Errorf("session requires a recognizer, extractor, validator and submitter")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SubmissionID == nil {
		deps.SubmissionID = uuid.NewString
	}
	s := &Session{
		id:    id,
		deps:  deps,
		state: Idle,
	}
	s.updatedAt = deps.Now()
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// RequestCapture takes a still image from cam and starts recognition in the
// background. It fails with document.ErrCaptureInProgress while a capture or
// recognition is running, and with document.ErrCaptureFailed when the camera
// fails, in which case the session is left Errored.
//
// Recognition outlives ctx's cancellation; use Reset to abandon it.
func (s *Session) RequestCapture(ctx context.Context, cam Camera) (*Pending, error) {
	s.mu.Lock()
	if s.state == Capturing || s.state == Recognizing {
		s.mu.Unlock()
		return nil, document.ErrCaptureInProgress
	}
	s.generation++
	gen := s.generation
	s.clearLocked()
	s.transitionLocked(Capturing)
	s.mu.Unlock()

	raw, camErr := cam.CaptureStillImage(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return nil, fmt.Errorf("%w: session was reset during capture", document.ErrCaptureFailed)
	}
	if camErr == nil && raw.CapturedAt.IsZero() {
		raw.CapturedAt = s.deps.Now()
	}
	if camErr != nil {
		s.errDetail = camErr.Error()
		s.transitionLocked(Errored)
		s.deps.Logger.Warn("Camera capture failed", "session_id", s.id, "error", camErr)
		return nil, fmt.Errorf("%w: %w", document.ErrCaptureFailed, camErr)
	}

	recCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.capturedAt = raw.CapturedAt
	s.transitionLocked(Recognizing)

	p := newPending(gen)
	go s.recognize(recCtx, cancel, raw, p)
	return p, nil
}

func (s *Session) recognize(ctx context.Context, cancel context.CancelFunc, raw document.RawCapture, p *Pending) {
	defer close(p.done)
	defer cancel()

	text, err := s.deps.Recognizer.Recognize(ctx, raw)
	raw = document.RawCapture{}

	var (
		fields     document.FieldRecord
		validation document.ValidationResult
	)
	if err == nil {
		fields = s.deps.Extractor.Extract(text)
		validation = s.deps.Validator.Validate(fields)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.generation != s.generation {
		s.deps.Logger.Debug("Discarding stale recognition result",
			"session_id", s.id,
			"generation", p.generation,
			"current_generation", s.generation,
		)
		p.err = ErrStale
		return
	}
	s.cancel = nil

	if err != nil {
		s.errDetail = errorDetail(err)
		s.transitionLocked(Errored)
		p.err = err
		return
	}

	s.fields = fields
	s.validation = validation
	s.transitionLocked(Extracted)
}

// EditField replaces a field's value and re-validates. Extraction is not re-run.
func (s *Session) EditField(key document.FieldKey, value string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Extracted {
		return s.snapshotLocked(), fmt.Errorf("%w: session is %s", document.ErrNotEditable, s.state)
	}
	f, ok := s.fields[key]
	if !ok {
		return s.snapshotLocked(), fmt.Errorf("%w: %s", document.ErrUnknownField, key)
	}

	f.Value = value
	f.Edited = true
	fields := s.fields.Clone()
	fields[key] = f
	s.fields = fields
	s.validation = s.deps.Validator.Validate(fields)
	s.transitionLocked(Extracted)
	return s.snapshotLocked(), nil
}

// Submit hands the current values to the Submitter. It fails with
// document.ErrNotSubmittable unless every field is valid; on any failure the
// session is left as it was.
func (s *Session) Submit(ctx context.Context) (document.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Extracted || !s.validation.AllValid() {
		return document.Submission{}, document.ErrNotSubmittable
	}

	sub := document.Submission{
		ID:          s.deps.SubmissionID(),
		SessionID:   s.id,
		Fields:      s.fields.Values(),
		CapturedAt:  s.capturedAt,
		SubmittedAt: s.deps.Now(),
	}
	if err := s.deps.Submitter.Submit(ctx, sub); err != nil {
		return document.Submission{}, fmt.Errorf("submitting: %w", err)
	}

	s.submission = &sub
	s.transitionLocked(Submitted)
	return sub, nil
}

// Reset abandons any in-flight recognition and returns the session to Idle
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.clearLocked()
	s.transitionLocked(Idle)
	return s.snapshotLocked()
}

// Snapshot returns the current read-only view
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) clearLocked() {
	s.capturedAt = time.Time{}
	s.fields = nil
	s.validation = nil
	s.errDetail = ""
	s.submission = nil
}

func (s *Session) transitionLocked(to State) {
	from := s.state
	s.state = to
	s.updatedAt = s.deps.Now()
	s.deps.Logger.Debug("Session transition",
		"session_id", s.id,
		"from", from,
		"to", to,
		"generation", s.generation,
	)
	if s.deps.Observer != nil {
		s.deps.Observer(s.snapshotLocked())
	}
}

func errorDetail(err error) string {
	var recErr *document.RecognitionError
	if errors.As(err, &recErr) {
		return recErr.Detail
	}
	return err.Error()
}
