package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/id-capture/internal/document"
	"github.com/zombor/id-capture/internal/extraction"
	"github.com/zombor/id-capture/internal/fieldset"
	"github.com/zombor/id-capture/internal/recognition"
	"github.com/zombor/id-capture/internal/session"
	"github.com/zombor/id-capture/internal/submission"
	"github.com/zombor/id-capture/internal/validation"
)

// IDGenerator generates unique IDs for sessions and submissions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// SubmissionStore persists submissions and accepts them from sessions
type SubmissionStore interface {
	submission.DB
	session.Submitter
}

// Service owns the live capture sessions
type Service struct {
	fields      fieldset.Config
	recognizer  recognition.Recognizer
	extractor   *extraction.Extractor
	validator   *validation.Validator
	store       SubmissionStore
	metrics     *Metrics
	idGenerator IDGenerator
	timeSource  TimeSource

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewService creates a Service with UUIDs and the wall clock
func NewService(fields fieldset.Config, recognizer recognition.Recognizer, store SubmissionStore, metrics *Metrics) (*Service, error) {
	return NewServiceWithDeps(fields, recognizer, store, metrics, uuidGenerator{}, defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(fields fieldset.Config, recognizer recognition.Recognizer, store SubmissionStore, metrics *Metrics, idGen IDGenerator, timeSrc TimeSource) (*Service, error) {
	extractor, err := extraction.New(fields)
	if err != nil {
		return nil, fmt.Errorf("creating extractor: %w", err)
	}
	validator, err := validation.New(fields)
	if err != nil {
		return nil, fmt.Errorf("creating validator: %w", err)
	}
	if metrics == nil {
		metrics, err = NewMetrics(nil)
		if err != nil {
			return nil, fmt.Errorf("creating metrics: %w", err)
		}
	}
	return &Service{
		fields:      fields,
		recognizer:  recognizer,
		extractor:   extractor,
		validator:   validator,
		store:       store,
		metrics:     metrics,
		idGenerator: idGen,
		timeSource:  timeSrc,
		sessions:    make(map[string]*session.Session),
	}, nil
}

// Fields returns the configured field table
func (s *Service) Fields() fieldset.Config {
	return s.fields
}

// Metrics returns the service metrics
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// CreateSession starts a new idle session
func (s *Service) CreateSession() (session.Snapshot, error) {
	id := s.idGenerator.Generate()
	sess, err := session.New(id, session.Deps{
		Recognizer:   s.recognizer,
		Extractor:    s.extractor,
		Validator:    s.validator,
		Submitter:    s.store,
		Observer:     s.observe,
		Now:          s.timeSource.Now,
		SubmissionID: s.idGenerator.Generate,
	})
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("creating session: %w", err)
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.metrics.activeSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	slog.Info("Session created", "session_id", id)
	return sess.Snapshot(), nil
}

// GetSession returns the current snapshot of a session
func (s *Service) GetSession(id string) (session.Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Capture feeds an uploaded image to a session as its camera frame. With
// wait set it blocks until recognition has finished or ctx is done.
func (s *Service) Capture(ctx context.Context, id string, data []byte, contentType string, wait bool) (session.Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return session.Snapshot{}, err
	}

	cam := session.StillImage{
		Data:        data,
		ContentType: contentType,
		TakenAt:     s.timeSource.Now(),
	}
	pending, err := sess.RequestCapture(ctx, cam)
	if err != nil {
		s.metrics.captures.WithLabelValues(captureResult(err)).Inc()
		return sess.Snapshot(), fmt.Errorf("requesting capture: %w", err)
	}
	s.metrics.captures.WithLabelValues("accepted").Inc()

	if wait {
		if err := pending.Wait(ctx); err != nil {
			slog.Debug("Recognition did not complete", "session_id", id, "generation", pending.Generation(), "error", err)
		}
	}
	return sess.Snapshot(), nil
}

// EditField changes one field of a session's record
func (s *Service) EditField(id string, key document.FieldKey, value string) (session.Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	snap, err := sess.EditField(key, value)
	if err != nil {
		return snap, fmt.Errorf("editing field: %w", err)
	}
	return snap, nil
}

// Submit submits a session's record
func (s *Service) Submit(ctx context.Context, id string) (document.Submission, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return document.Submission{}, err
	}
	sub, err := sess.Submit(ctx)
	if err != nil {
		s.metrics.submissions.WithLabelValues(submitResult(err)).Inc()
		return document.Submission{}, fmt.Errorf("submitting session: %w", err)
	}
	s.metrics.submissions.WithLabelValues("ok").Inc()
	slog.Info("Session submitted", "session_id", id, "submission_id", sub.ID)
	return sub, nil
}

// Reset abandons a session's capture and returns it to idle
func (s *Service) Reset(id string) (session.Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Reset(), nil
}

// DeleteSession resets a session and forgets it
func (s *Service) DeleteSession(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.metrics.activeSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", document.ErrSessionNotFound, id)
	}
	sess.Reset()
	return nil
}

// SweepIdle forgets sessions that have not changed for longer than ttl and
// returns how many were removed. Removed sessions are reset, which abandons
// any recognition still running for them.
func (s *Service) SweepIdle(ttl time.Duration) int {
	cutoff := s.timeSource.Now().Add(-ttl)

	s.mu.Lock()
	var expired []*session.Session
	for id, sess := range s.sessions {
		if sess.Snapshot().UpdatedAt.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.metrics.activeSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Reset()
		slog.Info("Session expired", "session_id", sess.ID())
	}
	return len(expired)
}

// RunSweeper calls SweepIdle every interval until ctx is done
func (s *Service) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle(ttl)
		}
	}
}

// ListSubmissions returns all stored submissions
func (s *Service) ListSubmissions() ([]*document.Submission, error) {
	subs, err := s.store.ListSubmissions()
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	return subs, nil
}

// GetSubmission retrieves a stored submission
func (s *Service) GetSubmission(id string) (*document.Submission, error) {
	sub, err := s.store.GetSubmission(id)
	if err != nil {
		return nil, fmt.Errorf("getting submission: %w", err)
	}
	return sub, nil
}

// DeleteSubmission removes a stored submission
func (s *Service) DeleteSubmission(id string) error {
	if err := s.store.DeleteSubmission(id); err != nil {
		return fmt.Errorf("deleting submission: %w", err)
	}
	slog.Info("Submission deleted", "submission_id", id)
	return nil
}

func (s *Service) lookup(id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", document.ErrSessionNotFound, id)
	}
	return sess, nil
}

// observe is the session observer; it runs under the session lock
func (s *Service) observe(snap session.Snapshot) {
	s.metrics.transitions.WithLabelValues(string(snap.State)).Inc()
	if snap.State == session.Errored {
		slog.Warn("Session errored", "session_id", snap.SessionID, "generation", snap.Generation, "error", snap.Error)
	}
}
