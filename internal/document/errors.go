package document

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrRecognitionFailed = errors.New("recognition failed")
	ErrCaptureFailed     = errors.New("capture failed")
	ErrCaptureInProgress = errors.New("capture in progress")
	ErrNotSubmittable    = errors.New("not submittable")
	ErrNotEditable       = errors.New("no field record to edit")
	ErrUnknownField      = errors.New("unknown field")
	ErrSessionNotFound   = errors.New("session not found")
)

// RecognitionError reports an engine failure. Detail is the engine's cause as text.
type RecognitionError struct {
	Detail string
	Cause  error
}

// NewRecognitionError wraps an engine failure
func NewRecognitionError(cause error) *RecognitionError {
	detail := "unknown engine error"
	if cause != nil {
		detail = cause.Error()
	}
	return &RecognitionError{Detail: detail, Cause: cause}
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRecognitionFailed, e.Detail)
}

func (e *RecognitionError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match ErrRecognitionFailed
func (e *RecognitionError) Is(target error) bool {
	return target == ErrRecognitionFailed
}
