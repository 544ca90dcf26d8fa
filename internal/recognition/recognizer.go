package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/id-capture/internal/document"
)

// Engine turns a PNG image into text
type Engine interface {
	// Name identifies the engine in logs
	Name() string

	// Recognize returns all text found in the image
	Recognize(ctx context.Context, png []byte) (string, error)

	// Close releases resources held by the engine
	Close() error
}

// Recognizer is the contract the capture session depends on
type Recognizer interface {
	Recognize(ctx context.Context, capture document.RawCapture) (document.RecognizedText, error)
}

// Adapter wraps an Engine. It makes a single attempt per call and keeps no
// reference to the image once it returns.
type Adapter struct {
	engine  Engine
	timeout time.Duration
	logger  *slog.Logger
}

// NewAdapter creates an Adapter. A zero timeout leaves the deadline to the caller.
func NewAdapter(engine Engine, timeout time.Duration, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: engine, timeout: timeout, logger: logger}
}

// Recognize normalises the image to PNG and runs the engine.
// It fails with document.ErrInvalidInput for an empty image and with a
// *document.RecognitionError for anything the engine or decoder rejects.
func (a *Adapter) Recognize(ctx context.Context, capture document.RawCapture) (document.RecognizedText, error) {
	if capture.Empty() {
		return "", fmt.Errorf("%w: image is empty", document.ErrInvalidInput)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	pngData, mimeType, converted, err := prepareImageData(capture.Data, capture.ContentType)
	if err != nil {
		a.logger.Error("Failed to prepare image",
			"engine", a.engine.Name(),
			"content_type", capture.ContentType,
			"file_size", len(capture.Data),
			"error", err,
		)
		return "", document.NewRecognitionError(err)
	}

	text, err := a.engine.Recognize(ctx, pngData)
	if err != nil {
		a.logger.Error("Recognition failed",
			"engine", a.engine.Name(),
			"content_type", capture.ContentType,
			"file_size", len(capture.Data),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return "", document.NewRecognitionError(err)
	}

	a.logger.Debug("Recognition finished",
		"engine", a.engine.Name(),
		"mime_type", mimeType,
		"converted", converted,
		"duration_ms", time.Since(start).Milliseconds(),
		"text_bytes", len(text),
	)
	return document.RecognizedText(strings.Clone(text)), nil
}
