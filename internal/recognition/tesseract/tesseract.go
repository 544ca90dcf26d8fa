// Package tesseract provides the local recognition engine backed by the
// Tesseract OCR library through gosseract. It needs libtesseract and the
// trained data for the configured language installed on the host:
//
//	apt-get install tesseract-ocr libtesseract-dev
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is the single Latin-script language used unless configured
const DefaultLanguage = "eng"

// Engine runs Tesseract on PNG images. A fresh client is created per call so
// the engine can be shared; gosseract clients are not safe for concurrent use.
type Engine struct {
	language      string
	tessdataDir   string
	clientFactory func() *gosseract.Client
}

// Option configures an Engine
type Option func(*Engine)

// WithTessdataDir points Tesseract at a non-default trained data directory
func WithTessdataDir(dir string) Option {
	return func(e *Engine) { e.tessdataDir = dir }
}

// New creates a Tesseract engine for one fixed language
func New(language string, opts ...Option) *Engine {
	if language == "" {
		language = DefaultLanguage
	}
	e := &Engine{
		language:      language,
		clientFactory: gosseract.NewClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize returns the plain text Tesseract reads from the image
func (e *Engine) Recognize(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := e.clientFactory()
	if err := e.configure(c, png); err != nil {
		c.Close()
		return "", err
	}

	// Tesseract cannot be interrupted; run it aside so a cancelled
	// context returns promptly. The goroutine owns the client from here.
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer c.Close()
		text, err := c.Text()
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("recognize text: %w", r.err)
		}
		return strings.TrimSpace(r.text), nil
	}
}

func (e *Engine) configure(c *gosseract.Client, png []byte) error {
	if e.tessdataDir != "" {
		if err := c.SetTessdataPrefix(e.tessdataDir); err != nil {
			return fmt.Errorf("set tessdata dir: %w", err)
		}
	}
	if err := c.SetLanguage(e.language); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	if err := c.SetImageFromBytes(png); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	return nil
}

// Close is a no-op; clients are released per call
func (e *Engine) Close() error {
	return nil
}
