package session

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/zombor/id-capture/internal/document"
)

// Camera produces one still image per call
type Camera interface {
	CaptureStillImage(ctx context.Context) (document.RawCapture, error)
}

// CameraFunc adapts a function to Camera
type CameraFunc func(ctx context.Context) (document.RawCapture, error)

func (f CameraFunc) CaptureStillImage(ctx context.Context) (document.RawCapture, error) {
	return f(ctx)
}

// StillImage is a camera that already holds its frame, such as an upload
type StillImage struct {
	Data        []byte
	ContentType string
	TakenAt     time.Time
}

func (c StillImage) CaptureStillImage(ctx context.Context) (document.RawCapture, error) {
	if len(c.Data) == 0 {
		return document.RawCapture{}, fmt.Errorf("no image data")
	}
	return document.RawCapture{
		Data:        c.Data,
		ContentType: c.ContentType,
		CapturedAt:  c.TakenAt,
	}, nil
}

// FileCamera reads the frame from an image file
type FileCamera struct {
	Path string
}

func (c FileCamera) CaptureStillImage(ctx context.Context) (document.RawCapture, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return document.RawCapture{}, fmt.Errorf("reading image: %w", err)
	}
	info, err := os.Stat(c.Path)
	if err != nil {
		return document.RawCapture{}, fmt.Errorf("stat image: %w", err)
	}
	return document.RawCapture{
		Data:        data,
		ContentType: ContentTypeForName(c.Path),
		CapturedAt:  info.ModTime(),
	}, nil
}

// ContentTypeForName guesses an image MIME type from a file name.
// An empty result means the payload will be sniffed.
func ContentTypeForName(name string) string {
	switch ext := filepath.Ext(name); ext {
	case ".heic", ".HEIC":
		return "image/heic"
	case ".heif", ".HEIF":
		return "image/heif"
	case "":
		return ""
	default:
		return mime.TypeByExtension(ext)
	}
}
