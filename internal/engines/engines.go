// Package engines selects and builds the recognition engine from command line
// flags shared by the idcapture server and the idscan tool.
package engines

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/id-capture/internal/recognition"
	"github.com/zombor/id-capture/internal/recognition/tesseract"
)

const (
	Tesseract = "tesseract"
	Gemini    = "gemini"
	Ollama    = "ollama"
)

// Config holds the engine flags
type Config struct {
	Engine        string
	TesseractLang string
	TessdataDir   string
	GeminiKey     string
	GeminiModel   string
	OllamaURL     string
	OllamaModel   string
	Timeout       time.Duration
}

// Flags are the registered engine flags
type Flags struct {
	engine        *string
	tesseractLang *string
	tessdataDir   *string
	geminiKey     *string
	geminiModel   *string
	ollamaURL     *string
	ollamaModel   *string
	timeout       *time.Duration
}

// RegisterFlags adds the engine flags to fs
func RegisterFlags(fs *ff.FlagSet) *Flags {
	return &Flags{
		engine:        fs.StringLong("engine", Tesseract, "Recognition engine: 'tesseract', 'gemini' or 'ollama'"),
		tesseractLang: fs.StringLong("tesseract-lang", tesseract.DefaultLanguage, "Tesseract language"),
		tessdataDir:   fs.StringLong("tessdata-dir", "", "Tesseract trained data directory (optional)"),
		geminiKey:     fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:   fs.StringLong("gemini-model", recognition.DefaultGeminiModel, "Google Gemini model name"),
		ollamaURL:     fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:   fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)"),
		timeout:       fs.DurationLong("recognition-timeout", 60*time.Second, "Deadline for a single recognition (0 disables)"),
	}
}

// Config returns the parsed flag values
func (f *Flags) Config() Config {
	return Config{
		Engine:        *f.engine,
		TesseractLang: *f.tesseractLang,
		TessdataDir:   *f.tessdataDir,
		GeminiKey:     *f.geminiKey,
		GeminiModel:   *f.geminiModel,
		OllamaURL:     *f.ollamaURL,
		OllamaModel:   *f.ollamaModel,
		Timeout:       *f.timeout,
	}
}

// Open builds the configured engine. The caller closes it.
func Open(cfg Config) (recognition.Engine, error) {
	switch cfg.Engine {
	case Tesseract:
		var opts []tesseract.Option
		if cfg.TessdataDir != "" {
			opts = append(opts, tesseract.WithTessdataDir(cfg.TessdataDir))
		}
		slog.Info("Initializing Tesseract engine...", "language", cfg.TesseractLang)
		return tesseract.New(cfg.TesseractLang, opts...), nil
	case Gemini:
		apiKey := cfg.GeminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini engine...", "model", cfg.GeminiModel)
		g, err := recognition.NewGemini(apiKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return g, nil
	case Ollama:
		slog.Info("Initializing Ollama engine...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		o, err := recognition.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("invalid engine %q: valid engines are tesseract, gemini or ollama", cfg.Engine)
	}
}

// Recognizer opens the engine and wraps it in a recognition.Adapter
func Recognizer(cfg Config) (*recognition.Adapter, recognition.Engine, error) {
	engine, err := Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return recognition.NewAdapter(engine, cfg.Timeout, slog.Default()), engine, nil
}
