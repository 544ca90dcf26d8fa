package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/id-capture/internal/document"
	"github.com/zombor/id-capture/internal/engines"
	"github.com/zombor/id-capture/internal/extraction"
	"github.com/zombor/id-capture/internal/fieldset"
	"github.com/zombor/id-capture/internal/session"
	"github.com/zombor/id-capture/internal/submission"
	"github.com/zombor/id-capture/internal/validation"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// exitNotSubmittable is returned when the image did not yield a valid record
const exitNotSubmittable = 2

// discardSubmitter accepts submissions without storing them
type discardSubmitter struct{}

func (discardSubmitter) Submit(ctx context.Context, sub document.Submission) error {
	return ctx.Err()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("idscan")
	var (
		fieldsPath  = fs.StringLong("fields", "", "JSON field table (optional)")
		dbPath      = fs.StringLong("db", "", "Submission database; when set a valid record is submitted")
		debug       = fs.BoolLong("debug", "Log session transitions to stderr")
		showVersion = fs.BoolLong("version", "Show version information")
		engineFlags = engines.RegisterFlags(fs)
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("ID_CAPTURE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	args := fs.GetArgs()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: idscan [flags] <image>\n\n%s\n", ffhelp.Flags(fs))
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := run(ctx, args[0], *fieldsPath, *dbPath, engineFlags.Config())
	if err != nil {
		slog.Error("Scan failed", "path", args[0], "error", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func run(ctx context.Context, path, fieldsPath, dbPath string, engineCfg engines.Config) (int, error) {
	fields := fieldset.Default()
	if fieldsPath != "" {
		var err error
		if fields, err = fieldset.Load(fieldsPath); err != nil {
			return 0, err
		}
	}

	extractor, err := extraction.New(fields)
	if err != nil {
		return 0, err
	}
	validator, err := validation.New(fields)
	if err != nil {
		return 0, err
	}

	recognizer, engine, err := engines.Recognizer(engineCfg)
	if err != nil {
		return 0, err
	}
	defer engine.Close()

	var submitter session.Submitter = discardSubmitter{}
	if dbPath != "" {
		db, err := submission.NewBoltDB(dbPath)
		if err != nil {
			return 0, err
		}
		defer db.Close()
		submitter = db
	}

	sess, err := session.New(uuid.NewString(), session.Deps{
		Recognizer:   recognizer,
		Extractor:    extractor,
		Validator:    validator,
		Submitter:    submitter,
		SubmissionID: uuid.NewString,
	})
	if err != nil {
		return 0, err
	}

	pending, err := sess.RequestCapture(ctx, session.FileCamera{Path: path})
	if err != nil {
		return 0, err
	}
	if err := pending.Wait(ctx); err != nil && !errors.Is(err, document.ErrRecognitionFailed) && !errors.Is(err, document.ErrInvalidInput) {
		return 0, err
	}

	snap := sess.Snapshot()
	if dbPath != "" && snap.Submittable {
		if _, err := sess.Submit(ctx); err != nil {
			return 0, err
		}
		snap = sess.Snapshot()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return 0, fmt.Errorf("encoding snapshot: %w", err)
	}

	if snap.State == session.Submitted || snap.Submittable {
		return 0, nil
	}
	return exitNotSubmittable, nil
}
