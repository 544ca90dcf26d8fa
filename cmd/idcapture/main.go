package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/id-capture/internal/capture"
	"github.com/zombor/id-capture/internal/engines"
	"github.com/zombor/id-capture/internal/fieldset"
	"github.com/zombor/id-capture/internal/submission"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("idcapture")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "id-capture.db", "Submission database file path")
		fieldsPath  = fs.StringLong("fields", "", "JSON field table (optional, defaults to name/document number/expiration date)")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		sessionTTL  = fs.DurationLong("session-ttl", 30*time.Minute, "Forget sessions idle for longer than this (0 keeps them)")
		debug       = fs.BoolLong("debug", "Log session transitions")
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

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	// Load field table
	fields := fieldset.Default()
	if *fieldsPath != "" {
		var err error
		fields, err = fieldset.Load(*fieldsPath)
		if err != nil {
			slog.Error("Failed to load field table", "path", *fieldsPath, "error", err)
			os.Exit(1)
		}
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := submission.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize recognition engine
	recognizer, engine, err := engines.Recognizer(engineFlags.Config())
	if err != nil {
		slog.Error("Failed to initialize recognition engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Initialize service
	metrics, err := capture.NewMetrics(nil)
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	service, err := capture.NewService(fields, recognizer, db, metrics)
	if err != nil {
		slog.Error("Failed to initialize capture service", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *sessionTTL > 0 {
		go service.RunSweeper(ctx, time.Minute, *sessionTTL)
	}

	// Initialize server
	basicAuth := capture.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := capture.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "engine", engine.Name())
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
