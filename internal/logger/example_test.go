package logger_test

import (
	"errors"
	"time"

	"github.com/jonesrussell/content-scheduler/internal/logger"
)

func ExampleNewLogger() {
	// Create a development logger (human-readable, colorized output)
	devLogger, err := logger.NewLogger(true)
	if err != nil {
		panic(err)
	}
	defer devLogger.Sync()

	devLogger.Info("Development logger created")
	// Output:
}

func ExampleNewLogger_production() {
	// Create a production logger (JSON format, optimized for performance)
	prodLogger, err := logger.NewLogger(false)
	if err != nil {
		panic(err)
	}
	defer prodLogger.Sync()

	prodLogger.Info("Production logger created")
	// Output:
}

func ExampleLogger_Info() {
	log, _ := logger.NewLogger(true)
	defer log.Sync()

	log.Info("Run started",
		logger.String("program", "daily-fr-articles"),
		logger.Int("items_planned", 5),
	)
	// Output:
}

func ExampleLogger_Error() {
	log, _ := logger.NewLogger(true)
	defer log.Sync()

	err := errors.New("database connection failed")
	log.Error("Operation failed",
		logger.String("operation", "claim_run"),
		logger.Error(err),
	)
	// Output:
}

func ExampleLogger_With() {
	log, _ := logger.NewLogger(true)
	defer log.Sync()

	// Create a logger scoped to one program run
	runLogger := log.With(
		logger.String("program_id", "abc-123"),
		logger.String("run_id", "run-456"),
	)

	// All logs from runLogger will include the run context
	runLogger.Info("Expanding items")
	runLogger.Info("Run finalized")
	// Output:
}

func ExampleLogger_multipleFields() {
	log, _ := logger.NewLogger(true)
	defer log.Sync()

	// Combine multiple field types
	log.Info("Entry published",
		logger.String("destination", "site-fr"),
		logger.Int("attempt", 1),
		logger.Bool("success", true),
		logger.Duration("publish_lag", 150*time.Millisecond),
		logger.Time("scheduled_at", time.Now()),
	)
	// Output:
}

func ExampleNewNopLogger() {
	// Use no-op logger in tests or when logging should be disabled
	log := logger.NewNopLogger()

	// These calls will be no-ops (no output, no overhead)
	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")
	log.Error("error message")

	// Sync is safe to call
	_ = log.Sync()
	// Output:
}
