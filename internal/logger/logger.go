package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging interface used across the scheduler.
// Every component logs program and run activity through it, so swapping
// the backing implementation never touches call sites.
type Logger interface {
	// Debug logs diagnostic detail, e.g. per-item resolution steps.
	Debug(msg string, fields ...Field)

	// Info logs normal lifecycle events: runs started, entries published.
	Info(msg string, fields ...Field)

	// Warn logs recoverable trouble, e.g. a counter bump that failed.
	Warn(msg string, fields ...Field)

	// Error logs failures that need operator attention.
	Error(msg string, fields ...Field)

	// With returns a logger that attaches the given fields to every
	// subsequent entry. Workers use it to scope a logger to one run.
	With(fields ...Field) Logger

	// Sync flushes buffered entries. Call it on shutdown.
	Sync() error
}

// Field is a key-value pair attached to a log entry.
type Field = zapcore.Field

type zapLogger struct {
	logger *zap.Logger
}

func (l *zapLogger) Debug(msg string, fields ...Field) {
	l.logger.Debug(msg, fields...)
}

func (l *zapLogger) Info(msg string, fields ...Field) {
	l.logger.Info(msg, fields...)
}

func (l *zapLogger) Warn(msg string, fields ...Field) {
	l.logger.Warn(msg, fields...)
}

func (l *zapLogger) Error(msg string, fields ...Field) {
	l.logger.Error(msg, fields...)
}

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{logger: l.logger.With(fields...)}
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

// NewLogger builds the process logger.
//
// With debug true it produces colorized console output at debug level,
// ISO8601 timestamps, no sampling, and stack traces from warn up. That
// is the mode `scheduler serve --debug` runs in, where watching the
// tick loop interleave with API requests matters more than throughput.
//
// With debug false it delegates to zap.NewProduction: JSON output,
// info level, sampling on, stack traces only for errors.
func NewLogger(debug bool) (Logger, error) {
	var z *zap.Logger
	var err error

	if debug {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		config.Encoding = "console"
		config.Development = true
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		// Sampling would drop entries from a busy tick loop.
		config.Sampling = nil

		z, err = config.Build(zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		z, err = zap.NewProduction()
	}

	if err != nil {
		return nil, err
	}

	return &zapLogger{logger: z}, nil
}

// NewNopLogger returns a logger that discards everything. Repository
// and runner tests pass it wherever a Logger is required.
func NewNopLogger() Logger {
	return &zapLogger{logger: zap.NewNop()}
}
