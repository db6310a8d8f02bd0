package logger

import (
	"time"

	"go.uber.org/zap"
)

// Typed field constructors. These wrap zap's so that packages logging
// program, run, and publication activity only import this package.

// String creates a string field. Most identifiers in the scheduler
// (program IDs, run IDs, destinations) are logged this way.
func String(key, val string) Field {
	return zap.String(key, val)
}

// Int creates an int field, e.g. Int("items_planned", 12).
func Int(key string, val int) Field {
	return zap.Int(key, val)
}

// Int64 creates an int64 field. Queue depths and counter reads use it.
func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

// Float64 creates a float64 field, e.g. Float64("cost", 0.05).
func Float64(key string, val float64) Field {
	return zap.Float64(key, val)
}

// Bool creates a boolean field, e.g. Bool("debug", true).
func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

// Duration creates a time.Duration field. Tick intervals and run
// durations are logged with it.
func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

// Time creates a time.Time field, e.g. Time("next_run_at", next).
func Time(key string, val time.Time) Field {
	return zap.Time(key, val)
}

// Error creates a field for an error under the key "error".
func Error(err error) Field {
	return zap.Error(err)
}

// NamedError creates an error field with a custom key. Use it when one
// entry carries more than one error.
func NamedError(key string, err error) Field {
	return zap.NamedError(key, err)
}

// Any creates a field from an arbitrary value via reflection. Prefer
// the typed constructors on hot paths.
func Any(key string, val any) Field {
	return zap.Any(key, val)
}

// Strings creates a field from a string slice, e.g. the country or
// language codes of a resolved matrix.
func Strings(key string, val []string) Field {
	return zap.Strings(key, val)
}

// Stack captures the current stack trace under the key "stacktrace".
func Stack() Field {
	return zap.Stack("stacktrace")
}
