// Package observability defines the diagnostic logging sink shared across tempo packages.
package observability

// Logger is a write-only diagnostic sink. Implementations must not panic
// back into the caller and must be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for constructing a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

var defaultLogger Logger = noopLogger{}

// SetLogger overrides the global logger used by the system.
func SetLogger(logger Logger) {
	if logger == nil {
		defaultLogger = noopLogger{}
		return
	}
	defaultLogger = logger
}

// Log returns the current global logger instance.
func Log() Logger {
	return defaultLogger
}

// Noop returns a logger that discards every record.
func Noop() Logger {
	return noopLogger{}
}

// IsNoop reports whether logger discards every record.
func IsNoop(logger Logger) bool {
	if logger == nil {
		return true
	}
	_, ok := logger.(noopLogger)
	return ok
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Warn(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}

// Safe wraps logger so that a panicking sink never propagates into the caller.
func Safe(logger Logger) Logger {
	if logger == nil {
		return noopLogger{}
	}
	if _, ok := logger.(safeLogger); ok {
		return logger
	}
	if IsNoop(logger) {
		return logger
	}
	return safeLogger{inner: logger}
}

type safeLogger struct {
	inner Logger
}

func (s safeLogger) Debug(msg string, fields ...Field) {
	defer recoverSink()
	s.inner.Debug(msg, fields...)
}

func (s safeLogger) Info(msg string, fields ...Field) {
	defer recoverSink()
	s.inner.Info(msg, fields...)
}

func (s safeLogger) Warn(msg string, fields ...Field) {
	defer recoverSink()
	s.inner.Warn(msg, fields...)
}

func (s safeLogger) Error(msg string, fields ...Field) {
	defer recoverSink()
	s.inner.Error(msg, fields...)
}

func recoverSink() {
	_ = recover()
}
