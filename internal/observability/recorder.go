package observability

import (
	"strings"
	"sync"
)

// Level names the severity of a recorded entry.
type Level string

const (
	// LevelDebug marks debug entries.
	LevelDebug Level = "debug"
	// LevelInfo marks informational entries.
	LevelInfo Level = "info"
	// LevelWarn marks warnings.
	LevelWarn Level = "warn"
	// LevelError marks errors.
	LevelError Level = "error"
)

// Entry is a single captured log record.
type Entry struct {
	Level   Level
	Message string
	Fields  []Field
}

// Field returns the value recorded for key.
func (e Entry) Field(key string) (any, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Recorder keeps every entry in memory. Used by tests and diagnostics dumps.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder constructs an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Debug(msg string, fields ...Field) { r.add(LevelDebug, msg, fields) }
func (r *Recorder) Info(msg string, fields ...Field)  { r.add(LevelInfo, msg, fields) }
func (r *Recorder) Warn(msg string, fields ...Field)  { r.add(LevelWarn, msg, fields) }
func (r *Recorder) Error(msg string, fields ...Field) { r.add(LevelError, msg, fields) }

func (r *Recorder) add(level Level, msg string, fields []Field) {
	copied := make([]Field, len(fields))
	copy(copied, fields)
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg, Fields: copied})
	r.mu.Unlock()
}

// Entries returns a copy of every captured entry.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns the number of entries at level whose message contains substr.
func (r *Recorder) Count(level Level, substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Level == level && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

// Reset discards captured entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}
