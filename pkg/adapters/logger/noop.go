package logger

import (
	"fmt"
	"sync"

	"github.com/user/chunkdecode/pkg/ports"
)

// NoopLogger discards everything. Used for --log-level quiet and in tests.
type NoopLogger struct{}

func NewNoop() *NoopLogger {
	return &NoopLogger{}
}

func (l *NoopLogger) Debug(msg string, args ...interface{}) {}
func (l *NoopLogger) Info(msg string, args ...interface{})  {}
func (l *NoopLogger) Warn(msg string, args ...interface{})  {}
func (l *NoopLogger) Error(msg string, args ...interface{}) {}

func (l *NoopLogger) WithComponent(component string) ports.Logger {
	return l
}

// Entry is one message captured by a Recorder, formatted untranslated.
type Entry struct {
	Level     ports.LogLevel
	Component string
	Message   string
}

// Recorder keeps every message in memory so tests can assert on what the
// stages reported. Loggers derived with WithComponent share the entries.
type Recorder struct {
	component string
	shared    *recorded
}

type recorded struct {
	mu      sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder {
	return &Recorder{shared: &recorded{}}
}

func (r *Recorder) Debug(msg string, args ...interface{}) { r.add(ports.LevelDebug, msg, args) }
func (r *Recorder) Info(msg string, args ...interface{})  { r.add(ports.LevelInfo, msg, args) }
func (r *Recorder) Warn(msg string, args ...interface{})  { r.add(ports.LevelWarn, msg, args) }
func (r *Recorder) Error(msg string, args ...interface{}) { r.add(ports.LevelError, msg, args) }

func (r *Recorder) WithComponent(component string) ports.Logger {
	return &Recorder{component: component, shared: r.shared}
}

// Entries returns the messages at level or above.
func (r *Recorder) Entries(level ports.LogLevel) []Entry {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	var out []Entry
	for _, e := range r.shared.entries {
		if e.Level >= level {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) add(level ports.LogLevel, msg string, args []interface{}) {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	r.shared.entries = append(r.shared.entries, Entry{
		Level:     level,
		Component: r.component,
		Message:   fmt.Sprintf(msg, args...),
	})
}
