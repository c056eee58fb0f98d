// Package ports defines the interfaces the decode pipeline depends on:
// the latent decoder itself, memory reclamation, progress, logging and the
// output adapters (renderer, encoder, filesystem, debug sink).
package ports

import "fmt"

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LevelDebug is used by stages for per-chunk details.
	LevelDebug LogLevel = iota
	// LevelInfo is used by the orchestrator for run-level progress.
	LevelInfo
	// LevelWarn is used for degradation events, probe fallbacks and length mismatches.
	LevelWarn
	// LevelError is used for failures that abort a run.
	LevelError
	// LevelQuiet suppresses all log output.
	LevelQuiet
)

var levelNames = map[LogLevel]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
	LevelQuiet: "quiet",
}

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseLogLevel parses a level name. Unknown names fall back to info.
func ParseLogLevel(s string) LogLevel {
	level, err := LookupLogLevel(s)
	if err != nil {
		return LevelInfo
	}
	return level
}

// LookupLogLevel parses a level name and reports unknown names as an error.
func LookupLogLevel(s string) (LogLevel, error) {
	for level, name := range levelNames {
		if name == s {
			return level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger abstracts logging with message translation.
// The msg parameter is a catalogue key that may be translated before formatting.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// WithComponent returns a Logger that prefixes messages with the component name.
	WithComponent(component string) Logger
}
