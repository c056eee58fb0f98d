// Package logger provides the console and test loggers of the decode pipeline.
// Messages are catalogue keys translated through go-l10n before formatting.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"

	"github.com/user/chunkdecode/pkg/ports"
)

const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// ConsoleLogger writes run-level messages to out and warnings and errors to
// errOut. Components nest: "scale" under "decode" logs as [decode/scale].
type ConsoleLogger struct {
	level     ports.LogLevel
	component string
	color     bool
	out       io.Writer
	errOut    io.Writer
	mu        *sync.Mutex
}

// NewConsole creates a logger on stdout and stderr. Color is enabled when
// stdout is a terminal.
func NewConsole(level ports.LogLevel) *ConsoleLogger {
	l := NewWriters(level, os.Stdout, os.Stderr)
	l.color = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return l
}

// NewWriters creates an uncolored logger on arbitrary writers.
func NewWriters(level ports.LogLevel, out, errOut io.Writer) *ConsoleLogger {
	return &ConsoleLogger{
		level:  level,
		out:    out,
		errOut: errOut,
		mu:     &sync.Mutex{},
	}
}

func (l *ConsoleLogger) Debug(msg string, args ...interface{}) {
	l.log(ports.LevelDebug, msg, args...)
}

func (l *ConsoleLogger) Info(msg string, args ...interface{}) {
	l.log(ports.LevelInfo, msg, args...)
}

func (l *ConsoleLogger) Warn(msg string, args ...interface{}) {
	l.log(ports.LevelWarn, msg, args...)
}

func (l *ConsoleLogger) Error(msg string, args ...interface{}) {
	l.log(ports.LevelError, msg, args...)
}

// WithComponent returns a logger for component, nested under the current one.
func (l *ConsoleLogger) WithComponent(component string) ports.Logger {
	c := *l
	if l.component != "" && component != "" {
		c.component = l.component + "/" + component
	} else {
		c.component = l.component + component
	}
	return &c
}

func (l *ConsoleLogger) log(level ports.LogLevel, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	var b strings.Builder
	if l.color {
		switch level {
		case ports.LevelDebug:
			b.WriteString(colorGray)
		case ports.LevelWarn:
			b.WriteString(colorYellow)
		case ports.LevelError:
			b.WriteString(colorRed)
		}
	}
	if l.component != "" {
		if l.color {
			fmt.Fprintf(&b, "%s[%s]%s ", colorCyan, l.component, colorReset)
		} else {
			fmt.Fprintf(&b, "[%s] ", l.component)
		}
	}
	b.WriteString(l10n.F(msg, args...))
	if l.color && level != ports.LevelInfo {
		b.WriteString(colorReset)
	}

	w := l.out
	if level >= ports.LevelWarn {
		w = l.errOut
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(w, b.String())
}
