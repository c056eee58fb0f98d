// Package progress reports decode progress on the console.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/user/chunkdecode/pkg/ports"
)

const barWidth = 30

// Console draws a progress bar in latent frames. On a terminal the bar is
// redrawn in place; otherwise one line is written per update.
type Console struct {
	mu          sync.Mutex
	w           io.Writer
	interactive bool
	total       int
	done        int
	started     bool
}

var _ ports.ProgressReporter = (*Console)(nil)

// NewConsole creates a reporter writing to stderr.
func NewConsole() *Console {
	fd := os.Stderr.Fd()
	return New(os.Stderr, isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

// New creates a reporter writing to w.
func New(w io.Writer, interactive bool) *Console {
	return &Console{w: w, interactive: interactive}
}

// Start resets the reporter for total latent frames.
func (c *Console) Start(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = total
	c.done = 0
	c.started = true
	c.draw()
}

// Advance records n more latent frames as decoded.
func (c *Console) Advance(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.done += n
	if c.done > c.total {
		c.done = c.total
	}
	c.draw()
}

// Finish terminates the bar line.
func (c *Console) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	if c.interactive {
		fmt.Fprintln(c.w)
	}
}

func (c *Console) draw() {
	line := Line(c.done, c.total)
	if c.interactive {
		fmt.Fprintf(c.w, "\r%s", line)
		return
	}
	fmt.Fprintln(c.w, line)
}

// Line formats a progress bar such as "[=====>    ] 4/10 latent frames".
func Line(done, total int) string {
	filled := 0
	if total > 0 {
		filled = done * barWidth / total
	}
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-filled-1)
	}
	return fmt.Sprintf("[%s] %d/%d latent frames", bar, done, total)
}

// Noop discards progress.
type Noop struct{}

func (Noop) Start(int)   {}
func (Noop) Advance(int) {}
func (Noop) Finish()     {}
