// Package progress renders pool completion events on a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"avif-converter-go/internal/converter"
	"avif-converter-go/internal/pool"

	"github.com/mattn/go-isatty"
)

// Printer tallies completion events and, when enabled, redraws a single
// status line per event.
type Printer struct {
	w       io.Writer
	enabled bool

	mu     sync.Mutex
	counts map[converter.Status]int
	drawn  bool
}

// New returns a Printer writing to w. A disabled Printer only counts.
func New(w io.Writer, enabled bool) *Printer {
	return &Printer{
		w:       w,
		enabled: enabled,
		counts:  make(map[converter.Status]int),
	}
}

// ForStderr returns a Printer on stderr, enabled only when show is set and
// stderr is a terminal.
func ForStderr(show bool) *Printer {
	fd := os.Stderr.Fd()
	tty := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	return New(os.Stderr, show && tty)
}

// Enabled reports whether the Printer draws anything.
func (p *Printer) Enabled() bool {
	return p.enabled
}

// Observe is a pool.Observer.
func (p *Printer) Observe(e pool.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[e.Outcome.Status]++
	if !p.enabled {
		return
	}

	pct := 0
	if e.Total > 0 {
		pct = e.Done * 100 / e.Total
	}
	fmt.Fprintf(p.w, "\r\033[K[%d/%d %3d%%] %s %s", e.Done, e.Total, pct,
		e.Outcome.Status, filepath.Base(e.Outcome.SourcePath))
	p.drawn = true
}

// Count returns how many observed outcomes had the given status.
func (p *Printer) Count(s converter.Status) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[s]
}

// Finish terminates the status line so later output starts on a fresh line.
func (p *Printer) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}
