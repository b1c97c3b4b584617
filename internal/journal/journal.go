// Package journal writes the append-only run journal: one line per
// contract run, `<timestamp>>OK <summary>` or `<timestamp>>ERROR
// <summary>`. Summaries are newline-free; embedded line breaks are
// flattened so one run is always exactly one line.
package journal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var flatten = strings.NewReplacer("\n", " ", "\r", " ")

// Journal appends run outcome lines to a writer. Safe for concurrent use.
type Journal struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer // nil when the writer is not ours to close
	now func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// New creates a Journal writing to w.
func New(w io.Writer, opts ...Option) *Journal {
	j := &Journal{w: w, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Open creates or appends to the journal file at path.
func Open(path string, opts ...Option) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	j := New(f, opts...)
	j.c = f
	return j, nil
}

// OK records a successful run.
func (j *Journal) OK(summary string) error {
	return j.write("OK", summary)
}

// Error records a failed run.
func (j *Journal) Error(summary string) error {
	return j.write("ERROR", summary)
}

func (j *Journal) write(tag, summary string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	ts := j.now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s>%s %s\n", ts, tag, flatten.Replace(summary))
	if _, err := io.WriteString(j.w, line); err != nil {
		return fmt.Errorf("write journal line: %w", err)
	}
	return nil
}

// Close closes the underlying file when the journal owns one.
func (j *Journal) Close() error {
	if j.c == nil {
		return nil
	}
	return j.c.Close()
}
