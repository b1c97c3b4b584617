// Package scanner iterates keyed storage maps in bounded-size pages.
//
// A scan is lazy and restartable only from the beginning; there is no
// cursor persistence across process restarts. When a page fetch fails the
// scan surfaces a ScanError carrying the last good cursor so callers can
// either retry the whole scan or resume with EachFrom — results are never
// silently truncated.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gztensor/qa-automation/internal/chain"
)

// DefaultPageSize bounds one storage query when the caller does not care.
const DefaultPageSize = 512

// ScanError reports a failed page fetch mid-scan. Cursor is the last
// cursor that produced a complete page; resuming from it re-fetches only
// the remainder of the map.
type ScanError struct {
	MapID  string
	Cursor chain.Cursor
	Err    error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s failed at cursor %q: %v", e.MapID, e.Cursor, e.Err)
}

// Unwrap exposes the underlying fetch error.
func (e *ScanError) Unwrap() error {
	return e.Err
}

// IsScanError reports whether err is (or wraps) a ScanError.
func IsScanError(err error) bool {
	var se *ScanError
	return errors.As(err, &se)
}

// Scanner pages through storage maps of a Querier.
type Scanner struct {
	q        chain.Querier
	pageSize int
	log      *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(s *Scanner) {
		s.pageSize = n
	}
}

// WithLogger attaches a logger for per-page debug output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.log = l
	}
}

// New creates a Scanner over q.
func New(q chain.Querier, opts ...Option) *Scanner {
	s := &Scanner{
		q:        q,
		pageSize: DefaultPageSize,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Each streams every entry of mapID under prefix to fn, one page at a
// time, starting from the beginning. fn returning false abandons the scan
// early without error; the accumulator state a caller built so far stays
// valid. Context cancellation is honored between pages (each page fetch is
// a potential suspension point).
func (s *Scanner) Each(ctx context.Context, mapID string, prefix chain.Key, fn func(chain.Entry) bool) error {
	return s.EachFrom(ctx, mapID, prefix, chain.Start, fn)
}

// EachFrom is Each resuming after a previously reported cursor.
func (s *Scanner) EachFrom(ctx context.Context, mapID string, prefix chain.Key, cursor chain.Cursor, fn func(chain.Entry) bool) error {
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return &ScanError{MapID: mapID, Cursor: cursor, Err: err}
		}

		entries, next, done, err := s.q.ScanPage(ctx, mapID, prefix, cursor, s.pageSize)
		if err != nil {
			return &ScanError{MapID: mapID, Cursor: cursor, Err: err}
		}
		pages++

		s.log.Debug("scan page",
			"map", mapID,
			"prefix", prefix.String(),
			"page", pages,
			"entries", len(entries),
			"done", done,
		)

		for _, e := range entries {
			if !fn(e) {
				return nil
			}
		}

		if done {
			return nil
		}
		cursor = next
	}
}

// Collect gathers the complete map under prefix into memory.
func (s *Scanner) Collect(ctx context.Context, mapID string, prefix chain.Key) ([]chain.Entry, error) {
	var out []chain.Entry
	err := s.Each(ctx, mapID, prefix, func(e chain.Entry) bool {
		out = append(out, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CollectMap gathers the complete map under prefix keyed by the key tuple
// rendering. Duplicate tuples cannot occur within one consistent snapshot.
func (s *Scanner) CollectMap(ctx context.Context, mapID string, prefix chain.Key) (map[string]chain.Entry, error) {
	out := make(map[string]chain.Entry)
	err := s.Each(ctx, mapID, prefix, func(e chain.Entry) bool {
		out[e.Key.String()] = e
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
