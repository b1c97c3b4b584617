// Package chain defines the interface boundary between the harness core
// and the ledger it verifies.
//
// The core never talks to a network directly: invariant rules and contract
// stages read storage through Querier and mutate it through Submitter. The
// production implementation wraps the node's RPC client; this package also
// ships LocalChain, a sqlite-backed implementation used for offline fuzzing
// and deterministic tests.
//
// Raw values are wire-format text (hex or decimal) that internal/fixed can
// decode. Composite values (edge lists, positions) are field-joined with
// '/' and list-joined with '|'; the per-field decoders in
// internal/subtensor own those splits.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Key is a storage key tuple. Maps are keyed by one, two, or three
// components depending on the storage map.
type Key []string

// String renders the tuple for logs and violation messages.
func (k Key) String() string {
	return strings.Join(k, ",")
}

// Entry is one (key, raw value) pair from a storage map.
type Entry struct {
	Key   Key
	Value string
}

// Cursor is an opaque resumption token for paginated scans. The empty
// cursor means "start from the beginning".
type Cursor string

// Start is the beginning-of-map cursor.
const Start Cursor = ""

// Querier is the read side of the ledger. Implementations must signal a
// missing value with ErrNotFound, distinctly from an empty value.
type Querier interface {
	// ReadField returns the raw value at (mapID, key).
	ReadField(ctx context.Context, mapID string, key Key) (string, error)

	// ScanPage returns up to pageSize entries of mapID whose keys begin
	// with prefix, starting after cursor. done is true when no further
	// pages exist. Entries are returned in a stable key order so that
	// restarting a scan from Start always yields the same sequence.
	ScanPage(ctx context.Context, mapID string, prefix Key, cursor Cursor, pageSize int) (entries []Entry, next Cursor, done bool, err error)
}

// Receipt is the confirmation handle for a finalized mutation.
type Receipt struct {
	// Op is the operation that was submitted.
	Op string

	// Block is the height at which the mutation was included.
	Block uint64
}

// Submitter is the write side of the ledger. Submit blocks until the
// mutation is finalized or rejected; rejections surface as *Fault.
type Submitter interface {
	Submit(ctx context.Context, op string, args map[string]string, signer AccountID) (Receipt, error)
}

// ErrNotFound signals that a storage value does not exist. Distinct from
// an empty value, which is a present entry with empty text.
var ErrNotFound = errors.New("chain: value not found")

// Fault is a structured rejection from the ledger, identified by the
// originating module and error code. The contract framework surfaces the
// module and code verbatim in failure messages.
type Fault struct {
	Module  string
	Code    string
	Message string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("%s.%s: %s", f.Module, f.Code, f.Message)
	}
	return fmt.Sprintf("%s.%s", f.Module, f.Code)
}

// AsFault extracts a *Fault from err, if present.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
