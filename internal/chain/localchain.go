package chain

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// cursorSep joins key components inside a cursor token. Unit separator
// cannot appear in key text.
const cursorSep = "\x1f"

// OpHandler applies one ledger operation inside a transaction. Returning
// a *Fault rejects the submission with that structured reason; any other
// error aborts it as an infrastructure failure.
type OpHandler func(ctx context.Context, tx *Tx, args map[string]string, signer AccountID) error

// LocalChain is a sqlite-backed ledger implementing Querier and Submitter.
// It exists so the whole harness pipeline (scan, decode, verify, mutate)
// can run offline with deterministic state, and so tests exercise the same
// code paths as a live node.
//
// Use ":memory:" as the path for a throwaway instance.
type LocalChain struct {
	db       *sql.DB
	handlers map[string]OpHandler
}

// OpenLocal creates or opens a local chain database.
func OpenLocal(path string) (*LocalChain, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open local chain: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect local chain: %w", err)
	}

	// sqlite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent page fetches.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &LocalChain{
		db:       db,
		handlers: make(map[string]OpHandler),
	}, nil
}

// Close closes the underlying database.
func (c *LocalChain) Close() error {
	return c.db.Close()
}

// RegisterOp installs the handler for an operation id. Duplicate
// registration is a programming error and is rejected.
func (c *LocalChain) RegisterOp(op string, h OpHandler) error {
	if _, ok := c.handlers[op]; ok {
		return fmt.Errorf("duplicate operation handler: %s", op)
	}
	c.handlers[op] = h
	return nil
}

// ReadField implements Querier.
func (c *LocalChain) ReadField(ctx context.Context, mapID string, key Key) (string, error) {
	k := padKey(key)
	var value string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM storage WHERE map_id = ? AND k1 = ? AND k2 = ? AND k3 = ?`,
		mapID, k[0], k[1], k[2],
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s[%s]: %w", mapID, key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read %s[%s]: %w", mapID, key, err)
	}
	return value, nil
}

// ScanPage implements Querier. Entries come back ordered by key tuple so
// restarted scans are stable; the cursor is the last returned tuple.
func (c *LocalChain) ScanPage(ctx context.Context, mapID string, prefix Key, cursor Cursor, pageSize int) ([]Entry, Cursor, bool, error) {
	if pageSize <= 0 {
		return nil, cursor, false, fmt.Errorf("scan %s: page size must be positive, got %d", mapID, pageSize)
	}

	query := `SELECT k1, k2, k3, value FROM storage WHERE map_id = ?`
	args := []any{mapID}

	for i, comp := range prefix {
		query += fmt.Sprintf(" AND k%d = ?", i+1)
		args = append(args, comp)
	}

	if cursor != Start {
		last := strings.Split(string(cursor), cursorSep)
		if len(last) != 3 {
			return nil, cursor, false, fmt.Errorf("scan %s: malformed cursor %q", mapID, cursor)
		}
		query += ` AND (k1, k2, k3) > (?, ?, ?)`
		args = append(args, last[0], last[1], last[2])
	}

	query += ` ORDER BY k1, k2, k3 LIMIT ?`
	args = append(args, pageSize)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cursor, false, fmt.Errorf("scan %s: %w", mapID, err)
	}
	defer rows.Close()

	var entries []Entry
	var lastTuple [3]string
	for rows.Next() {
		var k1, k2, k3, value string
		if err := rows.Scan(&k1, &k2, &k3, &value); err != nil {
			return nil, cursor, false, fmt.Errorf("scan %s: %w", mapID, err)
		}
		entries = append(entries, Entry{Key: trimKey(Key{k1, k2, k3}), Value: value})
		lastTuple = [3]string{k1, k2, k3}
	}
	if err := rows.Err(); err != nil {
		return nil, cursor, false, fmt.Errorf("scan %s: %w", mapID, err)
	}

	if len(entries) == 0 {
		return nil, cursor, true, nil
	}
	next := Cursor(strings.Join(lastTuple[:], cursorSep))
	return entries, next, len(entries) < pageSize, nil
}

// Submit implements Submitter. The handler runs inside a transaction;
// a *Fault return rolls back and surfaces the structured rejection, any
// other error rolls back as an infrastructure failure. On commit the
// block counter advances, emulating finality.
func (c *LocalChain) Submit(ctx context.Context, op string, args map[string]string, signer AccountID) (Receipt, error) {
	h, ok := c.handlers[op]
	if !ok {
		return Receipt{}, &Fault{Module: "LocalChain", Code: "UnknownOperation", Message: op}
	}

	sqlTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("submit %s: begin: %w", op, err)
	}
	tx := &Tx{tx: sqlTx}

	if err := h(ctx, tx, args, signer); err != nil {
		sqlTx.Rollback()
		return Receipt{}, fmt.Errorf("submit %s: %w", op, err)
	}

	var block uint64
	err = sqlTx.QueryRowContext(ctx,
		`UPDATE meta SET value = value + 1 WHERE name = 'block' RETURNING value`,
	).Scan(&block)
	if err != nil {
		sqlTx.Rollback()
		return Receipt{}, fmt.Errorf("submit %s: advance block: %w", op, err)
	}

	if err := sqlTx.Commit(); err != nil {
		return Receipt{}, fmt.Errorf("submit %s: commit: %w", op, err)
	}
	return Receipt{Op: op, Block: block}, nil
}

// Seed writes a storage entry directly, outside any operation. Intended
// for fixture setup in tests and for the fuzz command's genesis state.
func (c *LocalChain) Seed(ctx context.Context, mapID string, key Key, value string) error {
	k := padKey(key)
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO storage (map_id, k1, k2, k3, value) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (map_id, k1, k2, k3) DO UPDATE SET value = excluded.value`,
		mapID, k[0], k[1], k[2], value,
	)
	if err != nil {
		return fmt.Errorf("seed %s[%s]: %w", mapID, key, err)
	}
	return nil
}

// Tx exposes storage reads and writes to operation handlers within the
// submission transaction.
type Tx struct {
	tx *sql.Tx
}

// Read returns the raw value at (mapID, key), or ErrNotFound.
func (t *Tx) Read(ctx context.Context, mapID string, key Key) (string, error) {
	k := padKey(key)
	var value string
	err := t.tx.QueryRowContext(ctx,
		`SELECT value FROM storage WHERE map_id = ? AND k1 = ? AND k2 = ? AND k3 = ?`,
		mapID, k[0], k[1], k[2],
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s[%s]: %w", mapID, key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read %s[%s]: %w", mapID, key, err)
	}
	return value, nil
}

// Put upserts the value at (mapID, key).
func (t *Tx) Put(ctx context.Context, mapID string, key Key, value string) error {
	k := padKey(key)
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO storage (map_id, k1, k2, k3, value) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (map_id, k1, k2, k3) DO UPDATE SET value = excluded.value`,
		mapID, k[0], k[1], k[2], value,
	)
	if err != nil {
		return fmt.Errorf("put %s[%s]: %w", mapID, key, err)
	}
	return nil
}

// Delete removes the entry at (mapID, key). Deleting a missing entry is
// not an error.
func (t *Tx) Delete(ctx context.Context, mapID string, key Key) error {
	k := padKey(key)
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM storage WHERE map_id = ? AND k1 = ? AND k2 = ? AND k3 = ?`,
		mapID, k[0], k[1], k[2],
	)
	if err != nil {
		return fmt.Errorf("delete %s[%s]: %w", mapID, key, err)
	}
	return nil
}

func padKey(key Key) [3]string {
	var k [3]string
	copy(k[:], key)
	return k
}

func trimKey(key Key) Key {
	end := len(key)
	for end > 0 && key[end-1] == "" {
		end--
	}
	return key[:end]
}
