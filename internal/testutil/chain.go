package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gztensor/qa-automation/internal/chain"
)

// FakeQuerier is an in-memory chain.Querier for tests. Entries are held
// sorted by key tuple so pagination order matches the real implementations.
//
// Page failures can be scripted with FailOnPage to exercise ScanError
// handling; the failure triggers once and then clears.
type FakeQuerier struct {
	mu       sync.Mutex
	maps     map[string][]chain.Entry
	failPage map[string]int // mapID -> 1-based page index that fails
	pages    map[string]int // mapID -> pages served since last reset
}

// NewFakeQuerier creates an empty fake.
func NewFakeQuerier() *FakeQuerier {
	return &FakeQuerier{
		maps:     make(map[string][]chain.Entry),
		failPage: make(map[string]int),
		pages:    make(map[string]int),
	}
}

// Put inserts or replaces one entry.
func (f *FakeQuerier) Put(mapID string, key chain.Key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := f.maps[mapID]
	for i, e := range entries {
		if e.Key.String() == key.String() {
			entries[i].Value = value
			return
		}
	}
	entries = append(entries, chain.Entry{Key: key, Value: value})
	sort.Slice(entries, func(i, j int) bool {
		return tupleLess(entries[i].Key, entries[j].Key)
	})
	f.maps[mapID] = entries
}

// FailOnPage makes the Nth page fetch (1-based) of mapID fail once.
func (f *FakeQuerier) FailOnPage(mapID string, page int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPage[mapID] = page
	f.pages[mapID] = 0
}

// ReadField implements chain.Querier.
func (f *FakeQuerier) ReadField(ctx context.Context, mapID string, key chain.Key) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range f.maps[mapID] {
		if e.Key.String() == key.String() {
			return e.Value, nil
		}
	}
	return "", fmt.Errorf("%s[%s]: %w", mapID, key, chain.ErrNotFound)
}

// ScanPage implements chain.Querier. The cursor is the numeric offset of
// the next entry, which is stable because the fake never reorders.
func (f *FakeQuerier) ScanPage(ctx context.Context, mapID string, prefix chain.Key, cursor chain.Cursor, pageSize int) ([]chain.Entry, chain.Cursor, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pages[mapID]++
	if fail := f.failPage[mapID]; fail > 0 && f.pages[mapID] == fail {
		delete(f.failPage, mapID)
		return nil, cursor, false, fmt.Errorf("injected page failure for %s", mapID)
	}

	var filtered []chain.Entry
	for _, e := range f.maps[mapID] {
		if hasPrefix(e.Key, prefix) {
			filtered = append(filtered, e)
		}
	}

	offset := 0
	if cursor != chain.Start {
		n, err := strconv.Atoi(string(cursor))
		if err != nil {
			return nil, cursor, false, fmt.Errorf("malformed cursor %q", cursor)
		}
		offset = n
	}

	if offset >= len(filtered) {
		return nil, cursor, true, nil
	}

	end := offset + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	page := filtered[offset:end]
	next := chain.Cursor(strconv.Itoa(end))
	return page, next, end == len(filtered), nil
}

func hasPrefix(key, prefix chain.Key) bool {
	if len(prefix) > len(key) {
		return false
	}
	for i, p := range prefix {
		if key[i] != p {
			return false
		}
	}
	return true
}

func tupleLess(a, b chain.Key) bool {
	return strings.Join(a, "\x1f") < strings.Join(b, "\x1f")
}
