package chain

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// AccountID is the display form of a ledger identity (hotkey or coldkey):
// a base58 encoding of the 32-byte public key. Violation messages and
// journal lines use this form; storage keys carry whatever encoding the
// Querier implementation uses.
type AccountID string

// DeriveAccount computes a deterministic test-actor account from a seed
// phrase. Test actors have no real key material; the "public key" is a
// hash of the seed, computed once by the caller and cached in its actor
// configuration rather than re-derived per contract run.
func DeriveAccount(seed string) AccountID {
	sum := sha256.Sum256([]byte(seed))
	return AccountID(base58.Encode(sum[:]))
}

// DecodeAccount validates that s is well-formed base58 of a 32-byte key.
func DecodeAccount(s string) (AccountID, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("decode account %q: %w", s, err)
	}
	if len(raw) != sha256.Size {
		return "", fmt.Errorf("decode account %q: want 32 bytes, got %d", s, len(raw))
	}
	return AccountID(s), nil
}

// Short returns a truncated form for compact log lines.
func (a AccountID) Short() string {
	if len(a) <= 8 {
		return string(a)
	}
	return string(a[:4]) + ".." + string(a[len(a)-4:])
}
