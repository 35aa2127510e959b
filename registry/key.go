package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MarkKey is the fixed-width digest derived from an identifier string. It is
// the only storage key the registry uses: the original identifier is never
// persisted and cannot be recovered from the key, so callers re-supply the
// identifier string on every operation.
type MarkKey [sha256.Size]byte

// KeyFor derives the MarkKey for an identifier. Two identifiers map to the
// same key iff their SHA-256 digests collide, which the registry treats as
// never happening.
func KeyFor(identifier string) MarkKey {
	return sha256.Sum256([]byte(identifier))
}

// Hex returns the lowercase hex encoding of the key, used for KV storage
// keys and event payloads.
func (k MarkKey) Hex() string {
	return hex.EncodeToString(k[:])
}

// String implements fmt.Stringer.
func (k MarkKey) String() string {
	return k.Hex()
}

// ParseKey decodes a hex-encoded MarkKey, as stored in the KV bucket.
func ParseKey(s string) (MarkKey, error) {
	var k MarkKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("parse mark key %q: %w", s, err)
	}
	if len(b) != sha256.Size {
		return k, fmt.Errorf("parse mark key %q: got %d bytes, want %d", s, len(b), sha256.Size)
	}
	copy(k[:], b)
	return k, nil
}
