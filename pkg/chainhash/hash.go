// Package chainhash defines the 256-bit hash type used throughout the
// consensus core: block header hashes, transaction hashes, and merkle nodes.
package chainhash

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// Size is the length of a hash in bytes.
const Size = 32

// Hash represents a 256-bit hash value.
type Hash [Size]byte

// Sum computes the BLAKE3-256 hash of data.
func Sum(data []byte) Hash {
	return blake3.Sum256(data)
}

// Concat hashes the concatenation of two hashes. Used for merkle pairing.
func Concat(a, b Hash) Hash {
	var buf [2 * Size]byte
	copy(buf[:Size], a[:])
	copy(buf[Size:], b[:])
	return Sum(buf[:])
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(decoded) != Size {
		return fmt.Errorf("hash must be %d bytes, got %d", Size, len(decoded))
	}
	copy(h[:], decoded)
	return nil
}

// FromHex converts a hex string to a Hash.
func FromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != Size {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", Size, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// Less reports whether h sorts strictly before o, treating each hash as a
// big-endian integer.
func (h Hash) Less(o Hash) bool {
	for i := range h {
		if h[i] != o[i] {
			return h[i] < o[i]
		}
	}
	return false
}
