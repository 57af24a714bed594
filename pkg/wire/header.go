// Package wire defines the block/transaction contract consumed by the chain
// manager (spec §6): the chain manager never imports a concrete block type,
// only these interfaces plus chaincfg.NetworkParams. RefHeader/RefBlock/
// RefTransaction are a reference implementation for tests and cmd/ledgerd.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
)

// Header is the block-header contract the chain manager operates on. It
// never needs to know about a block's transactions to link, order, or
// weigh candidates.
type Header interface {
	Hash() chainhash.Hash
	PrevBlockHash() chainhash.Hash
	MerkleRoot() chainhash.Hash
	TimeSeconds() int64
	DifficultyTargetCompact() uint32
	DifficultyTargetAsInteger() *big.Int
	CloneAsHeader() Header
	Serialize() ([]byte, error)

	// VerifyHeader checks the header's own internal consistency and that its
	// hash satisfies its stated proof-of-work target. It does not check that
	// the stated target itself is the one the difficulty engine expects —
	// that comparison belongs to the chain manager's verify-difficulty step.
	VerifyHeader() error
}

var (
	// ErrHashAboveTarget means the header's hash does not satisfy its own
	// stated proof-of-work target.
	ErrHashAboveTarget = fmt.Errorf("wire: header hash exceeds its difficulty target")
	// ErrBadTimestamp means the header carries a timestamp of zero or less.
	ErrBadTimestamp = fmt.Errorf("wire: header timestamp must be positive")
)

// RefHeader is the reference Header implementation.
type RefHeader struct {
	Version    uint32
	PrevHash   chainhash.Hash
	MerkleRootHash chainhash.Hash
	Timestamp  int64
	Bits       uint32 // compact-encoded difficulty target
	Nonce      uint64
}

// headerJSON mirrors RefHeader with hex-encoded hash fields, matching the
// teacher's hex-over-JSON convention for binary fields.
type headerJSON struct {
	Version    uint32 `json:"version"`
	PrevHash   string `json:"prev_hash"`
	MerkleRoot string `json:"merkle_root"`
	Timestamp  int64  `json:"timestamp"`
	Bits       uint32 `json:"bits"`
	Nonce      uint64 `json:"nonce"`
}

func (h *RefHeader) MarshalJSON() ([]byte, error) {
	return json.Marshal(headerJSON{
		Version:    h.Version,
		PrevHash:   h.PrevHash.String(),
		MerkleRoot: h.MerkleRootHash.String(),
		Timestamp:  h.Timestamp,
		Bits:       h.Bits,
		Nonce:      h.Nonce,
	})
}

func (h *RefHeader) UnmarshalJSON(data []byte) error {
	var hj headerJSON
	if err := json.Unmarshal(data, &hj); err != nil {
		return err
	}
	prev, err := chainhash.FromHex(hj.PrevHash)
	if err != nil {
		return fmt.Errorf("prev_hash: %w", err)
	}
	root, err := chainhash.FromHex(hj.MerkleRoot)
	if err != nil {
		return fmt.Errorf("merkle_root: %w", err)
	}
	h.Version = hj.Version
	h.PrevHash = prev
	h.MerkleRootHash = root
	h.Timestamp = hj.Timestamp
	h.Bits = hj.Bits
	h.Nonce = hj.Nonce
	return nil
}

// signingBytes serializes the fields that go into the header hash: every
// field except the hash itself. Fixed-width little-endian layout, same shape
// as the teacher's SigningBytes.
func (h *RefHeader) signingBytes() []byte {
	buf := make([]byte, 4+chainhash.Size+chainhash.Size+8+4+8)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], h.Version)
	off += 4
	copy(buf[off:], h.PrevHash[:])
	off += chainhash.Size
	copy(buf[off:], h.MerkleRootHash[:])
	off += chainhash.Size
	binary.LittleEndian.PutUint64(buf[off:], uint64(h.Timestamp))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], h.Bits)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.Nonce)
	return buf
}

// Hash returns the header's identity hash.
func (h *RefHeader) Hash() chainhash.Hash {
	return chainhash.Sum(h.signingBytes())
}

// PrevBlockHash returns the parent's hash.
func (h *RefHeader) PrevBlockHash() chainhash.Hash { return h.PrevHash }

// MerkleRoot returns the merkle root of the block's transactions.
func (h *RefHeader) MerkleRoot() chainhash.Hash { return h.MerkleRootHash }

// TimeSeconds returns the header's timestamp as unix seconds.
func (h *RefHeader) TimeSeconds() int64 { return h.Timestamp }

// DifficultyTargetCompact returns the header's stated target in compact form.
func (h *RefHeader) DifficultyTargetCompact() uint32 { return h.Bits }

// DifficultyTargetAsInteger decodes the compact target into a 256-bit integer.
func (h *RefHeader) DifficultyTargetAsInteger() *big.Int {
	return chainutil.CompactToBig(h.Bits)
}

// CloneAsHeader returns a detached copy, safe to hand to a listener without
// aliasing the original.
func (h *RefHeader) CloneAsHeader() Header {
	clone := *h
	return &clone
}

// Serialize returns the header's canonical wire encoding (JSON, matching the
// teacher's persistence format).
func (h *RefHeader) Serialize() ([]byte, error) {
	return json.Marshal(h)
}

// VerifyHeader checks the timestamp is sane and the hash satisfies the
// stated target. It does not validate the target against the difficulty
// engine's expectation.
func (h *RefHeader) VerifyHeader() error {
	if h.Timestamp <= 0 {
		return ErrBadTimestamp
	}
	target := h.DifficultyTargetAsInteger()
	if target.Sign() <= 0 {
		return ErrHashAboveTarget
	}
	hash := h.Hash()
	hashInt := new(big.Int).SetBytes(hash[:])
	if hashInt.Cmp(target) > 0 {
		return ErrHashAboveTarget
	}
	return nil
}

// DeserializeHeader parses a RefHeader from its Serialize() encoding.
func DeserializeHeader(data []byte) (*RefHeader, error) {
	var h RefHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
