package wire

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
)

// Transaction is the contract the chain manager needs from a transaction:
// enough to identify it, order it, and decide whether it could possibly be
// spent yet. Inputs and outputs are opaque to the core through this
// interface; a full-validation store's UTXO bookkeeping (blockstore's
// connectTransactions/disconnectTransactions) reaches past it to the
// concrete *RefTransaction fields instead, the same way blockstore already
// requires a concrete *RefBlock/*RefHeader.
type Transaction interface {
	Hash() chainhash.Hash
	IsFinal(height uint64, blockTimeSeconds int64) bool
	Serialize() ([]byte, error)
}

// OutPoint identifies one specific output of a previous transaction.
type OutPoint struct {
	Hash  chainhash.Hash `json:"hash"`
	Index uint32         `json:"index"`
}

// TxOutput is a spendable output: a value and the hash of the key allowed
// to spend it. Script evaluation belongs to the caller's application layer;
// the core only tracks an output's creation and consumption.
type TxOutput struct {
	Value      uint64 `json:"value"`
	PubKeyHash []byte `json:"pub_key_hash"`
}

// RefTransaction is the reference Transaction implementation: a signed
// payload plus the inputs it spends and the outputs it creates, enough to
// exercise a real UTXO set and spend-authorization signature.
type RefTransaction struct {
	Version  uint32
	LockTime uint64 // 0 = always final; else a height or unix-time threshold
	Payload  []byte
	Inputs   []OutPoint // empty for a block's first (coinbase-equivalent) tx
	Outputs  []TxOutput
	PubKey   []byte // compressed secp256k1 public key, or nil if unsigned
	Sig      []byte // DER-encoded ECDSA signature over Hash(), or nil
}

type txJSON struct {
	Version  uint32     `json:"version"`
	LockTime uint64     `json:"lock_time"`
	Payload  string     `json:"payload"`
	Inputs   []OutPoint `json:"inputs,omitempty"`
	Outputs  []TxOutput `json:"outputs,omitempty"`
	PubKey   string     `json:"pub_key,omitempty"`
	Sig      string     `json:"sig,omitempty"`
}

func (t *RefTransaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(txJSON{
		Version:  t.Version,
		LockTime: t.LockTime,
		Payload:  hex.EncodeToString(t.Payload),
		Inputs:   t.Inputs,
		Outputs:  t.Outputs,
		PubKey:   hex.EncodeToString(t.PubKey),
		Sig:      hex.EncodeToString(t.Sig),
	})
}

func (t *RefTransaction) UnmarshalJSON(data []byte) error {
	var tj txJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}
	payload, err := hex.DecodeString(tj.Payload)
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	pubKey, err := hex.DecodeString(tj.PubKey)
	if err != nil {
		return fmt.Errorf("pub_key: %w", err)
	}
	sig, err := hex.DecodeString(tj.Sig)
	if err != nil {
		return fmt.Errorf("sig: %w", err)
	}
	t.Version = tj.Version
	t.LockTime = tj.LockTime
	t.Payload = payload
	t.Inputs = tj.Inputs
	t.Outputs = tj.Outputs
	t.PubKey = pubKey
	t.Sig = sig
	return nil
}

// signingBytes is everything hashed for the transaction's identity, excluding
// the signature itself.
func (t *RefTransaction) signingBytes() []byte {
	buf := make([]byte, 0, 12+len(t.Payload)+36*len(t.Inputs)+40*len(t.Outputs))
	var vb [4]byte
	vb[0] = byte(t.Version)
	vb[1] = byte(t.Version >> 8)
	vb[2] = byte(t.Version >> 16)
	vb[3] = byte(t.Version >> 24)
	buf = append(buf, vb[:]...)
	var lb [8]byte
	for i := range lb {
		lb[i] = byte(t.LockTime >> (8 * i))
	}
	buf = append(buf, lb[:]...)
	buf = append(buf, t.Payload...)
	for _, in := range t.Inputs {
		buf = append(buf, in.Hash[:]...)
		var idx [4]byte
		binary.LittleEndian.PutUint32(idx[:], in.Index)
		buf = append(buf, idx[:]...)
	}
	for _, out := range t.Outputs {
		var val [8]byte
		binary.LittleEndian.PutUint64(val[:], out.Value)
		buf = append(buf, val[:]...)
		buf = append(buf, out.PubKeyHash...)
	}
	return buf
}

// Hash returns the transaction's identity hash.
func (t *RefTransaction) Hash() chainhash.Hash {
	return chainhash.Sum(t.signingBytes())
}

// IsFinal reports whether the transaction's lock time has been reached.
// A lock time below 500000000 is interpreted as a block height threshold,
// matching the teacher's tx finality convention; otherwise it is a unix
// timestamp threshold.
func (t *RefTransaction) IsFinal(height uint64, blockTimeSeconds int64) bool {
	if t.LockTime == 0 {
		return true
	}
	if t.LockTime < 500000000 {
		return height >= t.LockTime
	}
	return uint64(blockTimeSeconds) >= t.LockTime
}

// Serialize returns the transaction's canonical wire encoding.
func (t *RefTransaction) Serialize() ([]byte, error) {
	return json.Marshal(t)
}

// Sign authorizes the transaction's current payload with priv, setting
// PubKey and Sig, via the reference secp256k1 signing path.
func (t *RefTransaction) Sign(priv *secp256k1.PrivateKey) {
	t.PubKey = priv.PubKey().SerializeCompressed()
	hash := t.Hash()
	sig := ecdsa.Sign(priv, hash[:])
	t.Sig = sig.Serialize()
}

// VerifySignature checks Sig against PubKey over the transaction's hash.
// Returns false if either field is unset.
func (t *RefTransaction) VerifySignature() bool {
	if len(t.PubKey) == 0 || len(t.Sig) == 0 {
		return false
	}
	pubKey, err := secp256k1.ParsePubKey(t.PubKey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(t.Sig)
	if err != nil {
		return false
	}
	hash := t.Hash()
	return sig.Verify(hash[:], pubKey)
}
