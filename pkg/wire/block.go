package wire

import (
	"encoding/json"
	"fmt"

	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
)

// Block is the full-validation contract: a Header plus its transactions.
// Header-only ("SPV") callers never need this interface — they deal in
// Header alone, per spec §9's capability split.
type Block interface {
	Header
	Transactions() []Transaction

	// VerifyTransactions checks the block's transaction list is structurally
	// sound and that its merkle root matches the header's stated one.
	VerifyTransactions() error
}

var (
	// ErrEmptyBlock means a block has no transactions at all; every block
	// must carry at least a coinbase-equivalent first transaction.
	ErrEmptyBlock = fmt.Errorf("wire: block has no transactions")
	// ErrMerkleMismatch means the computed merkle root does not match the
	// header's stated one.
	ErrMerkleMismatch = fmt.Errorf("wire: merkle root mismatch")
	// ErrDuplicateTransaction means the same transaction hash appears twice.
	ErrDuplicateTransaction = fmt.Errorf("wire: duplicate transaction in block")
)

// RefBlock is the reference Block implementation.
type RefBlock struct {
	*RefHeader
	Txs []*RefTransaction
}

// NewRefBlock builds a block from a header and its transactions, computing
// and setting the header's merkle root.
func NewRefBlock(header *RefHeader, txs []*RefTransaction) *RefBlock {
	hashes := make([]chainhash.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	header.MerkleRootHash = ComputeMerkleRoot(hashes)
	return &RefBlock{RefHeader: header, Txs: txs}
}

// Transactions returns the block's transactions as the Transaction interface.
func (b *RefBlock) Transactions() []Transaction {
	out := make([]Transaction, len(b.Txs))
	for i, tx := range b.Txs {
		out[i] = tx
	}
	return out
}

// VerifyTransactions checks structural soundness: non-empty, no duplicate
// hashes, and a merkle root matching the header.
func (b *RefBlock) VerifyTransactions() error {
	if len(b.Txs) == 0 {
		return ErrEmptyBlock
	}
	seen := make(map[chainhash.Hash]struct{}, len(b.Txs))
	hashes := make([]chainhash.Hash, len(b.Txs))
	for i, tx := range b.Txs {
		h := tx.Hash()
		if _, dup := seen[h]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, h)
		}
		seen[h] = struct{}{}
		hashes[i] = h
	}
	if ComputeMerkleRoot(hashes) != b.MerkleRootHash {
		return ErrMerkleMismatch
	}
	return nil
}

// CloneAsHeader overrides RefHeader's method so a block handed to a listener
// can still be narrowed to just its header without aliasing.
func (b *RefBlock) CloneAsHeader() Header {
	return b.RefHeader.CloneAsHeader()
}

type blockJSON struct {
	Header *RefHeader       `json:"header"`
	Txs    []*RefTransaction `json:"transactions"`
}

func (b *RefBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(blockJSON{Header: b.RefHeader, Txs: b.Txs})
}

func (b *RefBlock) UnmarshalJSON(data []byte) error {
	var bj blockJSON
	if err := json.Unmarshal(data, &bj); err != nil {
		return err
	}
	b.RefHeader = bj.Header
	b.Txs = bj.Txs
	return nil
}
