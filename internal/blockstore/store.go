// Package blockstore persists the chain manager's block index: stored
// headers/blocks, their height and cumulative work, the undo data a
// full-validation store needs to revert a block during a reorg, and (in
// full-validation mode) the UTXO set those undo records are built from.
// Grounded on the teacher's internal/chain/store.go key-prefix scheme and
// its internal/storage DB abstraction.
package blockstore

import (
	"fmt"

	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// ErrPruned means disconnectTransactions was asked to revert a block whose
// undo data is no longer available (spec §7's Pruned condition). The chain
// manager returns it from the failed reorg as-is; Rebuild only rebuilds
// derived indexes and does not restore undo data.
var ErrPruned = fmt.Errorf("blockstore: undo data pruned, cannot disconnect transactions")

// StoredBlock is the immutable triple the chain manager reasons about: a
// block's header, its height, and the cumulative work of the chain ending
// at it. Full-validation stores additionally carry the full wire.Block;
// header-only stores carry only the header.
type StoredBlock struct {
	Header         wire.Header
	Block          wire.Block // nil in header-only ("SPV") mode
	Height         int64
	CumulativeWork chainutil.Work
}

// Accessor is the storage capability record the chain manager is built
// against (design note §9): a trait object, not an inheritance hierarchy.
// A header-only accessor and a full-validation accessor both satisfy it;
// the difference is only whether StoredBlock.Block is populated and
// whether ConnectTransactions/DisconnectTransactions are ever exercised
// (the chain manager's Mode decides that, not the store).
type Accessor interface {
	// GetChainHead returns the current best tip, or ok=false if the store
	// has no blocks yet.
	GetChainHead() (sb *StoredBlock, ok bool, err error)

	// Get returns the stored block for hash, or ok=false if unknown.
	Get(hash chainhash.Hash) (sb *StoredBlock, ok bool, err error)

	// HeaderByHeight returns the header at height on the chain the store
	// currently considers best, satisfying difficulty.AncestorReader.
	HeaderByHeight(height int64) (hdr wire.Header, ok bool)

	// Put records sb without changing the chain head — addToBlockStore in
	// the teacher's terms. The chain manager uses it for candidates stored
	// without undo data: header-only blocks and side-branch blocks. A
	// full-validation extension of the best chain is stored through
	// PutWithUndo instead.
	Put(sb *StoredBlock) error

	// PutWithUndo records sb along with the undo data needed to revert it
	// later (full-validation mode only; header-only stores never call this).
	PutWithUndo(sb *StoredBlock, undo []byte) error

	// GetUndo returns previously stored undo data for hash.
	GetUndo(hash chainhash.Hash) (undo []byte, ok bool, err error)

	// DeleteUndo drops undo data once it can no longer be needed (the block
	// is now deep enough that it will never be reverted).
	DeleteUndo(hash chainhash.Hash) error

	// DoSetChainHead moves the chain head to sb. BadgerStore writes a
	// crash-recovery checkpoint before the move and clears it after, so an
	// interrupted move leaves a record that PendingReorgCheckpoint reports on
	// restart; nothing replays or rolls the move forward from it. MemStore
	// writes no checkpoint.
	DoSetChainHead(sb *StoredBlock) error

	// NotSettingChainHead is the no-argument abort/rollback hook (spec
	// §6/§7): called whenever a candidate will not become (or remain) the
	// chain head, whether because it lost the cumulative-work comparison or
	// because verification failed partway through connecting it. It rolls
	// back any transaction-level state opened against the UTXO set, and is
	// mandatory even when no such state was ever opened.
	NotSettingChainHead() error

	// ConnectTransactions applies blk's transactions to the UTXO set at the
	// given height: the block's first transaction is treated as its
	// coinbase equivalent (no inputs to spend); every other transaction's
	// inputs must be unspent outputs already in the set, and its lock time
	// must have been reached (spec §4.3's finality gate). Returns the undo
	// data needed to reverse the block later. Full-validation mode only.
	ConnectTransactions(blk wire.Block, height int64) (undo []byte, err error)

	// DisconnectTransactions reverts sb's effect on the UTXO set, using its
	// previously stored undo data. Returns ErrPruned if that undo data is
	// no longer available. Full-validation mode only.
	DisconnectTransactions(sb *StoredBlock) error

	// Rebuild reconstructs any derived index (e.g. the height index) from
	// the stored blocks alone. A caller invokes this after observing a
	// Pruned condition from the chain manager; it is not part of the core
	// add() path itself.
	Rebuild() error
}
