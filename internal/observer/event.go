// Package observer dispatches chain-manager notifications to registered
// listeners — per-transaction delivery as blocks connect or get matched by
// a filter, plus a block-level reorg summary — and tracks the
// false-positive rate of filtered-block delivery for header-only callers
// (spec §4.5/§4.6). Grounded on the teacher's handler-callback pattern in
// internal/chain/chain.go/processor.go/reorg.go (RegistrationHandler,
// StakeHandler, RevertedTxHandler — optional callbacks fired at specific
// points during block processing), generalized into a registered listener
// list with per-listener execution mode, registration ordering, and a
// per-block relativityOffset sequence.
package observer

import (
	"github.com/google/uuid"
	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// BlockType describes which chain a notified block belongs to at the
// moment of delivery.
type BlockType int

const (
	// BlockTypeBestChain means the block is (becoming) part of the chain
	// the manager currently considers best.
	BlockTypeBestChain BlockType = iota
	// BlockTypeSideChain means the block is not on the best chain.
	BlockTypeSideChain
)

func (bt BlockType) String() string {
	if bt == BlockTypeSideChain {
		return "side-chain"
	}
	return "best-chain"
}

// Listener implements the spec §6 transaction-notification contract.
//
//   - IsRelevant filters which transactions this listener is shown during a
//     full-block delivery; nil means every transaction is relevant.
//   - ReceiveFromBlock delivers one call per relevant transaction in a full
//     block, in the block's transaction order, each carrying a
//     relativityOffset that starts at 0 for this listener and this block and
//     increases by one per delivered transaction (spec §5/§8).
//   - TransactionIsInBlock is ReceiveFromBlock's header-only counterpart:
//     delivered once per matched transaction hash in a filtered block, with
//     the same per-listener-per-block relativityOffset sequence.
//   - NewBestBlock fires once per block that becomes (or extends) the best
//     chain, after that block's transaction deliveries.
//   - Reorganized fires once per completed reorg, after every disconnected
//     and newly connected block in it has already been delivered/notified.
//   - BlockDisconnected fires once per block reverted during a reorg.
//
// Any field left nil is simply not called.
type Listener struct {
	ID       uuid.UUID
	Priority int // registration ordering among listeners; lower runs first
	Async    bool

	IsRelevant           func(tx wire.Transaction) bool
	ReceiveFromBlock     func(tx wire.Transaction, header wire.Header, blockType BlockType, relativityOffset int)
	TransactionIsInBlock func(txHash chainhash.Hash, header wire.Header, blockType BlockType, relativityOffset int)
	NewBestBlock         func(header wire.Header)
	BlockDisconnected    func(header wire.Header)
	Reorganized          func(splitHeight, newTipHeight int64)
}

// NewListener builds a Listener with a fresh identity.
func NewListener(priority int, async bool) Listener {
	return Listener{ID: uuid.New(), Priority: priority, Async: async}
}
