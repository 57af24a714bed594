// Package reorg walks the block store to find where two chain tips diverge
// and builds the disconnect/reconnect lists needed to move the chain head
// from one to the other (spec §4.4.1/§4.4.2). Grounded on the teacher's
// internal/chain/reorg.go collectBranch, generalized from a single-sided
// walk that assumes one tip is already on the main chain (valid only
// because the teacher's store keeps a linear height index for its current
// best chain) to a true two-sided walk over two arbitrary tips.
package reorg

import (
	"fmt"

	"github.com/klingnet-chain/ledgercore/internal/blockstore"
	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
)

// ErrNoCommonAncestor means the two tips share no ancestor in the store,
// which should never happen for two blocks in the same chain (two tips
// descending from the same genesis block meet there at the latest).
var ErrNoCommonAncestor = fmt.Errorf("reorg: no common ancestor found")

// Plan is the result of walking from the old and new tips back to their
// split point: the blocks to disconnect (old tip back to, but excluding,
// the split point, ordered newest-first) and the blocks to connect (split
// point to new tip, ordered oldest-first, i.e. application order).
type Plan struct {
	SplitPoint *blockstore.StoredBlock
	Disconnect []*blockstore.StoredBlock // newest to oldest
	Connect    []*blockstore.StoredBlock // oldest to newest
	Depth      int                       // len(Disconnect), the reorg's depth
}

// Build walks back from oldTip and newTip independently until their
// ancestries meet, using each block's Height to always step back from
// whichever cursor is currently deeper. This makes no assumption about
// which tip, if either, is on the store's current best chain.
func Build(store blockstore.Accessor, oldTip, newTip *blockstore.StoredBlock) (*Plan, error) {
	var disconnect []*blockstore.StoredBlock
	var connectRev []*blockstore.StoredBlock // newest to oldest, reversed before returning

	oldCursor, newCursor := oldTip, newTip

	for oldCursor.Header.Hash() != newCursor.Header.Hash() {
		switch {
		case oldCursor.Height > newCursor.Height:
			disconnect = append(disconnect, oldCursor)
			parent, err := ancestor(store, oldCursor)
			if err != nil {
				return nil, err
			}
			oldCursor = parent
		case newCursor.Height > oldCursor.Height:
			connectRev = append(connectRev, newCursor)
			parent, err := ancestor(store, newCursor)
			if err != nil {
				return nil, err
			}
			newCursor = parent
		default:
			disconnect = append(disconnect, oldCursor)
			connectRev = append(connectRev, newCursor)
			oldParent, err := ancestor(store, oldCursor)
			if err != nil {
				return nil, err
			}
			newParent, err := ancestor(store, newCursor)
			if err != nil {
				return nil, err
			}
			oldCursor, newCursor = oldParent, newParent
		}
	}

	connect := make([]*blockstore.StoredBlock, len(connectRev))
	for i, sb := range connectRev {
		connect[len(connectRev)-1-i] = sb
	}

	return &Plan{
		SplitPoint: oldCursor,
		Disconnect: disconnect,
		Connect:    connect,
		Depth:      len(disconnect),
	}, nil
}

func ancestor(store blockstore.Accessor, sb *blockstore.StoredBlock) (*blockstore.StoredBlock, error) {
	parentHash := sb.Header.PrevBlockHash()
	if parentHash.IsZero() && sb.Height == 0 {
		return nil, fmt.Errorf("%w: reached genesis without convergence", ErrNoCommonAncestor)
	}
	parent, ok, err := store.Get(parentHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: missing ancestor %s", ErrNoCommonAncestor, parentHash)
	}
	return parent, nil
}

// Hashes extracts the block hashes from a slice of stored blocks, in order.
func Hashes(blocks []*blockstore.StoredBlock) []chainhash.Hash {
	out := make([]chainhash.Hash, len(blocks))
	for i, sb := range blocks {
		out[i] = sb.Header.Hash()
	}
	return out
}
