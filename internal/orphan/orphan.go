// Package orphan buffers blocks whose parent has not yet been seen, pending
// either the parent's later arrival or eviction once the buffer's bound is
// reached (spec §3/§4.4.3). The teacher has no direct analogue — it never
// buffers out-of-order blocks, relying on StoreBlock accepting any block and
// a later Reorg walking the branch — so the eviction policy here is
// adopted from the pack's own dependency surface (golang-lru) rather than
// hand-rolled.
package orphan

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// DefaultMaxOrphans bounds the buffer when the caller does not specify one.
const DefaultMaxOrphans = 1000

// entry pairs an orphan block with the time it was first seen, so a caller
// draining orphans after a parent arrives can process them in arrival order.
type entry struct {
	block wire.Block
	seq   uint64
}

// Buffer is a bounded, insertion-ordered store of parentless blocks, keyed
// by their own hash and indexed by the parent hash they are waiting on.
type Buffer struct {
	mu       sync.Mutex
	byHash   *lru.Cache[chainhash.Hash, *entry]
	byParent map[chainhash.Hash]map[chainhash.Hash]struct{}
	seq      uint64
}

// New creates an orphan buffer holding at most maxOrphans blocks. Once full,
// inserting a new orphan evicts the oldest one.
func New(maxOrphans int) *Buffer {
	if maxOrphans <= 0 {
		maxOrphans = DefaultMaxOrphans
	}
	b := &Buffer{
		byParent: make(map[chainhash.Hash]map[chainhash.Hash]struct{}),
	}
	cache, err := lru.NewWithEvict[chainhash.Hash, *entry](maxOrphans, b.onEvict)
	if err != nil {
		// Only possible if maxOrphans <= 0, already guarded above.
		panic(err)
	}
	b.byHash = cache
	return b
}

// onEvict is the LRU's eviction callback; it keeps the parent index
// consistent when the cache drops an entry on its own.
func (b *Buffer) onEvict(hash chainhash.Hash, e *entry) {
	parent := e.block.PrevBlockHash()
	if siblings, ok := b.byParent[parent]; ok {
		delete(siblings, hash)
		if len(siblings) == 0 {
			delete(b.byParent, parent)
		}
	}
}

// Add inserts blk into the buffer, keyed by its hash and indexed under its
// parent's hash. Adding a block already present is a no-op.
func (b *Buffer) Add(blk wire.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hash := blk.Hash()
	if _, ok := b.byHash.Peek(hash); ok {
		return
	}
	b.seq++
	b.byHash.Add(hash, &entry{block: blk, seq: b.seq})

	parent := blk.PrevBlockHash()
	siblings, ok := b.byParent[parent]
	if !ok {
		siblings = make(map[chainhash.Hash]struct{})
		b.byParent[parent] = siblings
	}
	siblings[hash] = struct{}{}
}

// IsOrphan reports whether hash is currently buffered.
func (b *Buffer) IsOrphan(hash chainhash.Hash) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.byHash.Peek(hash)
	return ok
}

// Children returns the buffered blocks waiting on parentHash, oldest first,
// without removing them.
func (b *Buffer) Children(parentHash chainhash.Hash) []wire.Block {
	b.mu.Lock()
	defer b.mu.Unlock()

	siblings := b.byParent[parentHash]
	if len(siblings) == 0 {
		return nil
	}
	entries := make([]*entry, 0, len(siblings))
	for hash := range siblings {
		if e, ok := b.byHash.Peek(hash); ok {
			entries = append(entries, e)
		}
	}
	sortBySeq(entries)
	out := make([]wire.Block, len(entries))
	for i, e := range entries {
		out[i] = e.block
	}
	return out
}

// Remove drops hash from the buffer, e.g. once it has been connected.
func (b *Buffer) Remove(hash chainhash.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.byHash.Peek(hash); ok {
		b.byHash.Remove(hash)
		b.onEvict(hash, e)
	}
}

// Len reports the number of currently buffered orphans.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byHash.Len()
}

// GetOrphanRoot walks upward from hash through buffered orphans to find the
// deepest ancestor that is itself an orphan (i.e. the root of this orphan
// chain), stopping as soon as an ancestor is not buffered.
func (b *Buffer) GetOrphanRoot(hash chainhash.Hash) chainhash.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()

	root := hash
	for {
		e, ok := b.byHash.Peek(root)
		if !ok {
			return root
		}
		parent := e.block.PrevBlockHash()
		if _, ok := b.byHash.Peek(parent); !ok {
			return root
		}
		root = parent
	}
}

func sortBySeq(entries []*entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].seq > entries[j].seq; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}
