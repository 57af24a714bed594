// Package chainmgr is the chain tree manager (spec §4.1/§4.3): it accepts
// candidate blocks, verifies them, classifies each as extending the best
// chain, starting or extending a side branch, or triggering a reorg, and
// notifies registered listeners as it goes. It depends only on the wire
// interfaces, chaincfg.NetworkParams, and the blockstore.Accessor
// capability record; the one concrete block type it takes is
// *wire.FilteredBlock, the argument of AddFiltered. Grounded on the
// teacher's internal/chain/chain.go (constructor/recovery shape) and
// internal/chain/processor.go (the ProcessBlock fast-path/fork
// classification algorithm, directly the shape of this package's Add).
package chainmgr

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/klingnet-chain/ledgercore/internal/blockstore"
	"github.com/klingnet-chain/ledgercore/internal/difficulty"
	"github.com/klingnet-chain/ledgercore/internal/log"
	"github.com/klingnet-chain/ledgercore/internal/metrics"
	"github.com/klingnet-chain/ledgercore/internal/observer"
	"github.com/klingnet-chain/ledgercore/internal/orphan"
	"github.com/klingnet-chain/ledgercore/internal/reorg"
	"github.com/klingnet-chain/ledgercore/pkg/chaincfg"
	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// Mode selects which capability split (spec §9) a Manager runs under: a
// full-validation Manager maintains the UTXO set and refuses AddFiltered; a
// header-only Manager never touches the UTXO set and accepts both Add and
// AddFiltered.
type Mode int

const (
	ModeFullValidation Mode = iota
	ModeHeaderOnly
)

func (mode Mode) String() string {
	if mode == ModeHeaderOnly {
		return "header-only"
	}
	return "full-validation"
}

// AddResult classifies how a successfully-accepted block was handled.
type AddResult int

const (
	ResultExtended AddResult = iota
	ResultSideBranch
	ResultReorganized
	ResultOrphan
	// ResultDuplicate means blk (or its header) was already the chain head,
	// already stored, or already buffered as an orphan: an idempotent
	// success with no store mutation and no observer notification (spec
	// §4.1 steps 1/3, §8 scenario 5).
	ResultDuplicate
)

func (r AddResult) String() string {
	switch r {
	case ResultExtended:
		return "extended"
	case ResultSideBranch:
		return "side-branch"
	case ResultReorganized:
		return "reorganized"
	case ResultOrphan:
		return "orphan"
	case ResultDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Manager is the chain tree manager, running in either full-validation or
// header-only mode (see Mode).
type Manager struct {
	mu     sync.RWMutex
	params chaincfg.NetworkParams
	store  blockstore.Accessor
	mode   Mode

	orphans     *orphan.Buffer
	dispatcher  *observer.Dispatcher
	fpEstimator *observer.FPEstimator

	futuresMu sync.Mutex
	futures   map[int64][]chan wire.Header
}

// New builds a Manager over store, which must already contain the
// network's genesis block as its chain head (see InitGenesis).
func New(params chaincfg.NetworkParams, store blockstore.Accessor, mode Mode) *Manager {
	return &Manager{
		params:      params,
		store:       store,
		mode:        mode,
		orphans:     orphan.New(orphan.DefaultMaxOrphans),
		dispatcher:  observer.NewDispatcher(observer.DefaultMaxAsyncDispatch),
		fpEstimator: observer.NewFPEstimator(),
		futures:     make(map[int64][]chan wire.Header),
	}
}

// Mode reports which capability split this Manager runs under.
func (m *Manager) Mode() Mode { return m.mode }

// InitGenesis seeds an empty store with the network's genesis block as the
// chain head. A no-op if the store already has a head.
func (m *Manager) InitGenesis() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok, err := m.store.GetChainHead(); err != nil {
		return err
	} else if ok {
		return nil
	}

	genesis := m.params.GenesisBlock()
	work := chainutil.NewWork(chainutil.TargetToWork(genesis.DifficultyTargetAsInteger()))
	sb := &blockstore.StoredBlock{
		Header:         genesis,
		Height:         0,
		CumulativeWork: work,
	}

	if m.mode == ModeFullValidation {
		sb.Block = genesis
		undo, err := m.store.ConnectTransactions(genesis, 0)
		if err != nil {
			return err
		}
		if err := m.store.PutWithUndo(sb, undo); err != nil {
			return err
		}
	} else if err := m.store.Put(sb); err != nil {
		return err
	}

	return m.store.DoSetChainHead(sb)
}

// AddListener registers l with the dispatcher and returns its ID.
func (m *Manager) AddListener(l observer.Listener) uuid.UUID {
	return m.dispatcher.Add(l)
}

// RemoveListener unregisters a previously-registered listener.
func (m *Manager) RemoveListener(id uuid.UUID) {
	m.dispatcher.Remove(id)
}

// GetChainHead returns the current best chain tip.
func (m *Manager) GetChainHead() (*blockstore.StoredBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sb, ok, err := m.store.GetChainHead()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoGenesis
	}
	return sb, nil
}

// GetBestHeight returns the current best chain height.
func (m *Manager) GetBestHeight() (int64, error) {
	sb, err := m.GetChainHead()
	if err != nil {
		return 0, err
	}
	return sb.Height, nil
}

// IsOrphan reports whether hash is currently buffered awaiting its parent.
func (m *Manager) IsOrphan(hash chainhash.Hash) bool {
	return m.orphans.IsOrphan(hash)
}

// GetOrphanRoot returns the deepest buffered ancestor of hash.
func (m *Manager) GetOrphanRoot(hash chainhash.Hash) chainhash.Hash {
	return m.orphans.GetOrphanRoot(hash)
}

// GetFalsePositiveRate returns the current bloom-filter false-positive rate
// estimate for header-only callers.
func (m *Manager) GetFalsePositiveRate() float64 {
	return m.fpEstimator.Rate()
}

// ResetFalsePositiveEstimate clears the false-positive estimator, e.g. after
// the caller loads a freshly generated filter.
func (m *Manager) ResetFalsePositiveEstimate() {
	m.fpEstimator.Reset()
}

// TrackFilteredTransactions and TrackFalsePositives feed the estimator;
// callers using AddFiltered report relevance outcomes through these.
func (m *Manager) TrackFilteredTransactions(count int) { m.fpEstimator.TrackFilteredTransactions(count) }
func (m *Manager) TrackFalsePositives(count int)       { m.fpEstimator.TrackFalsePositives(count) }

// Add verifies and inserts blk, classifying the result. It is safe to call
// concurrently; all state mutation happens under m.mu. Re-adding a block
// the store already knows about, or one already buffered as an orphan, is
// idempotent success (ResultDuplicate, nil error) — it mutates nothing and
// notifies no listener (spec §4.1 steps 1/3, §8 scenario 5).
func (m *Manager) Add(blk wire.Block) (AddResult, error) {
	result, err := m.addNoDrain(blk)
	if err != nil {
		return result, err
	}
	if result != ResultOrphan && result != ResultDuplicate {
		m.drainOrphans(blk.Hash())
	}
	return result, nil
}

// drainOrphans processes every buffered block waiting on parentHash, in
// arrival order, recursively draining their own children. Only the
// top-level Add and AddFiltered calls reach this — addNoDrain never recurses
// into it.
func (m *Manager) drainOrphans(parentHash chainhash.Hash) {
	children := m.orphans.Children(parentHash)
	for _, child := range children {
		m.orphans.Remove(child.Hash())
		result, err := m.addNoDrain(child)
		if err != nil {
			log.Chain.Warn().Err(err).Str("hash", child.Hash().String()).Msg("buffered orphan failed verification on drain")
			continue
		}
		if result != ResultOrphan && result != ResultDuplicate {
			m.drainOrphans(child.Hash())
		}
	}
	metrics.OrphanCount.Set(float64(m.orphans.Len()))
}

// abort invokes the store's no-argument rollback hook. Spec §7 requires
// this on every verification failure after a candidate's parent has been
// found, and on every path where a candidate does not become the new chain
// head — mandatory even when no UTXO-set transaction was ever opened.
func (m *Manager) abort() {
	if err := m.store.NotSettingChainHead(); err != nil {
		log.Chain.Warn().Err(err).Msg("rollback hook failed")
	}
}

func (m *Manager) addNoDrain(blk wire.Block) (AddResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := blk.Hash()

	if _, ok, err := m.store.Get(hash); err != nil {
		return 0, err
	} else if ok {
		return ResultDuplicate, nil
	}
	if m.orphans.IsOrphan(hash) {
		return ResultDuplicate, nil
	}

	if err := blk.VerifyHeader(); err != nil {
		m.abort()
		return 0, err
	}
	if err := blk.VerifyTransactions(); err != nil {
		m.abort()
		return 0, err
	}

	parent, ok, err := m.store.Get(blk.PrevBlockHash())
	if err != nil {
		return 0, err
	}
	if !ok {
		m.orphans.Add(blk)
		metrics.OrphanCount.Set(float64(m.orphans.Len()))
		return ResultOrphan, nil
	}

	height := parent.Height + 1
	if !m.params.PassesCheckpoint(height, hash) {
		m.abort()
		return 0, fmt.Errorf("%w: height %d hash %s", ErrBadCheckpoint, height, hash)
	}

	if err := difficulty.VerifyDifficulty(m.params, parent.Height, parent.Header, blk, m.store); err != nil {
		m.abort()
		return 0, fmt.Errorf("%w: %v", ErrBadDifficulty, err)
	}

	blockWork := chainutil.NewWork(chainutil.TargetToWork(blk.DifficultyTargetAsInteger()))
	cumWork := parent.CumulativeWork.Add(blockWork)

	sb := &blockstore.StoredBlock{
		Header:         blk,
		Block:          blk,
		Height:         height,
		CumulativeWork: cumWork,
	}

	return m.connectBlock(sb, blk)
}

// connectBlock classifies sb against the current chain head and applies it:
// extending the best chain, starting/extending a side branch, or
// triggering a reorg when sb's branch now carries more work than the
// current head (spec §4.3). blk is sb.Block re-passed explicitly so the
// header-only caller (connectBlockHeaderOnly) can share this logic without
// ever setting StoredBlock.Block.
func (m *Manager) connectBlock(sb *blockstore.StoredBlock, blk wire.Block) (AddResult, error) {
	head, ok, err := m.store.GetChainHead()
	if err != nil {
		return 0, err
	}

	if ok && sb.CumulativeWork.Cmp(head.CumulativeWork) <= 0 {
		if err := m.store.Put(sb); err != nil {
			return 0, err
		}
		m.abort()
		return ResultSideBranch, nil
	}

	if ok && sb.Header.PrevBlockHash() != head.Header.Hash() {
		return m.reorganize(head, sb)
	}

	// Simple extension of the current head (or the very first block stored
	// after genesis, when head is still just genesis itself).
	if m.mode == ModeFullValidation {
		undo, err := m.store.ConnectTransactions(blk, sb.Height)
		if err != nil {
			m.abort()
			return 0, err
		}
		if err := m.store.PutWithUndo(sb, undo); err != nil {
			return 0, err
		}
	} else if err := m.store.Put(sb); err != nil {
		return 0, err
	}

	if err := m.store.DoSetChainHead(sb); err != nil {
		return 0, err
	}
	m.fulfillFutures(sb)
	m.dispatchConnected(sb, observer.BlockTypeBestChain)
	metrics.ChainHeight.Set(float64(sb.Height))
	return ResultExtended, nil
}

// dispatchConnected notifies listeners that sb has connected: per-transaction
// delivery when sb carries a full block (full-validation mode), or a
// header-only filtered delivery with no matched transactions otherwise
// (true matched-transaction delivery for the just-added block happens in
// filtered.go, which calls the dispatcher directly with its own matched set).
func (m *Manager) dispatchConnected(sb *blockstore.StoredBlock, blockType observer.BlockType) {
	if sb.Block != nil {
		m.dispatcher.DispatchBlock(sb.Header, sb.Block.Transactions(), blockType)
		return
	}
	m.dispatcher.DispatchFiltered(sb.Header, nil, blockType)
}

// reorganize moves the chain head from head to sb, which carries more
// cumulative work but does not directly extend head.
func (m *Manager) reorganize(head, sb *blockstore.StoredBlock) (AddResult, error) {
	if err := m.store.Put(sb); err != nil {
		return 0, err
	}

	plan, err := reorg.Build(m.store, head, sb)
	if err != nil {
		m.abort()
		return 0, err
	}
	if plan.Depth > MaxReorgDepth {
		m.abort()
		return 0, fmt.Errorf("%w: depth %d", ErrReorgTooDeep, plan.Depth)
	}

	for _, old := range plan.Disconnect {
		if m.mode == ModeFullValidation {
			if err := m.store.DisconnectTransactions(old); err != nil {
				m.abort()
				return 0, err
			}
			if err := m.store.DeleteUndo(old.Header.Hash()); err != nil {
				return 0, err
			}
		}
		m.dispatcher.DispatchDisconnected(old.Header)
	}
	for _, next := range plan.Connect {
		if m.mode == ModeFullValidation {
			undo, err := m.store.ConnectTransactions(next.Block, next.Height)
			if err != nil {
				m.abort()
				return 0, err
			}
			if err := m.store.PutWithUndo(next, undo); err != nil {
				return 0, err
			}
		}
		m.fulfillFutures(next)
		m.dispatchConnected(next, observer.BlockTypeBestChain)
	}

	if err := m.store.DoSetChainHead(sb); err != nil {
		return 0, err
	}

	log.Reorg.Info().
		Int64("split_height", plan.SplitPoint.Height).
		Int64("old_height", head.Height).
		Int64("new_height", sb.Height).
		Int("depth", plan.Depth).
		Msg("chain reorganized")

	m.dispatcher.DispatchReorganized(plan.SplitPoint.Height, sb.Height)
	metrics.ChainHeight.Set(float64(sb.Height))
	metrics.ReorgsTotal.Inc()
	metrics.ReorgDepth.Observe(float64(plan.Depth))

	return ResultReorganized, nil
}

// fulfillFutures resolves any GetHeightFuture waiters for sb.Height.
func (m *Manager) fulfillFutures(sb *blockstore.StoredBlock) {
	m.futuresMu.Lock()
	waiters := m.futures[sb.Height]
	delete(m.futures, sb.Height)
	m.futuresMu.Unlock()

	for _, ch := range waiters {
		ch <- sb.Header
		close(ch)
	}
}

// GetHeightFuture returns a channel that receives the header of the block
// first reached at height, fulfilled exactly once. If height has already
// been reached, the channel is fulfilled immediately.
func (m *Manager) GetHeightFuture(height int64) <-chan wire.Header {
	ch := make(chan wire.Header, 1)

	if head, err := m.GetChainHead(); err == nil && head.Height >= height {
		if hdr, ok := m.store.HeaderByHeight(height); ok {
			ch <- hdr
			close(ch)
			return ch
		}
	}

	m.futuresMu.Lock()
	m.futures[height] = append(m.futures[height], ch)
	m.futuresMu.Unlock()
	return ch
}

// EstimateBlockTime estimates the unix time at which targetHeight will be
// reached, linearly extrapolating from the current tip's timestamp using
// the network's target block spacing.
func (m *Manager) EstimateBlockTime(targetHeight int64) (int64, error) {
	head, err := m.GetChainHead()
	if err != nil {
		return 0, err
	}
	if targetHeight <= head.Height {
		return head.Header.TimeSeconds(), nil
	}
	delta := targetHeight - head.Height
	return head.Header.TimeSeconds() + delta*m.params.TargetSpacing(), nil
}
