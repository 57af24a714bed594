package chainmgr

import (
	"fmt"

	"github.com/klingnet-chain/ledgercore/internal/blockstore"
	"github.com/klingnet-chain/ledgercore/internal/difficulty"
	"github.com/klingnet-chain/ledgercore/internal/metrics"
	"github.com/klingnet-chain/ledgercore/internal/observer"
	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// AddFiltered is the header-only ("SPV") counterpart to Add: it verifies
// and links a header accompanied by a merkle-proved subset of its
// transactions, without requiring or storing the full block. Relevance
// counts reported by the caller (how many matched transactions turned out
// to be false positives versus genuinely relevant) feed the false-positive
// estimator. Rejected outright on a Manager running in full-validation
// mode (spec §4.1: "In full-validation mode, filtered blocks are not
// accepted").
func (m *Manager) AddFiltered(fb *wire.FilteredBlock, genuineCount, falsePositiveCount int) (AddResult, error) {
	if m.mode == ModeFullValidation {
		return 0, ErrFilteredNotAccepted
	}

	if err := fb.VerifyMerkleRoot(); err != nil {
		return 0, err
	}

	matched := matchedHashesInOrder(fb)
	result, err := m.addHeaderNoDrain(fb.Header, matched)
	if err != nil {
		return result, err
	}

	if genuineCount > 0 {
		m.fpEstimator.TrackFilteredTransactions(genuineCount)
	}
	if falsePositiveCount > 0 {
		m.fpEstimator.TrackFalsePositives(falsePositiveCount)
	}
	metrics.FalsePositiveRate.Set(m.fpEstimator.Rate())

	if result != ResultOrphan && result != ResultDuplicate {
		// Header-only mode shares the full-validation orphan buffer: a
		// header that connects can unblock full blocks that arrived
		// earlier and were buffered waiting on it.
		m.drainOrphans(fb.Header.Hash())
	}
	return result, nil
}

// matchedHashesInOrder returns fb's matched transaction hashes in the
// block's own transaction order, the sequence DispatchFiltered assigns
// relativityOffset against.
func matchedHashesInOrder(fb *wire.FilteredBlock) []chainhash.Hash {
	if len(fb.MatchedTxs) == 0 {
		return nil
	}
	out := make([]chainhash.Hash, 0, len(fb.MatchedTxs))
	for _, h := range fb.TxHashes {
		if _, ok := fb.MatchedTxs[h]; ok {
			out = append(out, h)
		}
	}
	return out
}

func (m *Manager) addHeaderNoDrain(hdr wire.Header, matched []chainhash.Hash) (AddResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := hdr.Hash()
	if _, ok, err := m.store.Get(hash); err != nil {
		return 0, err
	} else if ok {
		return ResultDuplicate, nil
	}

	if err := hdr.VerifyHeader(); err != nil {
		m.abort()
		return 0, err
	}

	parent, ok, err := m.store.Get(hdr.PrevBlockHash())
	if err != nil {
		return 0, err
	}
	if !ok {
		return ResultOrphan, nil
	}

	height := parent.Height + 1
	if !m.params.PassesCheckpoint(height, hash) {
		m.abort()
		return 0, fmt.Errorf("%w: height %d hash %s", ErrBadCheckpoint, height, hash)
	}
	if err := difficulty.VerifyDifficulty(m.params, parent.Height, parent.Header, hdr, m.store); err != nil {
		m.abort()
		return 0, fmt.Errorf("%w: %v", ErrBadDifficulty, err)
	}

	blockWork := chainutil.NewWork(chainutil.TargetToWork(hdr.DifficultyTargetAsInteger()))
	cumWork := parent.CumulativeWork.Add(blockWork)
	sb := &blockstore.StoredBlock{Header: hdr, Height: height, CumulativeWork: cumWork}

	return m.connectBlockHeaderOnly(sb, matched)
}

// connectBlockHeaderOnly mirrors connectBlock but never touches sb.Block,
// since header-only mode never stores one, and never exercises the UTXO
// set (ConnectTransactions/DisconnectTransactions are full-validation-only).
func (m *Manager) connectBlockHeaderOnly(sb *blockstore.StoredBlock, matched []chainhash.Hash) (AddResult, error) {
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

	if err := m.store.Put(sb); err != nil {
		return 0, err
	}
	if err := m.store.DoSetChainHead(sb); err != nil {
		return 0, err
	}
	m.fulfillFutures(sb)
	m.dispatcher.DispatchFiltered(sb.Header, matched, observer.BlockTypeBestChain)
	metrics.ChainHeight.Set(float64(sb.Height))
	return ResultExtended, nil
}
