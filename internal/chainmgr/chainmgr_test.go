package chainmgr

import (
	"math/big"
	"testing"

	"github.com/klingnet-chain/ledgercore/internal/blockstore"
	"github.com/klingnet-chain/ledgercore/internal/observer"
	"github.com/klingnet-chain/ledgercore/pkg/chaincfg"
	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// newCapturingListener builds a Listener that records every matched
// transaction hash and relativityOffset delivered to it, for tests
// exercising the header-only dispatch path.
func newCapturingListener(hashes *[]chainhash.Hash, offsets *[]int) observer.Listener {
	l := observer.NewListener(0, false)
	l.TransactionIsInBlock = func(txHash chainhash.Hash, header wire.Header, blockType observer.BlockType, relativityOffset int) {
		*hashes = append(*hashes, txHash)
		*offsets = append(*offsets, relativityOffset)
	}
	return l
}

func testParams(t *testing.T) *chaincfg.Params {
	t.Helper()
	limit := new(big.Int).Lsh(big.NewInt(1), 250)
	limit.Sub(limit, big.NewInt(1))
	bits := chainutil.BigToCompact(limit)
	return &chaincfg.Params{
		Name:            "unit",
		TestNet:         true,
		IntervalBlocks:  2016,
		TimespanSeconds: 2016 * 150,
		SpacingSeconds:  150,
		PowLimit:        limit,
		Gates:           chaincfg.ModeGates{}, // pure V1, no retarget in these short tests
		Checkpoints:     map[int64]chainhash.Hash{},
		GenesisFn: func() wire.Block {
			tx := &wire.RefTransaction{Version: 1, Payload: []byte("genesis")}
			header := &wire.RefHeader{Version: 1, Timestamp: 1000, Bits: bits}
			return wire.NewRefBlock(header, []*wire.RefTransaction{tx})
		},
	}
}

func testManager(t *testing.T) (*Manager, *chaincfg.Params) {
	t.Helper()
	params := testParams(t)
	store := blockstore.NewMemStore()
	mgr := New(params, store, ModeFullValidation)
	if err := mgr.InitGenesis(); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}
	return mgr, params
}

// mineChild builds a valid child of parent at the network's easy test
// difficulty, brute-forcing a nonce that satisfies VerifyHeader.
func mineChild(t *testing.T, parent wire.Block, timestamp int64, payload string) *wire.RefBlock {
	t.Helper()
	tx := &wire.RefTransaction{Version: 1, Payload: []byte(payload)}
	header := &wire.RefHeader{
		Version:   1,
		PrevHash:  parent.Hash(),
		Timestamp: timestamp,
		Bits:      parent.DifficultyTargetCompact(),
	}
	blk := wire.NewRefBlock(header, []*wire.RefTransaction{tx})
	for nonce := uint64(0); nonce < 1_000_000; nonce++ {
		header.Nonce = nonce
		if header.VerifyHeader() == nil {
			return blk
		}
	}
	t.Fatalf("failed to mine a valid header for payload %q", payload)
	return nil
}

func TestScenario_LinearExtension(t *testing.T) {
	mgr, params := testManager(t)
	genesis := params.GenesisBlock()

	blk1 := mineChild(t, genesis, 1150, "a")
	result, err := mgr.Add(blk1)
	if err != nil {
		t.Fatalf("Add blk1: %v", err)
	}
	if result != ResultExtended {
		t.Fatalf("expected extended, got %v", result)
	}

	head, err := mgr.GetChainHead()
	if err != nil {
		t.Fatalf("GetChainHead: %v", err)
	}
	if head.Height != 1 {
		t.Fatalf("expected height 1, got %d", head.Height)
	}
}

func TestScenario_OutOfOrder(t *testing.T) {
	mgr, params := testManager(t)
	genesis := params.GenesisBlock()

	blk1 := mineChild(t, genesis, 1150, "a")
	blk2 := mineChild(t, blk1, 1300, "b")

	result, err := mgr.Add(blk2)
	if err != nil {
		t.Fatalf("Add blk2 (orphan): %v", err)
	}
	if result != ResultOrphan {
		t.Fatalf("expected orphan, got %v", result)
	}
	if !mgr.IsOrphan(blk2.Hash()) {
		t.Fatalf("expected blk2 buffered as orphan")
	}

	result, err = mgr.Add(blk1)
	if err != nil {
		t.Fatalf("Add blk1: %v", err)
	}
	if result != ResultExtended {
		t.Fatalf("expected blk1 to extend, got %v", result)
	}

	head, err := mgr.GetChainHead()
	if err != nil {
		t.Fatalf("GetChainHead: %v", err)
	}
	if head.Height != 2 {
		t.Fatalf("expected blk2 drained to height 2, got %d", head.Height)
	}
	if mgr.IsOrphan(blk2.Hash()) {
		t.Fatalf("expected blk2 no longer buffered after drain")
	}
}

func TestScenario_DuplicateIsIdempotent(t *testing.T) {
	mgr, params := testManager(t)
	genesis := params.GenesisBlock()

	blk1 := mineChild(t, genesis, 1150, "a")
	result, err := mgr.Add(blk1)
	if err != nil {
		t.Fatalf("Add blk1: %v", err)
	}
	if result != ResultExtended {
		t.Fatalf("expected extended, got %v", result)
	}

	// Re-adding the current chain head is idempotent success: no error, no
	// store mutation, classified as a duplicate rather than rejected.
	result, err = mgr.Add(blk1)
	if err != nil {
		t.Fatalf("expected re-adding blk1 to succeed idempotently, got err: %v", err)
	}
	if result != ResultDuplicate {
		t.Fatalf("expected duplicate, got %v", result)
	}

	head, err := mgr.GetChainHead()
	if err != nil {
		t.Fatalf("GetChainHead: %v", err)
	}
	if head.Header.Hash() != blk1.Hash() || head.Height != 1 {
		t.Fatalf("expected chain head unchanged at blk1 height 1, got hash=%s height=%d", head.Header.Hash(), head.Height)
	}
}

func TestScenario_SideBranchAndReorg(t *testing.T) {
	mgr, params := testManager(t)
	genesis := params.GenesisBlock()

	a1 := mineChild(t, genesis, 1150, "a1")
	if result, err := mgr.Add(a1); err != nil || result != ResultExtended {
		t.Fatalf("Add a1: result=%v err=%v", result, err)
	}

	b1 := mineChild(t, genesis, 1150, "b1")
	result, err := mgr.Add(b1)
	if err != nil {
		t.Fatalf("Add b1: %v", err)
	}
	if result != ResultSideBranch {
		t.Fatalf("expected side branch, got %v", result)
	}

	b2 := mineChild(t, b1, 1300, "b2")
	result, err = mgr.Add(b2)
	if err != nil {
		t.Fatalf("Add b2: %v", err)
	}
	if result != ResultReorganized {
		t.Fatalf("expected reorganized once b-branch overtakes, got %v", result)
	}

	head, err := mgr.GetChainHead()
	if err != nil {
		t.Fatalf("GetChainHead: %v", err)
	}
	if head.Header.Hash() != b2.Hash() {
		t.Fatalf("expected chain head to be b2 after reorg")
	}
	if head.Height != 2 {
		t.Fatalf("expected height 2 after reorg, got %d", head.Height)
	}
}

func TestScenario_BadDifficultyRejected(t *testing.T) {
	mgr, params := testManager(t)
	genesis := params.GenesisBlock()

	tx := &wire.RefTransaction{Version: 1, Payload: []byte("bad")}
	header := &wire.RefHeader{
		Version:   1,
		PrevHash:  genesis.Hash(),
		Timestamp: 1150,
		Bits:      genesis.DifficultyTargetCompact() - 1, // wrong target
	}
	blk := wire.NewRefBlock(header, []*wire.RefTransaction{tx})
	for nonce := uint64(0); nonce < 1_000_000; nonce++ {
		header.Nonce = nonce
		if header.VerifyHeader() == nil {
			break
		}
	}

	if _, err := mgr.Add(blk); err == nil {
		t.Fatalf("expected bad-difficulty block to be rejected")
	}
}

// TestScenario_DuplicateOrphanIsIdempotent checks that re-submitting a block
// already buffered as an orphan is a success, not an error, and does not
// create a second buffered copy.
func TestScenario_DuplicateOrphanIsIdempotent(t *testing.T) {
	mgr, params := testManager(t)
	genesis := params.GenesisBlock()

	blk1 := mineChild(t, genesis, 1150, "a")
	blk2 := mineChild(t, blk1, 1300, "b")

	result, err := mgr.Add(blk2)
	if err != nil || result != ResultOrphan {
		t.Fatalf("Add blk2: result=%v err=%v", result, err)
	}

	result, err = mgr.Add(blk2)
	if err != nil {
		t.Fatalf("expected re-adding buffered orphan to succeed idempotently, got err: %v", err)
	}
	if result != ResultDuplicate {
		t.Fatalf("expected duplicate, got %v", result)
	}
}

// TestScenario_FullValidationConnectsUTXOSet checks that a full-validation
// Manager actually exercises ConnectTransactions/PutWithUndo on the happy
// extension path, rather than just persisting the header.
func TestScenario_FullValidationConnectsUTXOSet(t *testing.T) {
	mgr, params := testManager(t)
	genesis := params.GenesisBlock()

	blk1 := mineChild(t, genesis, 1150, "a")
	if _, err := mgr.Add(blk1); err != nil {
		t.Fatalf("Add blk1: %v", err)
	}

	undo, ok, err := mgr.store.GetUndo(blk1.Hash())
	if err != nil {
		t.Fatalf("GetUndo: %v", err)
	}
	if !ok || len(undo) == 0 {
		t.Fatalf("expected non-empty undo data recorded for blk1, ok=%v", ok)
	}
}

// TestAddFiltered_RejectedInFullValidationMode checks spec's mode split:
// a full-validation Manager refuses AddFiltered outright.
func TestAddFiltered_RejectedInFullValidationMode(t *testing.T) {
	mgr, _ := testManager(t)

	fb := &wire.FilteredBlock{Header: &wire.RefHeader{}}
	_, err := mgr.AddFiltered(fb, 0, 0)
	if err != ErrFilteredNotAccepted {
		t.Fatalf("expected ErrFilteredNotAccepted, got %v", err)
	}
}

// TestAddFiltered_HeaderOnlyModeExtendsChain checks the header-only path
// links headers and delivers matched transaction hashes via DispatchFiltered.
func TestAddFiltered_HeaderOnlyModeExtendsChain(t *testing.T) {
	params := testParams(t)
	store := blockstore.NewMemStore()
	mgr := New(params, store, ModeHeaderOnly)
	if err := mgr.InitGenesis(); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}
	genesis := params.GenesisBlock()

	blk1 := mineChild(t, genesis, 1150, "a")
	txHash := blk1.Txs[0].Hash()

	var delivered []chainhash.Hash
	var offsets []int
	mgr.AddListener(newCapturingListener(&delivered, &offsets))

	fb := &wire.FilteredBlock{
		Header:     blk1.CloneAsHeader(),
		TxHashes:   []chainhash.Hash{txHash},
		MatchedTxs: map[chainhash.Hash]wire.Transaction{txHash: blk1.Txs[0]},
	}

	result, err := mgr.AddFiltered(fb, 1, 0)
	if err != nil {
		t.Fatalf("AddFiltered: %v", err)
	}
	if result != ResultExtended {
		t.Fatalf("expected extended, got %v", result)
	}
	if len(delivered) != 1 || delivered[0] != txHash {
		t.Fatalf("expected matched hash delivered, got %v", delivered)
	}
	if len(offsets) != 1 || offsets[0] != 0 {
		t.Fatalf("expected relativityOffset 0, got %v", offsets)
	}
}
