package blockstore

import (
	"math/big"
	"testing"

	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

func testBlock(t *testing.T, prevHash [32]byte, height int64) *StoredBlock {
	t.Helper()
	tx := &wire.RefTransaction{Payload: []byte("x")}
	header := &wire.RefHeader{Version: 1, PrevHash: prevHash, Timestamp: 1000 + height, Nonce: uint64(height)}
	blk := wire.NewRefBlock(header, []*wire.RefTransaction{tx})
	return &StoredBlock{
		Header:         blk,
		Block:          blk,
		Height:         height,
		CumulativeWork: chainutil.NewWork(big.NewInt(height + 1)),
	}
}

func TestMemStore_SetAndGetChainHead(t *testing.T) {
	s := NewMemStore()
	var zero [32]byte
	genesis := testBlock(t, zero, 0)

	if err := s.DoSetChainHead(genesis); err != nil {
		t.Fatalf("DoSetChainHead: %v", err)
	}

	head, ok, err := s.GetChainHead()
	if err != nil || !ok {
		t.Fatalf("expected chain head set, ok=%v err=%v", ok, err)
	}
	if head.Header.Hash() != genesis.Header.Hash() {
		t.Fatalf("chain head mismatch")
	}

	hdr, ok := s.HeaderByHeight(0)
	if !ok || hdr.Hash() != genesis.Header.Hash() {
		t.Fatalf("expected height index to resolve genesis")
	}
}

func TestMemStore_PutWithUndoAndDelete(t *testing.T) {
	s := NewMemStore()
	var zero [32]byte
	blk := testBlock(t, zero, 1)
	undo := []byte("undo-data")

	if err := s.PutWithUndo(blk, undo); err != nil {
		t.Fatalf("PutWithUndo: %v", err)
	}

	got, ok, err := s.GetUndo(blk.Header.Hash())
	if err != nil || !ok || string(got) != "undo-data" {
		t.Fatalf("expected undo data round trip, ok=%v err=%v got=%s", ok, err, got)
	}

	if err := s.DeleteUndo(blk.Header.Hash()); err != nil {
		t.Fatalf("DeleteUndo: %v", err)
	}
	if _, ok, _ := s.GetUndo(blk.Header.Hash()); ok {
		t.Fatalf("expected undo data deleted")
	}
}

func TestMemStore_Rebuild(t *testing.T) {
	s := NewMemStore()
	var zero [32]byte
	genesis := testBlock(t, zero, 0)
	child := testBlock(t, genesis.Header.Hash(), 1)

	if err := s.DoSetChainHead(genesis); err != nil {
		t.Fatalf("DoSetChainHead genesis: %v", err)
	}
	if err := s.Put(child); err != nil {
		t.Fatalf("Put child: %v", err)
	}
	if err := s.DoSetChainHead(child); err != nil {
		t.Fatalf("DoSetChainHead child: %v", err)
	}

	// Simulate a corrupted height index and rebuild it from scratch.
	s.byHeight = map[int64]chainhash.Hash{}
	if err := s.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if hdr, ok := s.HeaderByHeight(1); !ok || hdr.Hash() != child.Header.Hash() {
		t.Fatalf("expected height index rebuilt")
	}
}
