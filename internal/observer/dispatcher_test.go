package observer

import (
	"sync"
	"testing"

	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

func testHeader(t *testing.T, nonce uint64) *wire.RefHeader {
	t.Helper()
	return &wire.RefHeader{Version: 1, Timestamp: 1000, Nonce: nonce}
}

func testTx(t *testing.T, payload string) *wire.RefTransaction {
	t.Helper()
	return &wire.RefTransaction{Payload: []byte(payload)}
}

// TestDispatchBlock_RelativityOffset checks that each listener gets its own
// relativityOffset sequence starting at 0 and incrementing once per
// delivered transaction, skipping transactions IsRelevant rejects.
func TestDispatchBlock_RelativityOffset(t *testing.T) {
	d := NewDispatcher(0)

	var mu sync.Mutex
	var offsets []int
	l := NewListener(0, false)
	l.IsRelevant = func(tx wire.Transaction) bool {
		ref := tx.(*wire.RefTransaction)
		return string(ref.Payload) != "skip"
	}
	l.ReceiveFromBlock = func(tx wire.Transaction, header wire.Header, blockType BlockType, relativityOffset int) {
		mu.Lock()
		defer mu.Unlock()
		offsets = append(offsets, relativityOffset)
	}
	d.Add(l)

	txs := []wire.Transaction{testTx(t, "a"), testTx(t, "skip"), testTx(t, "b"), testTx(t, "c")}
	d.DispatchBlock(testHeader(t, 1), txs, BlockTypeBestChain)

	want := []int{0, 1, 2}
	if len(offsets) != len(want) {
		t.Fatalf("expected %d deliveries, got %d (%v)", len(want), len(offsets), offsets)
	}
	for i, o := range offsets {
		if o != want[i] {
			t.Fatalf("offset %d: expected %d got %d", i, want[i], o)
		}
	}
}

// TestDispatchBlock_NewBestBlockOnlyOnBestChain checks NewBestBlock fires
// only for BlockTypeBestChain deliveries, never for side-chain ones.
func TestDispatchBlock_NewBestBlockOnlyOnBestChain(t *testing.T) {
	d := NewDispatcher(0)

	var calls int
	l := NewListener(0, false)
	l.NewBestBlock = func(header wire.Header) { calls++ }
	d.Add(l)

	d.DispatchBlock(testHeader(t, 1), nil, BlockTypeSideChain)
	if calls != 0 {
		t.Fatalf("expected NewBestBlock not called for side chain, got %d calls", calls)
	}

	d.DispatchBlock(testHeader(t, 2), nil, BlockTypeBestChain)
	if calls != 1 {
		t.Fatalf("expected NewBestBlock called once for best chain, got %d calls", calls)
	}
}

// TestDispatchFiltered_RelativityOffset mirrors the full-block case for
// matched transaction hashes delivered via TransactionIsInBlock.
func TestDispatchFiltered_RelativityOffset(t *testing.T) {
	d := NewDispatcher(0)

	var offsets []int
	l := NewListener(0, false)
	l.TransactionIsInBlock = func(txHash chainhash.Hash, header wire.Header, blockType BlockType, relativityOffset int) {
		offsets = append(offsets, relativityOffset)
	}
	d.Add(l)

	hashes := []chainhash.Hash{{1}, {2}, {3}}
	d.DispatchFiltered(testHeader(t, 1), hashes, BlockTypeBestChain)

	for i, o := range offsets {
		if o != i {
			t.Fatalf("offset %d: expected %d got %d", i, i, o)
		}
	}
}

// TestDispatcher_PriorityOrdering checks listeners run in registration
// Priority order.
func TestDispatcher_PriorityOrdering(t *testing.T) {
	d := NewDispatcher(0)

	var order []int
	mk := func(priority int) Listener {
		l := NewListener(priority, false)
		l.NewBestBlock = func(header wire.Header) { order = append(order, priority) }
		return l
	}
	d.Add(mk(5))
	d.Add(mk(1))
	d.Add(mk(3))

	d.DispatchBlock(testHeader(t, 1), nil, BlockTypeBestChain)

	want := []int{1, 3, 5}
	for i, p := range want {
		if order[i] != p {
			t.Fatalf("expected priority order %v, got %v", want, order)
		}
	}
}

// TestDispatcher_Remove checks a removed listener receives no further calls.
func TestDispatcher_Remove(t *testing.T) {
	d := NewDispatcher(0)

	var calls int
	l := NewListener(0, false)
	l.NewBestBlock = func(header wire.Header) { calls++ }
	id := d.Add(l)

	d.DispatchBlock(testHeader(t, 1), nil, BlockTypeBestChain)
	d.Remove(id)
	d.DispatchBlock(testHeader(t, 2), nil, BlockTypeBestChain)

	if calls != 1 {
		t.Fatalf("expected exactly 1 call before removal, got %d", calls)
	}
}

// TestDispatcher_AsyncWait checks Wait blocks until an async listener's
// callback has actually returned.
func TestDispatcher_AsyncWait(t *testing.T) {
	d := NewDispatcher(0)

	var mu sync.Mutex
	done := false
	l := NewListener(0, true)
	l.NewBestBlock = func(header wire.Header) {
		mu.Lock()
		done = true
		mu.Unlock()
	}
	d.Add(l)

	d.DispatchBlock(testHeader(t, 1), nil, BlockTypeBestChain)
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if !done {
		t.Fatalf("expected async listener to have run by the time Wait returned")
	}
}

// TestDispatcher_PanicRecovered checks a panicking listener does not prevent
// later listeners in the same dispatch from running.
func TestDispatcher_PanicRecovered(t *testing.T) {
	d := NewDispatcher(0)

	panicker := NewListener(0, false)
	panicker.NewBestBlock = func(header wire.Header) { panic("boom") }
	d.Add(panicker)

	var called bool
	survivor := NewListener(1, false)
	survivor.NewBestBlock = func(header wire.Header) { called = true }
	d.Add(survivor)

	d.DispatchBlock(testHeader(t, 1), nil, BlockTypeBestChain)

	if !called {
		t.Fatalf("expected listener after a panicking one to still run")
	}
}

func TestBlockType_String(t *testing.T) {
	if BlockTypeBestChain.String() != "best-chain" {
		t.Fatalf("unexpected BlockTypeBestChain.String(): %s", BlockTypeBestChain.String())
	}
	if BlockTypeSideChain.String() != "side-chain" {
		t.Fatalf("unexpected BlockTypeSideChain.String(): %s", BlockTypeSideChain.String())
	}
}
