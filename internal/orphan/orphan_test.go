package orphan

import (
	"testing"

	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

func block(prevHash [32]byte, payload string) *wire.RefBlock {
	tx := &wire.RefTransaction{Payload: []byte(payload)}
	header := &wire.RefHeader{Version: 1, PrevHash: prevHash, Timestamp: 1, Nonce: uint64(len(payload))}
	return wire.NewRefBlock(header, []*wire.RefTransaction{tx})
}

func TestBuffer_AddAndChildren(t *testing.T) {
	buf := New(10)
	var zero [32]byte
	child1 := block(zero, "a")
	child2 := block(zero, "b")

	buf.Add(child1)
	buf.Add(child2)

	if !buf.IsOrphan(child1.Hash()) || !buf.IsOrphan(child2.Hash()) {
		t.Fatalf("expected both children buffered")
	}

	children := buf.Children(zero)
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	if children[0].Hash() != child1.Hash() {
		t.Fatalf("expected arrival order preserved, child1 first")
	}
}

func TestBuffer_GetOrphanRoot(t *testing.T) {
	buf := New(10)
	var zero [32]byte
	grandparent := block(zero, "root")
	parent := block(grandparent.Hash(), "mid")
	child := block(parent.Hash(), "leaf")

	buf.Add(grandparent)
	buf.Add(parent)
	buf.Add(child)

	root := buf.GetOrphanRoot(child.Hash())
	if root != grandparent.Hash() {
		t.Fatalf("expected orphan root to be the deepest buffered ancestor")
	}
}

func TestBuffer_EvictsOldestWhenFull(t *testing.T) {
	buf := New(2)
	var zero [32]byte
	a := block(zero, "a")
	b := block(zero, "b")
	c := block(zero, "c")

	buf.Add(a)
	buf.Add(b)
	buf.Add(c)

	if buf.Len() != 2 {
		t.Fatalf("expected buffer bounded at 2, got %d", buf.Len())
	}
	if buf.IsOrphan(a.Hash()) {
		t.Fatalf("expected oldest entry evicted")
	}
}
