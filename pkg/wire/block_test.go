package wire

import "testing"

func TestComputeMerkleRoot_SingleAndPairs(t *testing.T) {
	tx1 := &RefTransaction{Payload: []byte("a")}
	tx2 := &RefTransaction{Payload: []byte("b")}
	tx3 := &RefTransaction{Payload: []byte("c")}

	blk := NewRefBlock(&RefHeader{Version: 1}, []*RefTransaction{tx1})
	if blk.MerkleRootHash != tx1.Hash() {
		t.Fatalf("single-tx merkle root should equal the transaction hash")
	}

	pair := NewRefBlock(&RefHeader{Version: 1}, []*RefTransaction{tx1, tx2})
	if err := pair.VerifyTransactions(); err != nil {
		t.Fatalf("expected pair block to verify: %v", err)
	}

	odd := NewRefBlock(&RefHeader{Version: 1}, []*RefTransaction{tx1, tx2, tx3})
	if err := odd.VerifyTransactions(); err != nil {
		t.Fatalf("expected odd-count block to verify via last-hash duplication: %v", err)
	}
}

func TestVerifyTransactions_RejectsDuplicateAndEmpty(t *testing.T) {
	tx1 := &RefTransaction{Payload: []byte("a")}

	empty := &RefBlock{RefHeader: &RefHeader{Version: 1}}
	if err := empty.VerifyTransactions(); err == nil {
		t.Fatalf("expected empty block to fail verification")
	}

	dup := NewRefBlock(&RefHeader{Version: 1}, []*RefTransaction{tx1, tx1})
	if err := dup.VerifyTransactions(); err == nil {
		t.Fatalf("expected duplicate transaction to fail verification")
	}
}

func TestRefHeader_VerifyHeaderRejectsAboveTarget(t *testing.T) {
	h := &RefHeader{Version: 1, Timestamp: 1000, Bits: 0x03000001} // tiny target
	if err := h.VerifyHeader(); err == nil {
		t.Fatalf("expected a near-zero target to reject essentially any hash")
	}
}
