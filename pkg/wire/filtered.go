package wire

import "github.com/klingnet-chain/ledgercore/pkg/chainhash"

// FilteredBlock is what a header-only ("SPV") caller hands to AddFiltered:
// a header plus the ordered list of every transaction hash in the block (so
// the merkle root can be checked) and the subset of those transactions the
// caller actually cares about. It deliberately does not implement Block —
// it carries no proof that the hash list is complete beyond the merkle
// check, and most of its transactions are never materialized.
type FilteredBlock struct {
	Header      Header
	TxHashes    []chainhash.Hash
	MatchedTxs  map[chainhash.Hash]Transaction
}

// VerifyMerkleRoot checks TxHashes reduces to the header's stated root.
func (f *FilteredBlock) VerifyMerkleRoot() error {
	if ComputeMerkleRoot(f.TxHashes) != f.Header.MerkleRoot() {
		return ErrMerkleMismatch
	}
	return nil
}
