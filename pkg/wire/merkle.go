package wire

import "github.com/klingnet-chain/ledgercore/pkg/chainhash"

// ComputeMerkleRoot folds a list of transaction hashes into a single root by
// repeated pairwise hashing, duplicating the last hash of a level when it has
// an odd count. Returns the zero hash for an empty list.
func ComputeMerkleRoot(hashes []chainhash.Hash) chainhash.Hash {
	if len(hashes) == 0 {
		return chainhash.Hash{}
	}

	level := make([]chainhash.Hash, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]chainhash.Hash, len(level)/2)
		for i := range next {
			next[i] = chainhash.Concat(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}
