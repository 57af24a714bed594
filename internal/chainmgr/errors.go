package chainmgr

import (
	"fmt"

	"github.com/klingnet-chain/ledgercore/internal/blockstore"
)

var (
	// ErrBadCheckpoint means blk's height has a hard checkpoint recorded and
	// blk's hash does not match it.
	ErrBadCheckpoint = fmt.Errorf("chainmgr: block fails hard checkpoint")
	// ErrBadDifficulty means blk's stated target does not match what the
	// difficulty engine expects.
	ErrBadDifficulty = fmt.Errorf("chainmgr: block fails difficulty verification")
	// ErrReorgTooDeep means completing a reorg would disconnect more blocks
	// than MaxReorgDepth allows.
	ErrReorgTooDeep = fmt.Errorf("chainmgr: reorg exceeds maximum depth")
	// ErrNoGenesis means the store has no chain head yet (InitGenesis has not
	// run). GetChainHead returns it, and so do GetBestHeight and
	// EstimateBlockTime through it.
	ErrNoGenesis = fmt.Errorf("chainmgr: chain has no genesis block")
	// ErrFilteredNotAccepted means AddFiltered was called on a Manager
	// running in full-validation mode (spec §4.1: "In full-validation mode,
	// filtered blocks are not accepted").
	ErrFilteredNotAccepted = fmt.Errorf("chainmgr: filtered blocks are not accepted in full-validation mode")
)

// ErrPruned is blockstore.ErrPruned, re-exported so callers can check for it
// with errors.Is without importing blockstore directly.
var ErrPruned = blockstore.ErrPruned

// MaxReorgDepth bounds how many blocks a single reorg may disconnect,
// guarding against an adversarial deep fork forcing an unbounded rewrite.
const MaxReorgDepth = 1000
