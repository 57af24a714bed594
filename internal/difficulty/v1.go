package difficulty

import (
	"github.com/klingnet-chain/ledgercore/pkg/chaincfg"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// nextV1 is the classic full-interval retarget: every Interval() blocks, the
// target is rescaled by the ratio of actual to expected timespan over the
// preceding interval, clamped to [timespan/4, timespan*4]. Between retarget
// boundaries the target is unchanged, except for testnet's minimum-
// difficulty exception.
func nextV1(params chaincfg.NetworkParams, parentHeight int64, parent wire.Header, ancestors AncestorReader) uint32 {
	height := parentHeight + 1
	interval := params.Interval()

	if height%interval != 0 {
		if params.IsTestNet() {
			return testnetMinDifficulty(params, parentHeight, parent, ancestors)
		}
		return parent.DifficultyTargetCompact()
	}

	// first is the block at the start of the interval just completed: the
	// retarget compares the timespan from first to parent, interval blocks
	// apart, except at the very first retarget, where the source chain's
	// off-by-one walks back only interval-1 blocks (to genesis).
	blocksBack := interval
	if height == interval {
		blocksBack = interval - 1
	}
	firstHeight := parentHeight - blocksBack
	if firstHeight < 0 {
		firstHeight = 0
	}
	first, ok := ancestors.HeaderByHeight(firstHeight)
	if !ok {
		return parent.DifficultyTargetCompact()
	}

	actualTimespan := parent.TimeSeconds() - first.TimeSeconds()
	targetTimespan := params.TargetTimespan()

	minSpan := targetTimespan / 4
	maxSpan := targetTimespan * 4
	if actualTimespan < minSpan {
		actualTimespan = minSpan
	}
	if actualTimespan > maxSpan {
		actualTimespan = maxSpan
	}

	oldTarget := parent.DifficultyTargetAsInteger()
	newTarget := oldTarget.Mul(oldTarget, bigFromInt64(actualTimespan))
	newTarget.Div(newTarget, bigFromInt64(targetTimespan))
	newTarget = chainutil.ClampToPowLimit(newTarget, params.ProofOfWorkLimit())
	if newTarget.Sign() <= 0 {
		newTarget = bigFromInt64(1)
	}
	return chainutil.BigToCompact(newTarget)
}

// testnetMinDifficulty implements the testnet-only rule between retargets:
// the expected bits are those of the most recent non-exception block. A
// block more than two target-spacings late may instead carry the network's
// easiest target; VerifyDifficulty accepts that case. Applies only when the
// parent's timestamp is at or after testnetDiffDate; before it, the parent's
// bits are inherited unchanged.
func testnetMinDifficulty(params chaincfg.NetworkParams, parentHeight int64, parent wire.Header, ancestors AncestorReader) uint32 {
	if parent.TimeSeconds() >= testnetDiffDate {
		height := parentHeight + 1
		return fallbackTestnetBits(params, height, parent, ancestors)
	}
	return parent.DifficultyTargetCompact()
}

// fallbackTestnetBits walks back to the most recent retarget-boundary block
// or non-minimum-difficulty block and returns its bits.
func fallbackTestnetBits(params chaincfg.NetworkParams, height int64, parent wire.Header, ancestors AncestorReader) uint32 {
	powLimitBits := chainutil.BigToCompact(params.ProofOfWorkLimit())
	// The candidate's own timestamp is not an input here, so the late-block
	// case (easiest target after a gap of more than two target spacings) is
	// checked against the candidate header by VerifyDifficulty instead.
	cursor := parent
	cursorHeight := height - 1
	for cursorHeight > 0 && cursorHeight%params.Interval() != 0 && cursor.DifficultyTargetCompact() == powLimitBits {
		prev, ok := ancestors.HeaderByHeight(cursorHeight - 1)
		if !ok {
			break
		}
		cursor = prev
		cursorHeight--
	}
	return cursor.DifficultyTargetCompact()
}
