package difficulty

import (
	"math"
	"math/big"

	"github.com/klingnet-chain/ledgercore/pkg/chaincfg"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// kgwPastBlocksMin is how many blocks the Kimoto Gravity Well algorithm
// samples before its event-horizon deviation check may end the walk, and
// kgwPastBlocksMax caps the walk: 1/40 of a day and 7 days of blocks at a
// 150-second spacing.
const (
	kgwPastBlocksMin = (86400 / 40) / 150 // 14
	kgwPastBlocksMax = (86400 * 7) / 150  // 4032
)

// kgwFloorHeight is the height after which a 5-second floor is applied to
// the elapsed-time term, preventing a near-zero or negative timespan (seen
// on this chain from a run of out-of-order timestamps around that height)
// from blowing up the adjustment ratio.
const kgwFloorHeight = 646120

// nextKGW implements Kimoto Gravity Well: a variable-length lookback window
// that widens until the recent block-time deviation crosses an event-horizon
// threshold, then rescales the averaged target by the actual/target time
// ratio over that window.
func nextKGW(params chaincfg.NetworkParams, parentHeight int64, parent wire.Header, ancestors AncestorReader) uint32 {
	height := parentHeight + 1
	if parentHeight < kgwPastBlocksMin {
		return parent.DifficultyTargetCompact()
	}

	spacing := float64(params.TargetSpacing())

	var pastDifficultyAverage, pastDifficultyAveragePrev big.Float
	var pastRateActualSeconds, pastRateTargetSeconds float64

	reading := parent
	readingHeight := parentHeight
	countBlocks := 0

	for countBlocks < kgwPastBlocksMax {
		countBlocks++

		targetF := new(big.Float).SetInt(reading.DifficultyTargetAsInteger())
		if countBlocks == 1 {
			pastDifficultyAverage.Set(targetF)
		} else {
			sum := new(big.Float).Mul(&pastDifficultyAveragePrev, big.NewFloat(float64(countBlocks)))
			sum.Add(sum, targetF)
			pastDifficultyAverage.Quo(sum, big.NewFloat(float64(countBlocks+1)))
		}
		pastDifficultyAveragePrev.Set(&pastDifficultyAverage)

		pastRateActualSeconds = float64(parent.TimeSeconds() - reading.TimeSeconds())
		if height > kgwFloorHeight && pastRateActualSeconds < 5 {
			pastRateActualSeconds = 5
		}
		if pastRateActualSeconds < 0 {
			pastRateActualSeconds = 0
		}
		pastRateTargetSeconds = spacing * float64(countBlocks)

		adjustmentRatio := 1.0
		if pastRateActualSeconds != 0 && pastRateTargetSeconds != 0 {
			adjustmentRatio = pastRateTargetSeconds / pastRateActualSeconds
		}

		eventHorizonDeviation := 1 + 0.7084*math.Pow(float64(countBlocks)/28.2, -1.228)
		eventHorizonFast := eventHorizonDeviation
		eventHorizonSlow := 1 / eventHorizonDeviation

		if countBlocks >= kgwPastBlocksMin {
			if adjustmentRatio <= eventHorizonSlow || adjustmentRatio >= eventHorizonFast {
				break
			}
		}

		prev, ok := ancestors.HeaderByHeight(readingHeight - 1)
		if !ok {
			break
		}
		reading = prev
		readingHeight--
	}

	newTargetF := new(big.Float).Set(&pastDifficultyAverage)
	if pastRateActualSeconds != 0 && pastRateTargetSeconds != 0 {
		newTargetF.Mul(newTargetF, big.NewFloat(pastRateActualSeconds))
		newTargetF.Quo(newTargetF, big.NewFloat(pastRateTargetSeconds))
	}

	newTarget, _ := newTargetF.Int(nil)
	if newTarget.Sign() <= 0 {
		newTarget = big.NewInt(1)
	}
	newTarget = chainutil.ClampToPowLimit(newTarget, params.ProofOfWorkLimit())
	return chainutil.BigToCompact(newTarget)
}
