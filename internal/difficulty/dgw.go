package difficulty

import (
	"math/big"

	"github.com/klingnet-chain/ledgercore/pkg/chaincfg"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// dgwPastBlocksMin/Max bound DGW1's lookback window. They are set
// independently of KGW's bounds, since the two algorithms never overlap at a
// given height.
const (
	dgwPastBlocksMin = 24
	dgwPastBlocksMax = 24
	// dgw3Window is DGW3's fixed lookback, replacing DGW1's variable one.
	dgw3Window = 24
)

// nextDGW1 is Dark Gravity Wave's original "smart average" retarget: a
// weighted moving average and a plain simple average over the same window
// are blended 0.7/0.3, then rescaled by the actual/expected timespan ratio
// clamped to [1/3, 3x]. Per this repo's open-question decision, DGW1 and
// the algorithm the spec calls plain "DGW" are the same function.
func nextDGW1(params chaincfg.NetworkParams, parentHeight int64, parent wire.Header, ancestors AncestorReader) uint32 {
	if parentHeight < dgwPastBlocksMin {
		return parent.DifficultyTargetCompact()
	}

	movingAvg, simpleAvg, countBlocks, oldestTime := averageWindow(parent, parentHeight, ancestors, dgwPastBlocksMax, dgwPastBlocksMin)
	if countBlocks == 0 {
		return parent.DifficultyTargetCompact()
	}

	blended := new(big.Float).Mul(movingAvg, big.NewFloat(0.7))
	simplePart := new(big.Float).Mul(simpleAvg, big.NewFloat(0.3))
	blended.Add(blended, simplePart)

	actualTimespan := parent.TimeSeconds() - oldestTime
	targetTimespan := int64(countBlocks) * params.TargetSpacing()

	if actualTimespan < targetTimespan/3 {
		actualTimespan = targetTimespan / 3
	}
	if actualTimespan > targetTimespan*3 {
		actualTimespan = targetTimespan * 3
	}

	blended.Mul(blended, big.NewFloat(float64(actualTimespan)))
	blended.Quo(blended, big.NewFloat(float64(targetTimespan)))

	newTarget, _ := blended.Int(nil)
	if newTarget.Sign() <= 0 {
		newTarget = big.NewInt(1)
	}
	newTarget = chainutil.ClampToPowLimit(newTarget, params.ProofOfWorkLimit())
	return chainutil.BigToCompact(newTarget)
}

// nextDGW3 replaces DGW1's weighted/simple blend with a single cumulative
// simple moving average over exactly 24 blocks, the simplification this
// chain's third difficulty revision settled on.
func nextDGW3(params chaincfg.NetworkParams, parentHeight int64, parent wire.Header, ancestors AncestorReader) uint32 {
	if parentHeight < dgw3Window {
		return parent.DifficultyTargetCompact()
	}

	sum := new(big.Int)
	reading := parent
	readingHeight := parentHeight
	count := 0
	var oldestTime int64

	for count < dgw3Window {
		count++
		sum.Add(sum, reading.DifficultyTargetAsInteger())
		oldestTime = reading.TimeSeconds()
		if count == dgw3Window {
			break
		}
		prev, ok := ancestors.HeaderByHeight(readingHeight - 1)
		if !ok {
			break
		}
		reading = prev
		readingHeight--
	}

	avg := new(big.Int).Div(sum, big.NewInt(int64(count)))

	actualTimespan := parent.TimeSeconds() - oldestTime
	targetTimespan := int64(count) * params.TargetSpacing()
	if actualTimespan < targetTimespan/3 {
		actualTimespan = targetTimespan / 3
	}
	if actualTimespan > targetTimespan*3 {
		actualTimespan = targetTimespan * 3
	}

	avg.Mul(avg, big.NewInt(actualTimespan))
	avg.Div(avg, big.NewInt(targetTimespan))
	if avg.Sign() <= 0 {
		avg = big.NewInt(1)
	}
	avg = chainutil.ClampToPowLimit(avg, params.ProofOfWorkLimit())
	return chainutil.BigToCompact(avg)
}

// averageWindow computes DGW1's weighted moving average (only the first
// PastBlocksMin samples contribute) and the plain simple average over the
// same walked window, returning both plus the number of blocks walked and
// the timestamp of the oldest one.
func averageWindow(parent wire.Header, parentHeight int64, ancestors AncestorReader, maxBlocks, minBlocks int) (movingAvg, simpleAvg *big.Float, count int, oldestTime int64) {
	var movingAvgPrev big.Float
	movingAvg = new(big.Float)
	sum := new(big.Float)

	reading := parent
	readingHeight := parentHeight
	for count < maxBlocks {
		count++
		targetF := new(big.Float).SetInt(reading.DifficultyTargetAsInteger())
		sum.Add(sum, targetF)

		if count <= minBlocks {
			if count == 1 {
				movingAvg.Set(targetF)
			} else {
				weighted := new(big.Float).Mul(&movingAvgPrev, big.NewFloat(float64(count)))
				weighted.Add(weighted, targetF)
				movingAvg.Quo(weighted, big.NewFloat(float64(count+1)))
			}
			movingAvgPrev.Set(movingAvg)
		}

		oldestTime = reading.TimeSeconds()
		if count == maxBlocks {
			break
		}
		prev, ok := ancestors.HeaderByHeight(readingHeight - 1)
		if !ok {
			break
		}
		reading = prev
		readingHeight--
	}

	simpleAvg = new(big.Float).Quo(sum, big.NewFloat(float64(count)))
	return movingAvg, simpleAvg, count, oldestTime
}
