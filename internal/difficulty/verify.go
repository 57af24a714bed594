package difficulty

import (
	"fmt"
	"math"

	"github.com/klingnet-chain/ledgercore/pkg/chaincfg"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// dgw3StartHeight is the mainnet height at which exact masked-target
// comparison replaces the float-difficulty tolerance check. Mirrors
// chaincfg.ModeGates.DGW3Start for mainnet; kept separate since the
// tolerance policy is about verification precision, not algorithm choice.
const dgw3StartHeight = 68589

// accuracyBytesFromCompact derives the masked-comparison precision from a
// compact target's exponent byte, per spec §4.2: the comparison only needs
// to agree to the precision the compact encoding itself can represent.
func accuracyBytesFromCompact(compact uint32) int {
	return int(compact>>24) - 3
}

// ErrDifficultyMismatch means the candidate header's stated target does not
// match what the difficulty engine expects for its height.
var ErrDifficultyMismatch = fmt.Errorf("difficulty: candidate target does not match expected target")

// VerifyDifficulty checks that candidate's stated compact target is the one
// the difficulty engine expects at parentHeight+1, using the comparison
// policy spec §4.2 assigns per network and height:
//   - testnet: exact equality between expected and stated compact targets,
//     except that between V1 retargets (parent timestamp at or after
//     testnetDiffDate) a candidate more than two target spacings after its
//     parent may state the network's easiest target.
//   - mainnet, height < dgw3StartHeight: reconstructed float-difficulty
//     values must agree within 20%, absorbing drift in historically mined
//     blocks whose stated bits were never byte-exact to the formula.
//   - mainnet, height >= dgw3StartHeight: exact equality after masking both
//     targets to the accuracy the compact encoding can represent.
func VerifyDifficulty(params chaincfg.NetworkParams, parentHeight int64, parent wire.Header, candidate wire.Header, ancestors AncestorReader) error {
	height := parentHeight + 1
	expectedCompact := NextTarget(params, parentHeight, parent, ancestors)
	statedCompact := candidate.DifficultyTargetCompact()

	if params.IsTestNet() {
		if expectedCompact == statedCompact {
			return nil
		}
		if params.DiffGates().ModeAt(height) == chaincfg.DiffModeV1 && height%params.Interval() != 0 &&
			parent.TimeSeconds() >= testnetDiffDate &&
			candidate.TimeSeconds()-parent.TimeSeconds() > 2*params.TargetSpacing() &&
			statedCompact == chainutil.BigToCompact(params.ProofOfWorkLimit()) {
			return nil
		}
		return fmt.Errorf("%w: testnet height %d expected %08x got %08x", ErrDifficultyMismatch, height, expectedCompact, statedCompact)
	}

	if height < dgw3StartHeight {
		expectedF := chainutil.CompactToFloat(expectedCompact, params.ProofOfWorkLimit())
		statedF := chainutil.CompactToFloat(statedCompact, params.ProofOfWorkLimit())
		if expectedF == 0 {
			if statedF == 0 {
				return nil
			}
			return fmt.Errorf("%w: mainnet height %d expected zero difficulty", ErrDifficultyMismatch, height)
		}
		deviation := math.Abs(statedF-expectedF) / expectedF
		if deviation > 0.20 {
			return fmt.Errorf("%w: mainnet height %d expected ~%f got %f (%.1f%% off)", ErrDifficultyMismatch, height, expectedF, statedF, deviation*100)
		}
		return nil
	}

	expectedTarget := chainutil.CompactToBig(expectedCompact)
	statedTarget := chainutil.CompactToBig(statedCompact)
	accuracy := accuracyBytesFromCompact(statedCompact)
	maskedExpected := chainutil.MaskToAccuracy(expectedTarget, accuracy)
	maskedStated := chainutil.MaskToAccuracy(statedTarget, accuracy)
	if maskedExpected.Cmp(maskedStated) != 0 {
		return fmt.Errorf("%w: mainnet height %d expected %s got %s", ErrDifficultyMismatch, height, maskedExpected, maskedStated)
	}
	return nil
}
