// Package difficulty implements the four height/network-gated proof-of-work
// retarget algorithms (spec §4.2): the classic 2016-block retarget (V1),
// Kimoto Gravity Well (KGW), Dark Gravity Wave v1 (DGW1, identical to "DGW"
// per this repo's open-question decision), and Dark Gravity Wave v3 (DGW3).
// Grounded on the teacher's internal/consensus/pow.go clamp-and-retarget
// shape, generalized from a single plain-uint64 algorithm to four
// compact-target ones selected by chaincfg.ModeGates.
package difficulty

import (
	"time"

	"github.com/klingnet-chain/ledgercore/pkg/chaincfg"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// AncestorReader lets the difficulty engine walk back from a candidate's
// parent without depending on the blockstore package directly.
type AncestorReader interface {
	// HeaderByHeight returns the header at height, or ok=false if height is
	// negative or has not been stored.
	HeaderByHeight(height int64) (hdr wire.Header, ok bool)
}

// testnetDiffDate is the cutover from which testnet's minimum-difficulty
// exception (spec §4.2) applies to V1 retargets: it is in force for a parent
// timestamped at or after this date, and not before it. Preserved
// verbatim from the source chain parameters per this repo's open-question
// decision.
var testnetDiffDate = time.Date(2012, time.February, 15, 0, 0, 0, 0, time.UTC).Unix()

// NextTarget computes the compact-encoded difficulty target a candidate
// block at parentHeight+1 must satisfy, dispatching on chaincfg.ModeGates.
// parent is the chain tip the candidate extends.
func NextTarget(params chaincfg.NetworkParams, parentHeight int64, parent wire.Header, ancestors AncestorReader) uint32 {
	height := parentHeight + 1
	switch params.DiffGates().ModeAt(height) {
	case chaincfg.DiffModeKGW:
		return nextKGW(params, parentHeight, parent, ancestors)
	case chaincfg.DiffModeDGW1:
		return nextDGW1(params, parentHeight, parent, ancestors)
	case chaincfg.DiffModeDGW3:
		return nextDGW3(params, parentHeight, parent, ancestors)
	default:
		return nextV1(params, parentHeight, parent, ancestors)
	}
}
