// Package chainutil provides the numeric primitives the difficulty engine
// and chain manager share: compact-target encoding and cumulative-work
// arithmetic over arbitrary-precision integers.
package chainutil

import "math/big"

// oneLsh256 is 2^256, used to derive the per-block work contribution and to
// bound compact-encoded targets.
var oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)

// CompactToBig decodes a 32-bit "compact" target encoding (1 byte exponent,
// 3 bytes mantissa, matching the historical difficulty-bits wire format)
// into a 256-bit target.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	exponent := compact >> 24

	var target *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		target = big.NewInt(int64(mantissa))
	} else {
		target = big.NewInt(int64(mantissa))
		target.Lsh(target, uint(8*(exponent-3)))
	}

	// The 0x00800000 bit of the mantissa is a sign flag in the historical
	// encoding; a negative target has no meaning here, so it is clamped to
	// zero rather than propagated.
	if compact&0x00800000 != 0 {
		return big.NewInt(0)
	}
	return target
}

// BigToCompact encodes a 256-bit target into the compact representation.
// Negative and zero values encode to zero. Values are not saturated: a
// target wider than 255 bytes overflows the exponent byte.
func BigToCompact(target *big.Int) uint32 {
	if target.Sign() <= 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(target.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(target.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(target)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// The 0x00800000 bit would be interpreted as a sign flag; shift the
	// mantissa down and bump the exponent to keep it clear.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	return uint32(exponent<<24) | mantissa
}

// TargetToWork converts a 256-bit difficulty target into the "work"
// contributed by a single block at that target: floor(2^256 / (target+1)).
// A zero or negative target is treated as maximally easy (work of zero),
// since no valid block could ever be produced below it.
func TargetToWork(target *big.Int) *big.Int {
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	return new(big.Int).Div(oneLsh256, denom)
}

// ClampToPowLimit returns limit if target exceeds it (a target may never be
// easier than the network's proof-of-work limit), else target unchanged.
func ClampToPowLimit(target, limit *big.Int) *big.Int {
	if target.Cmp(limit) > 0 {
		return new(big.Int).Set(limit)
	}
	return target
}

// MaskToAccuracy reduces target to the precision implied by a compact
// encoding's accuracy-byte count: it keeps only the three bytes starting
// accuracyBytes bytes up from the least significant end and zeroes every
// byte below and above them, consistent with verify-difficulty's masked comparison
// (spec §4.2) that absorbs float drift in historically mined blocks.
func MaskToAccuracy(target *big.Int, accuracyBytes int) *big.Int {
	if accuracyBytes < 0 {
		accuracyBytes = 0
	}
	mask := new(big.Int).Lsh(big.NewInt(0xFFFFFF), uint(accuracyBytes*8))
	return new(big.Int).And(target, mask)
}

// CompactToFloat reconstructs the historical "difficulty" floating point
// value (1.0 at the proof-of-work limit, growing as the target shrinks),
// used by the pre-height-68589 mainnet tolerance comparison which compares
// reconstructed difficulties rather than raw targets.
func CompactToFloat(compact uint32, powLimit *big.Int) float64 {
	target := CompactToBig(compact)
	if target.Sign() <= 0 {
		return 0
	}
	limitF := new(big.Float).SetInt(powLimit)
	targetF := new(big.Float).SetInt(target)
	ratio := new(big.Float).Quo(limitF, targetF)
	f, _ := ratio.Float64()
	return f
}
