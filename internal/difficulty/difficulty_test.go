package difficulty

import (
	"math/big"
	"testing"

	"github.com/klingnet-chain/ledgercore/pkg/chaincfg"
	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// fakeChain is a linear in-memory header chain used to exercise the
// retarget algorithms without a real blockstore.
type fakeChain struct {
	headers []*wire.RefHeader
}

func (c *fakeChain) HeaderByHeight(height int64) (wire.Header, bool) {
	if height < 0 || int(height) >= len(c.headers) {
		return nil, false
	}
	return c.headers[height], true
}

// buildChain constructs n headers at fixed spacing, all carrying bits.
func buildChain(n int, startTime, spacing int64, bits uint32) *fakeChain {
	c := &fakeChain{}
	for i := 0; i < n; i++ {
		c.headers = append(c.headers, &wire.RefHeader{
			Version:   1,
			Timestamp: startTime + int64(i)*spacing,
			Bits:      bits,
			Nonce:     uint64(i),
		})
	}
	return c
}

func testParams() *chaincfg.Params {
	limit := new(big.Int).Lsh(big.NewInt(1), 240)
	limit.Sub(limit, big.NewInt(1))
	return &chaincfg.Params{
		Name:            "unit",
		TestNet:         true,
		IntervalBlocks:  2016,
		TimespanSeconds: 2016 * 150,
		SpacingSeconds:  150,
		PowLimit:        limit,
		Gates:           chaincfg.ModeGates{KGWStart: 0, DGW1Start: 0, DGW3Start: 16},
		Checkpoints:     map[int64]chainhash.Hash{},
	}
}

func TestNextV1_NoRetargetBetweenBoundaries(t *testing.T) {
	bits := chainutil.BigToCompact(big.NewInt(1000000))
	chain := buildChain(10, 1000, 150, bits)
	params := testParams()
	params.Gates = chaincfg.ModeGates{} // force V1 at every height for this test

	parent := chain.headers[9]
	got := NextTarget(params, 9, parent, chain)
	if got != bits {
		t.Fatalf("expected unchanged bits %08x between retarget boundaries, got %08x", bits, got)
	}
}

func TestNextV1_RetargetsAtBoundary(t *testing.T) {
	bits := chainutil.BigToCompact(big.NewInt(1_000_000_000))
	// Blocks solved twice as fast as the 150s target spacing: retarget
	// should tighten the target (decrease it).
	chain := buildChain(2016, 1000, 75, bits)
	params := testParams()
	params.Gates = chaincfg.ModeGates{}
	params.IntervalBlocks = 2016
	params.TimespanSeconds = 2016 * 150

	parent := chain.headers[2015]
	got := NextTarget(params, 2015, parent, chain)
	gotTarget := chainutil.CompactToBig(got)
	oldTarget := chainutil.CompactToBig(bits)
	if gotTarget.Cmp(oldTarget) >= 0 {
		t.Fatalf("expected tighter target after fast blocks, old=%s new=%s", oldTarget, gotTarget)
	}
}

func TestNextDGW3_AveragesWindow(t *testing.T) {
	bits := chainutil.BigToCompact(big.NewInt(500_000_000))
	chain := buildChain(40, 1000, 150, bits)
	params := testParams()
	params.Gates = chaincfg.ModeGates{DGW3Start: 16}

	parent := chain.headers[39]
	got := nextDGW3(params, 39, parent, chain)
	// All blocks at exactly target spacing with identical bits: the 24-block
	// window spans 23 inter-block intervals against a 24-spacing target
	// timespan, so the averaged target comes back scaled by 23/24.
	want := chainutil.BigToCompact(big.NewInt(500_000_000 * 23 / 24))
	if got != want {
		t.Fatalf("expected DGW3 steady-state target %08x (average scaled by 23/24), got %08x", want, got)
	}
}

func TestVerifyDifficulty_TestnetExactMatch(t *testing.T) {
	bits := chainutil.BigToCompact(big.NewInt(1000000))
	chain := buildChain(20, 1000, 150, bits)
	params := testParams()

	parent := chain.headers[19]
	expected := NextTarget(params, 19, parent, chain)

	candidate := &wire.RefHeader{Timestamp: parent.TimeSeconds() + 150, Bits: expected}
	if err := VerifyDifficulty(params, 19, parent, candidate, chain); err != nil {
		t.Fatalf("expected matching testnet target to verify, got %v", err)
	}

	wrong := &wire.RefHeader{Timestamp: parent.TimeSeconds() + 150, Bits: expected - 1}
	if err := VerifyDifficulty(params, 19, parent, wrong, chain); err == nil {
		t.Fatalf("expected mismatched testnet target to fail verification")
	}
}
