package chaincfg

import (
	"math/big"

	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// genesisBlock builds the deterministic first block of a network: one
// payload-only transaction, a fixed timestamp and nonce, and the network's
// starting difficulty bits. Reconstructed on every call so callers never
// share a mutable instance.
func genesisBlock(timestamp int64, bits uint32, nonce uint64, payload string) wire.Block {
	tx := &wire.RefTransaction{
		Version: 1,
		Payload: []byte(payload),
	}
	header := &wire.RefHeader{
		Version:   1,
		PrevHash:  chainhash.Hash{},
		Timestamp: timestamp,
		Bits:      bits,
		Nonce:     nonce,
	}
	return wire.NewRefBlock(header, []*wire.RefTransaction{tx})
}

// mainnetPowLimit is the easiest allowed mainnet target: 2^236 - 1, leaving
// enough headroom below 2^256 for the compact encoding's sign bit.
func mainnetPowLimit() *big.Int {
	limit := new(big.Int).Lsh(big.NewInt(1), 236)
	return limit.Sub(limit, big.NewInt(1))
}

// testnetPowLimit is deliberately much easier than mainnet's, so test
// networks can be mined on ordinary hardware.
func testnetPowLimit() *big.Int {
	limit := new(big.Int).Lsh(big.NewInt(1), 251)
	return limit.Sub(limit, big.NewInt(1))
}

// Mainnet is the production network's reference parameter set.
var Mainnet = &Params{
	Name:            "mainnet",
	TestNet:         false,
	IntervalBlocks:  2016,
	TimespanSeconds: 2016 * 150, // 2016 blocks * 150s target spacing
	SpacingSeconds:  150,
	PowLimit:        mainnetPowLimit(),
	Gates: ModeGates{
		KGWStart:  15200,
		DGW1Start: 34140,
		DGW3Start: 68589,
	},
	Checkpoints: map[int64]chainhash.Hash{},
	GenesisFn: func() wire.Block {
		return genesisBlock(1231006505, chainutil.BigToCompact(mainnetPowLimit()), 2083236893,
			"ledgercore mainnet genesis")
	},
}

// Testnet is the test network's reference parameter set: short V1 window,
// then straight to DGW3, matching spec §4.2's testnet gate table.
var Testnet = &Params{
	Name:            "testnet",
	TestNet:         true,
	IntervalBlocks:  2016,
	TimespanSeconds: 2016 * 150,
	SpacingSeconds:  150,
	PowLimit:        testnetPowLimit(),
	Gates: ModeGates{
		KGWStart:  0,
		DGW1Start: 0,
		DGW3Start: 16,
	},
	Checkpoints: map[int64]chainhash.Hash{},
	GenesisFn: func() wire.Block {
		return genesisBlock(1296688602, chainutil.BigToCompact(testnetPowLimit()), 414098458,
			"ledgercore testnet genesis")
	},
}

// ByName resolves a network by its ID ("mainnet" or "testnet").
func ByName(name string) (NetworkParams, bool) {
	switch name {
	case "mainnet":
		return Mainnet, true
	case "testnet":
		return Testnet, true
	default:
		return nil, false
	}
}
