// Package chaincfg defines the network-parameter contract the chain manager
// and difficulty engine consume, plus reference Mainnet/Testnet parameter
// sets. Grounded on the teacher's config package shape: plain exported
// structs, no viper/cobra indirection.
package chaincfg

import (
	"math/big"

	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// DiffMode names a difficulty-retarget algorithm.
type DiffMode int

const (
	DiffModeV1 DiffMode = iota
	DiffModeKGW
	DiffModeDGW1
	DiffModeDGW3
)

func (m DiffMode) String() string {
	switch m {
	case DiffModeV1:
		return "v1"
	case DiffModeKGW:
		return "kgw"
	case DiffModeDGW1:
		return "dgw1"
	case DiffModeDGW3:
		return "dgw3"
	default:
		return "unknown"
	}
}

// ModeGates holds the per-network heights at which each successive
// difficulty algorithm takes over (spec §4.2's height/network table). A
// zero start height means that algorithm is never selected on this network.
type ModeGates struct {
	KGWStart  int64
	DGW1Start int64
	DGW3Start int64
}

// ModeAt resolves which algorithm governs the block being mined at height.
// Later-introduced algorithms are checked first since their start heights
// are always higher.
func (g ModeGates) ModeAt(height int64) DiffMode {
	switch {
	case g.DGW3Start > 0 && height >= g.DGW3Start:
		return DiffModeDGW3
	case g.DGW1Start > 0 && height >= g.DGW1Start:
		return DiffModeDGW1
	case g.KGWStart > 0 && height >= g.KGWStart:
		return DiffModeKGW
	default:
		return DiffModeV1
	}
}

// NetworkParams is the contract difficulty and chainmgr consume. Neither
// package imports a concrete Params type directly.
type NetworkParams interface {
	ID() string
	IsTestNet() bool
	GenesisBlock() wire.Block
	Interval() int64
	TargetTimespan() int64
	TargetSpacing() int64
	ProofOfWorkLimit() *big.Int
	DiffGates() ModeGates
	PassesCheckpoint(height int64, hash chainhash.Hash) bool
}

// Params is the reference NetworkParams implementation.
type Params struct {
	Name            string
	TestNet         bool
	GenesisFn       func() wire.Block
	IntervalBlocks  int64
	TimespanSeconds int64
	SpacingSeconds  int64
	PowLimit        *big.Int
	Gates           ModeGates
	Checkpoints     map[int64]chainhash.Hash
}

func (p *Params) ID() string                  { return p.Name }
func (p *Params) IsTestNet() bool             { return p.TestNet }
func (p *Params) GenesisBlock() wire.Block    { return p.GenesisFn() }
func (p *Params) Interval() int64             { return p.IntervalBlocks }
func (p *Params) TargetTimespan() int64       { return p.TimespanSeconds }
func (p *Params) TargetSpacing() int64        { return p.SpacingSeconds }
func (p *Params) ProofOfWorkLimit() *big.Int  { return new(big.Int).Set(p.PowLimit) }
func (p *Params) DiffGates() ModeGates        { return p.Gates }

// PassesCheckpoint reports whether hash matches the hard checkpoint recorded
// for height, or true if no checkpoint is recorded for that height.
func (p *Params) PassesCheckpoint(height int64, hash chainhash.Hash) bool {
	want, ok := p.Checkpoints[height]
	if !ok {
		return true
	}
	return want == hash
}
