// Command ledgerd is a small demo node: it opens a badger-backed block
// store, wires up a chain manager for the selected network with a listener
// that logs connect/reorg events, logs that it is ready, and waits for a
// shutdown signal. It submits no blocks to the manager itself. Grounded on the
// teacher's cmd/klingnetd/main.go: flag-parsed configuration, zerolog
// initialization, then component wiring in dependency order.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/klingnet-chain/ledgercore/internal/blockstore"
	"github.com/klingnet-chain/ledgercore/internal/chainmgr"
	"github.com/klingnet-chain/ledgercore/internal/log"
	"github.com/klingnet-chain/ledgercore/internal/observer"
	"github.com/klingnet-chain/ledgercore/pkg/chaincfg"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

type flags struct {
	network    string
	dataDir    string
	logLevel   string
	logJSON    bool
	headerOnly bool
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.network, "network", "testnet", "network to run (mainnet|testnet)")
	flag.StringVar(&f.dataDir, "datadir", "./ledgerd-data", "directory for persistent chain data")
	flag.StringVar(&f.logLevel, "loglevel", "info", "log level (debug|info|warn|error)")
	flag.BoolVar(&f.logJSON, "log-json", false, "emit structured JSON logs instead of colored console output")
	flag.BoolVar(&f.headerOnly, "header-only", false, "run as a header-only (SPV) node instead of full validation")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()

	if err := log.Init(f.logLevel, f.logJSON, ""); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	params, ok := chaincfg.ByName(f.network)
	if !ok {
		log.Chain.Fatal().Str("network", f.network).Msg("unknown network")
	}

	if err := os.MkdirAll(f.dataDir, 0o755); err != nil {
		log.Store.Fatal().Err(err).Str("dir", f.dataDir).Msg("failed to create data directory")
	}

	store, err := blockstore.OpenBadgerStore(f.dataDir)
	if err != nil {
		log.Store.Fatal().Err(err).Msg("failed to open block store")
	}
	defer store.Close()

	if hash, pending, err := store.PendingReorgCheckpoint(); err != nil {
		log.Store.Fatal().Err(err).Msg("failed to check for interrupted reorg")
	} else if pending {
		log.Store.Warn().Str("hash", hash.String()).Msg("resuming after interrupted chain-head move")
	}

	mode := chainmgr.ModeFullValidation
	if f.headerOnly {
		mode = chainmgr.ModeHeaderOnly
	}

	mgr := chainmgr.New(params, store, mode)
	if err := mgr.InitGenesis(); err != nil {
		log.Chain.Fatal().Err(err).Msg("failed to initialize genesis block")
	}

	listener := observer.NewListener(0, false)
	listener.NewBestBlock = func(header wire.Header) {
		log.Chain.Info().
			Str("hash", header.Hash().String()).
			Msg("block connected")
	}
	listener.BlockDisconnected = func(header wire.Header) {
		log.Reorg.Info().
			Str("hash", header.Hash().String()).
			Msg("block disconnected")
	}
	listener.Reorganized = func(splitHeight, newTipHeight int64) {
		log.Reorg.Warn().
			Int64("split_height", splitHeight).
			Int64("new_height", newTipHeight).
			Msg("chain reorganized")
	}
	mgr.AddListener(listener)

	head, err := mgr.GetChainHead()
	if err != nil {
		log.Chain.Fatal().Err(err).Msg("failed to read chain head")
	}
	log.Chain.Info().
		Str("network", f.network).
		Int64("height", head.Height).
		Str("work", humanize.BigComma(head.CumulativeWork.BigInt())).
		Msg("ledgerd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Chain.Info().Msg("shutting down")
}
