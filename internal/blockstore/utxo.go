package blockstore

import (
	"encoding/json"
	"fmt"

	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// ErrMissingInput means a transaction spends an outpoint the UTXO set does
// not have: a double spend, or a reference to an output that was never
// created.
var ErrMissingInput = fmt.Errorf("blockstore: transaction spends an unknown or already-spent output")

// ErrNotFinal means a transaction's lock time has not yet been reached at
// the height/timestamp it is being connected at (spec §4.3's finality gate).
var ErrNotFinal = fmt.Errorf("blockstore: transaction is not final")

type spentEntry struct {
	OutPoint wire.OutPoint `json:"outpoint"`
	Output   wire.TxOutput `json:"output"`
}

// txUndo is the data needed to revert one block's effect on the UTXO set:
// the outputs it created (to delete) and the outputs it spent (to restore).
type txUndo struct {
	Created []wire.OutPoint `json:"created"`
	Spent   []spentEntry    `json:"spent"`
}

// utxoAccessor is the minimal UTXO-set capability connectTransactions and
// disconnectTransactions need. MemStore and BadgerStore each implement it
// over their own storage and delegate to the shared algorithm below.
type utxoAccessor interface {
	getUTXO(op wire.OutPoint) (wire.TxOutput, bool, error)
	putUTXO(op wire.OutPoint, out wire.TxOutput) error
	deleteUTXO(op wire.OutPoint) error
}

// connectTransactions applies blk's transactions to the UTXO set ua. The
// first transaction is the block's coinbase equivalent and spends nothing;
// every other transaction's inputs must already be unspent outputs in ua,
// and it must be final at height/blk's own timestamp. Returns the undo data
// needed to reverse the block later. On error, the changes already applied
// are reverted, leaving ua as it was.
func connectTransactions(ua utxoAccessor, blk wire.Block, height int64) ([]byte, error) {
	var undo txUndo
	fail := func(err error) ([]byte, error) {
		if data, mErr := json.Marshal(undo); mErr == nil {
			_ = disconnectTransactions(ua, data)
		}
		return nil, err
	}
	for i, tx := range blk.Transactions() {
		ref, ok := tx.(*wire.RefTransaction)
		if !ok {
			return fail(fmt.Errorf("blockstore: connectTransactions requires *wire.RefTransaction, got %T", tx))
		}
		if i > 0 {
			if !ref.IsFinal(uint64(height), blk.TimeSeconds()) {
				return fail(fmt.Errorf("%w: %s", ErrNotFinal, ref.Hash()))
			}
			for _, in := range ref.Inputs {
				out, ok, err := ua.getUTXO(in)
				if err != nil {
					return fail(err)
				}
				if !ok {
					return fail(fmt.Errorf("%w: %s:%d", ErrMissingInput, in.Hash, in.Index))
				}
				undo.Spent = append(undo.Spent, spentEntry{OutPoint: in, Output: out})
				if err := ua.deleteUTXO(in); err != nil {
					return fail(err)
				}
			}
		}
		for idx, out := range ref.Outputs {
			op := wire.OutPoint{Hash: ref.Hash(), Index: uint32(idx)}
			if err := ua.putUTXO(op, out); err != nil {
				return fail(err)
			}
			undo.Created = append(undo.Created, op)
		}
	}
	return json.Marshal(undo)
}

// disconnectTransactions reverses a previously connected block's effect on
// the UTXO set ua, given its undo data: restores every output it spent, then
// deletes every output it created, so an output both created and spent
// within the block ends up absent.
func disconnectTransactions(ua utxoAccessor, undoData []byte) error {
	var undo txUndo
	if err := json.Unmarshal(undoData, &undo); err != nil {
		return err
	}
	for _, entry := range undo.Spent {
		if err := ua.putUTXO(entry.OutPoint, entry.Output); err != nil {
			return err
		}
	}
	for _, op := range undo.Created {
		if err := ua.deleteUTXO(op); err != nil {
			return err
		}
	}
	return nil
}
