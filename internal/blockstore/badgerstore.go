package blockstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/chainutil"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
	"github.com/klingnet-chain/ledgercore/internal/log"
)

// Key prefixes, grounded on the teacher's internal/chain/store.go scheme:
// "b/" stored blocks, "h/" height index, "d/" undo data, "x/" UTXO set,
// "s/" scalar state.
const (
	prefixBlock  = "b/"
	prefixHeight = "h/"
	prefixUndo   = "d/"
	prefixUTXO   = "x/"
	keyTip       = "s/tip"
	keyReorgCkpt = "s/reorg"
)

func utxoKey(op wire.OutPoint) []byte {
	key := make([]byte, 0, len(prefixUTXO)+chainhash.Size+4)
	key = append(key, prefixUTXO...)
	key = append(key, op.Hash[:]...)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], op.Index)
	return append(key, idx[:]...)
}

// BadgerStore is a persistent Accessor backed by dgraph-io/badger/v4,
// grounded on the teacher's internal/storage/badger.go wrapper and
// internal/chain/store.go's key scheme. It pairs with the wire package's
// reference Header/Block/Transaction types; storing a caller-supplied
// implementation of those interfaces is not supported, matching the
// teacher's own store which is equally tied to its concrete block type.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if necessary) a badger database at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("blockstore: open badger at %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type storedRecord struct {
	HeaderBytes []byte `json:"header"`
	BlockBytes  []byte `json:"block,omitempty"`
	Height      int64  `json:"height"`
	Work        string `json:"work"`
}

func (s *BadgerStore) encode(sb *StoredBlock) ([]byte, error) {
	headerBytes, err := sb.Header.Serialize()
	if err != nil {
		return nil, err
	}
	rec := storedRecord{
		HeaderBytes: headerBytes,
		Height:      sb.Height,
		Work:        sb.CumulativeWork.String(),
	}
	if sb.Block != nil {
		blockBytes, err := json.Marshal(sb.Block)
		if err != nil {
			return nil, err
		}
		rec.BlockBytes = blockBytes
	}
	return json.Marshal(rec)
}

func (s *BadgerStore) decode(data []byte) (*StoredBlock, error) {
	var rec storedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	header, err := wire.DeserializeHeader(rec.HeaderBytes)
	if err != nil {
		return nil, err
	}
	work, err := decodeWork(rec.Work)
	if err != nil {
		return nil, err
	}
	sb := &StoredBlock{Header: header, Height: rec.Height, CumulativeWork: work}
	if len(rec.BlockBytes) > 0 {
		var blk wire.RefBlock
		if err := json.Unmarshal(rec.BlockBytes, &blk); err != nil {
			return nil, err
		}
		sb.Block = &blk
	}
	return sb, nil
}

func decodeWork(s string) (chainutil.Work, error) {
	var w chainutil.Work
	if s == "" {
		return chainutil.ZeroWork(), nil
	}
	if err := w.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
		return chainutil.Work{}, err
	}
	return w, nil
}

func heightKey(height int64) []byte {
	key := make([]byte, len(prefixHeight)+8)
	copy(key, prefixHeight)
	binary.BigEndian.PutUint64(key[len(prefixHeight):], uint64(height))
	return key
}

func (s *BadgerStore) GetChainHead() (*StoredBlock, bool, error) {
	var hash chainhash.Hash
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyTip))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			copy(hash[:], val)
			found = true
			return nil
		})
	})
	if err != nil || !found {
		return nil, false, err
	}
	return s.Get(hash)
}

func (s *BadgerStore) Get(hash chainhash.Hash) (*StoredBlock, bool, error) {
	var sb *StoredBlock
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixBlock + hash.String()))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := s.decode(val)
			if err != nil {
				return err
			}
			sb = decoded
			return nil
		})
	})
	if err != nil || sb == nil {
		return nil, false, err
	}
	return sb, true, nil
}

func (s *BadgerStore) HeaderByHeight(height int64) (wire.Header, bool) {
	var hdr wire.Header
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(heightKey(height))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var hash chainhash.Hash
		if err := item.Value(func(val []byte) error {
			copy(hash[:], val)
			return nil
		}); err != nil {
			return err
		}
		blockItem, err := txn.Get([]byte(prefixBlock + hash.String()))
		if err != nil {
			return err
		}
		return blockItem.Value(func(val []byte) error {
			sb, err := s.decode(val)
			if err != nil {
				return err
			}
			hdr = sb.Header
			return nil
		})
	})
	if err != nil || hdr == nil {
		return nil, false
	}
	return hdr, true
}

func (s *BadgerStore) Put(sb *StoredBlock) error {
	data, err := s.encode(sb)
	if err != nil {
		return err
	}
	hash := sb.Header.Hash()
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixBlock+hash.String()), data)
	})
}

func (s *BadgerStore) PutWithUndo(sb *StoredBlock, undo []byte) error {
	data, err := s.encode(sb)
	if err != nil {
		return err
	}
	hash := sb.Header.Hash()
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixBlock+hash.String()), data); err != nil {
			return err
		}
		return txn.Set([]byte(prefixUndo+hash.String()), undo)
	})
}

func (s *BadgerStore) GetUndo(hash chainhash.Hash) ([]byte, bool, error) {
	var undo []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixUndo + hash.String()))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			undo = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return undo, undo != nil, nil
}

func (s *BadgerStore) DeleteUndo(hash chainhash.Hash) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixUndo + hash.String()))
	})
}

// DoSetChainHead writes a crash-recovery checkpoint naming the block about
// to become head before moving the tip pointer and height index, and clears
// the checkpoint once the move lands. If the process dies mid-move, the
// checkpoint left behind tells the next startup which reorg was interrupted
// (grounded on the teacher's PutReorgCheckpoint/GetReorgCheckpoint pair).
func (s *BadgerStore) DoSetChainHead(sb *StoredBlock) error {
	hash := sb.Header.Hash()
	data, err := s.encode(sb)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyReorgCkpt), hash[:])
	}); err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixBlock+hash.String()), data); err != nil {
			return err
		}
		if err := txn.Set(heightKey(sb.Height), hash[:]); err != nil {
			return err
		}
		return txn.Set([]byte(keyTip), hash[:])
	}); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyReorgCkpt))
	})
}

// NotSettingChainHead is the no-argument abort/rollback hook (spec §6/§7):
// called whenever a candidate block will not become (or remain) the chain
// head. BadgerStore's UTXO mutations are each their own committed
// transaction rather than a staged multi-block transaction log, so there is
// nothing left to roll back here; it exists to satisfy the mandatory call.
func (s *BadgerStore) NotSettingChainHead() error {
	return nil
}

func (s *BadgerStore) getUTXO(op wire.OutPoint) (wire.TxOutput, bool, error) {
	var out wire.TxOutput
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(utxoKey(op))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &out); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	return out, found, err
}

func (s *BadgerStore) putUTXO(op wire.OutPoint, out wire.TxOutput) error {
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(utxoKey(op), data)
	})
}

func (s *BadgerStore) deleteUTXO(op wire.OutPoint) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(utxoKey(op))
	})
}

// ConnectTransactions applies blk's transactions to the UTXO set, returning
// the undo data needed to reverse them.
func (s *BadgerStore) ConnectTransactions(blk wire.Block, height int64) ([]byte, error) {
	return connectTransactions(s, blk, height)
}

// DisconnectTransactions reverts sb's effect on the UTXO set using its
// stored undo data, returning ErrPruned if that data is gone.
func (s *BadgerStore) DisconnectTransactions(sb *StoredBlock) error {
	undo, ok, err := s.GetUndo(sb.Header.Hash())
	if err != nil {
		return err
	}
	if !ok {
		return ErrPruned
	}
	return disconnectTransactions(s, undo)
}

// PendingReorgCheckpoint returns the hash of a chain-head move that was
// interrupted mid-flight, if any, for the caller to resolve on startup.
func (s *BadgerStore) PendingReorgCheckpoint() (chainhash.Hash, bool, error) {
	var hash chainhash.Hash
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyReorgCkpt))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			copy(hash[:], val)
			found = true
			return nil
		})
	})
	return hash, found, err
}

// Rebuild reconstructs the height index by walking back from the current
// tip. Invoked by a caller after observing a Pruned condition; not part of
// the core add() path.
func (s *BadgerStore) Rebuild() error {
	head, ok, err := s.GetChainHead()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	log.Store.Info().Msg("rebuilding height index from chain head")
	cursor := head
	return s.db.Update(func(txn *badger.Txn) error {
		for cursor != nil {
			hash := cursor.Header.Hash()
			if err := txn.Set(heightKey(cursor.Height), hash[:]); err != nil {
				return err
			}
			parentHash := cursor.Header.PrevBlockHash()
			if parentHash.IsZero() {
				return nil
			}
			item, err := txn.Get([]byte(prefixBlock + parentHash.String()))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			var next *StoredBlock
			if err := item.Value(func(val []byte) error {
				decoded, err := s.decode(val)
				if err != nil {
					return err
				}
				next = decoded
				return nil
			}); err != nil {
				return err
			}
			cursor = next
		}
		return nil
	})
}
