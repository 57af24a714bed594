package blockstore

import (
	"sync"

	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// MemStore is an in-memory Accessor, grounded on the teacher's
// internal/storage/memory.go MemoryDB: a map-backed store with no
// persistence, used for tests and header-only ("SPV") callers that do not
// need the chain to survive a restart.
type MemStore struct {
	mu       sync.RWMutex
	blocks   map[chainhash.Hash]*StoredBlock
	byHeight map[int64]chainhash.Hash
	undo     map[chainhash.Hash][]byte
	utxos    map[wire.OutPoint]wire.TxOutput
	head     chainhash.Hash
	hasHead  bool
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		blocks:   make(map[chainhash.Hash]*StoredBlock),
		byHeight: make(map[int64]chainhash.Hash),
		undo:     make(map[chainhash.Hash][]byte),
		utxos:    make(map[wire.OutPoint]wire.TxOutput),
	}
}

func (s *MemStore) GetChainHead() (*StoredBlock, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasHead {
		return nil, false, nil
	}
	sb := s.blocks[s.head]
	return sb, sb != nil, nil
}

func (s *MemStore) Get(hash chainhash.Hash) (*StoredBlock, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sb, ok := s.blocks[hash]
	return sb, ok, nil
}

func (s *MemStore) HeaderByHeight(height int64) (wire.Header, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.byHeight[height]
	if !ok {
		return nil, false
	}
	sb, ok := s.blocks[hash]
	if !ok {
		return nil, false
	}
	return sb.Header, true
}

func (s *MemStore) Put(sb *StoredBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[sb.Header.Hash()] = sb
	return nil
}

func (s *MemStore) PutWithUndo(sb *StoredBlock, undo []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash := sb.Header.Hash()
	s.blocks[hash] = sb
	s.undo[hash] = undo
	return nil
}

func (s *MemStore) GetUndo(hash chainhash.Hash) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.undo[hash]
	return u, ok, nil
}

func (s *MemStore) DeleteUndo(hash chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.undo, hash)
	return nil
}

func (s *MemStore) DoSetChainHead(sb *StoredBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash := sb.Header.Hash()
	s.blocks[hash] = sb
	s.byHeight[sb.Height] = hash
	s.head = hash
	s.hasHead = true
	return nil
}

// NotSettingChainHead is the no-argument abort/rollback hook. MemStore's
// UTXO mutations happen directly inside ConnectTransactions/
// DisconnectTransactions rather than through a staged transaction log, so
// there is nothing to unwind here; it exists to satisfy the mandatory call
// spec §7 requires on every path that does not become the new chain head.
func (s *MemStore) NotSettingChainHead() error {
	return nil
}

func (s *MemStore) getUTXO(op wire.OutPoint) (wire.TxOutput, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.utxos[op]
	return out, ok, nil
}

func (s *MemStore) putUTXO(op wire.OutPoint, out wire.TxOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utxos[op] = out
	return nil
}

func (s *MemStore) deleteUTXO(op wire.OutPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.utxos, op)
	return nil
}

// ConnectTransactions applies blk's transactions to the UTXO set, returning
// the undo data needed to reverse them.
func (s *MemStore) ConnectTransactions(blk wire.Block, height int64) ([]byte, error) {
	return connectTransactions(s, blk, height)
}

// DisconnectTransactions reverts sb's effect on the UTXO set using its
// stored undo data, returning ErrPruned if that data is gone.
func (s *MemStore) DisconnectTransactions(sb *StoredBlock) error {
	undo, ok, err := s.GetUndo(sb.Header.Hash())
	if err != nil {
		return err
	}
	if !ok {
		return ErrPruned
	}
	return disconnectTransactions(s, undo)
}

// Rebuild reconstructs byHeight by walking every stored block's ancestry
// from the current head back to genesis. A MemStore never loses its height
// index in practice (nothing persists across restarts to corrupt), so this
// mainly exists to satisfy Accessor for tests that exercise the Pruned path.
func (s *MemStore) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasHead {
		return nil
	}
	cursor := s.blocks[s.head]
	byHeight := make(map[int64]chainhash.Hash)
	for cursor != nil {
		hash := cursor.Header.Hash()
		byHeight[cursor.Height] = hash
		parentHash := cursor.Header.PrevBlockHash()
		if parentHash.IsZero() {
			break
		}
		cursor = s.blocks[parentHash]
	}
	s.byHeight = byHeight
	return nil
}
