package observer

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/klingnet-chain/ledgercore/internal/log"
	"github.com/klingnet-chain/ledgercore/pkg/chainhash"
	"github.com/klingnet-chain/ledgercore/pkg/wire"
)

// DefaultMaxAsyncDispatch bounds how many asynchronous listener calls may
// run concurrently when the caller does not specify a limit.
const DefaultMaxAsyncDispatch = 32

// Dispatcher holds the chain manager's registered listeners and delivers
// notifications to them in registration-priority order, synchronously or
// asynchronously per listener registration.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
}

// NewDispatcher builds a Dispatcher bounding concurrent asynchronous
// listener calls to maxAsync.
func NewDispatcher(maxAsync int64) *Dispatcher {
	if maxAsync <= 0 {
		maxAsync = DefaultMaxAsyncDispatch
	}
	return &Dispatcher{sem: semaphore.NewWeighted(maxAsync)}
}

// Add registers l and returns its ID for later removal.
func (d *Dispatcher) Add(l Listener) uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
	sort.SliceStable(d.listeners, func(i, j int) bool {
		return d.listeners[i].Priority < d.listeners[j].Priority
	})
	return l.ID
}

// Remove unregisters the listener with the given ID, if present.
func (d *Dispatcher) Remove(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, l := range d.listeners {
		if l.ID == id {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) snapshot() []Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Listener, len(d.listeners))
	copy(out, d.listeners)
	return out
}

// DispatchBlock delivers every relevant transaction in txs to each listener
// via ReceiveFromBlock, in order, each with its own per-listener
// relativityOffset counter starting at 0 for this block, then calls
// NewBestBlock once if blockType is BlockTypeBestChain.
func (d *Dispatcher) DispatchBlock(header wire.Header, txs []wire.Transaction, blockType BlockType) {
	for _, l := range d.snapshot() {
		l := l
		d.deliver(l, func() {
			offset := 0
			for _, tx := range txs {
				if l.IsRelevant != nil && !l.IsRelevant(tx) {
					continue
				}
				if l.ReceiveFromBlock != nil {
					l.ReceiveFromBlock(tx, header.CloneAsHeader(), blockType, offset)
				}
				offset++
			}
			if l.NewBestBlock != nil && blockType == BlockTypeBestChain {
				l.NewBestBlock(header.CloneAsHeader())
			}
		})
	}
}

// DispatchFiltered delivers matched transaction hashes from a header-only
// ("SPV") block via TransactionIsInBlock, with the same per-listener
// relativityOffset sequence, then calls NewBestBlock once if blockType is
// BlockTypeBestChain.
func (d *Dispatcher) DispatchFiltered(header wire.Header, txHashes []chainhash.Hash, blockType BlockType) {
	for _, l := range d.snapshot() {
		l := l
		d.deliver(l, func() {
			for offset, hash := range txHashes {
				if l.TransactionIsInBlock != nil {
					l.TransactionIsInBlock(hash, header.CloneAsHeader(), blockType, offset)
				}
			}
			if l.NewBestBlock != nil && blockType == BlockTypeBestChain {
				l.NewBestBlock(header.CloneAsHeader())
			}
		})
	}
}

// DispatchDisconnected notifies every listener that header's block has been
// reverted off the best chain during a reorg.
func (d *Dispatcher) DispatchDisconnected(header wire.Header) {
	for _, l := range d.snapshot() {
		l := l
		d.deliver(l, func() {
			if l.BlockDisconnected != nil {
				l.BlockDisconnected(header.CloneAsHeader())
			}
		})
	}
}

// DispatchReorganized notifies every listener that a reorg completed, after
// DispatchBlock/DispatchFiltered/DispatchDisconnected have already run for
// every block it touched.
func (d *Dispatcher) DispatchReorganized(splitHeight, newTipHeight int64) {
	for _, l := range d.snapshot() {
		l := l
		d.deliver(l, func() {
			if l.Reorganized != nil {
				l.Reorganized(splitHeight, newTipHeight)
			}
		})
	}
}

// deliver runs fn inline for a synchronous listener, or as a bounded
// goroutine for an asynchronous one.
func (d *Dispatcher) deliver(l Listener, fn func()) {
	if !l.Async {
		d.invoke(l, fn)
		return
	}
	if err := d.sem.Acquire(context.Background(), 1); err != nil {
		log.Observer.Warn().Err(err).Msg("failed to acquire async dispatch slot, running inline")
		d.invoke(l, fn)
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.invoke(l, fn)
	}()
}

func (d *Dispatcher) invoke(l Listener, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Observer.Error().Interface("panic", r).Str("listener", l.ID.String()).Msg("listener panicked")
		}
	}()
	fn()
}

// Wait blocks until every in-flight asynchronous dispatch has returned.
// Intended for tests and clean shutdown, not the hot path.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
