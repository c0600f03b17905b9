package core

// txpool.go – in-memory transaction pool with fee-per-byte prioritisation,
// dedup, TTL expiry and LRU eviction.
//
// Lock ordering: the heap/LRU mutex is always taken before the entries lock.
// The heap may hold stale ids after Remove/GCTTL; they are filtered lazily on
// pop by checking membership in entries.

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrDuplicateTx rejects a transaction whose id is already pooled.
	ErrDuplicateTx = errors.New("duplicate tx")
	// ErrPoolFull rejects admission when the pool is full and no LRU victim
	// is available.
	ErrPoolFull = errors.New("pool full")
)

type txEntry struct {
	tx   Tx
	meta TxMeta
}

type heapItem struct {
	id       Hash
	priority float64
	seq      uint64
}

// txHeap is a max-heap on priority; insertion order breaks ties.
type txHeap []heapItem

func (h txHeap) Len() int { return len(h) }
func (h txHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h txHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *txHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *txHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TxPool admits validated transactions and serves them back in priority
// order to the leader and the forwarder.
type TxPool struct {
	entriesMu sync.RWMutex
	entries   map[Hash]*txEntry

	mu   sync.Mutex // guards heap, lru and seq as one unit
	heap txHeap
	lru  *lru.Cache[Hash, struct{}]
	seq  uint64

	maxSize int
	ttl     time.Duration
}

// NewTxPool builds a pool bounded to maxSize entries with the given TTL and
// LRU index capacity.
func NewTxPool(maxSize int, ttl time.Duration, lruCapacity int) (*TxPool, error) {
	if maxSize <= 0 {
		return nil, errors.New("txpool: max size must be positive")
	}
	idx, err := lru.New[Hash, struct{}](lruCapacity)
	if err != nil {
		return nil, err
	}
	return &TxPool{
		entries: make(map[Hash]*txEntry),
		lru:     idx,
		maxSize: maxSize,
		ttl:     ttl,
	}, nil
}

// Insert admits a transaction, evicting one LRU victim if the pool is full.
// Returns the recorded metadata or ErrDuplicateTx / ErrPoolFull.
func (tp *TxPool) Insert(tx Tx) (TxMeta, error) {
	id := tx.ID()
	now := time.Now()
	meta := TxMeta{
		ID:         id,
		InsertedAt: now,
		Priority:   tx.Priority(),
		LastSeen:   now,
		TTL:        tp.ttl,
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()

	tp.entriesMu.Lock()
	if _, dup := tp.entries[id]; dup {
		tp.entriesMu.Unlock()
		return TxMeta{}, ErrDuplicateTx
	}
	if len(tp.entries) >= tp.maxSize {
		victim, _, ok := tp.lru.RemoveOldest()
		if !ok {
			tp.entriesMu.Unlock()
			return TxMeta{}, ErrPoolFull
		}
		delete(tp.entries, victim)
	}
	tp.entries[id] = &txEntry{tx: tx, meta: meta}
	tp.entriesMu.Unlock()

	tp.seq++
	heap.Push(&tp.heap, heapItem{id: id, priority: meta.Priority, seq: tp.seq})
	tp.lru.Add(id, struct{}{})
	return meta, nil
}

// PopPriority removes and returns up to limit transactions in non-increasing
// priority order; insertion order breaks ties. Stale heap ids are skipped.
func (tp *TxPool) PopPriority(limit int) []Tx {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	var out []Tx
	for len(out) < limit && tp.heap.Len() > 0 {
		item := heap.Pop(&tp.heap).(heapItem)

		tp.entriesMu.Lock()
		e, ok := tp.entries[item.id]
		if ok {
			delete(tp.entries, item.id)
		}
		tp.entriesMu.Unlock()
		if !ok {
			continue // tombstone from Remove/GCTTL/eviction
		}
		tp.lru.Remove(item.id)
		out = append(out, e.tx)
	}
	return out
}

// Get returns the pooled transaction for id, if still present.
func (tp *TxPool) Get(id Hash) (Tx, bool) {
	tp.entriesMu.RLock()
	defer tp.entriesMu.RUnlock()
	e, ok := tp.entries[id]
	if !ok {
		return Tx{}, false
	}
	return e.tx, true
}

// Remove drops a transaction, e.g. after inclusion in a block. The heap
// keeps a tombstone that PopPriority filters out.
func (tp *TxPool) Remove(id Hash) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.entriesMu.Lock()
	delete(tp.entries, id)
	tp.entriesMu.Unlock()
	tp.lru.Remove(id)
}

// GCTTL drops every entry older than its TTL and returns how many were
// collected.
func (tp *TxPool) GCTTL() int {
	now := time.Now()

	tp.entriesMu.RLock()
	var expired []Hash
	for id, e := range tp.entries {
		if now.Sub(e.meta.InsertedAt) > e.meta.TTL {
			expired = append(expired, id)
		}
	}
	tp.entriesMu.RUnlock()

	for _, id := range expired {
		tp.Remove(id)
	}
	return len(expired)
}

// Len counts live entries.
func (tp *TxPool) Len() int {
	tp.entriesMu.RLock()
	defer tp.entriesMu.RUnlock()
	return len(tp.entries)
}
