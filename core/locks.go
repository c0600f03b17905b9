package core

// locks.go – sharded per-account lock manager for parallel execution.
//
// Every caller acquires its key set in the same total (lexicographic) order,
// so no lock cycle can form between concurrent acquirers. The shard mutex is
// held only long enough to fetch or create the per-key lock; the per-key
// lock itself is awaited outside it.

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultLockShards is the shard count used by the node wiring.
const DefaultLockShards = 256

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type lockShard struct {
	mu sync.Mutex
	m  map[AccountKey]*keyLock
}

// AccountLocks hands out exclusive multi-key guards over account keys.
type AccountLocks struct {
	shards []*lockShard
	mask   uint64
}

// NewAccountLocks builds a manager with the given shard count, rounded up to
// the next power of two.
func NewAccountLocks(shardCount int) *AccountLocks {
	n := 1
	for n < shardCount {
		n <<= 1
	}
	shards := make([]*lockShard, n)
	for i := range shards {
		shards[i] = &lockShard{m: make(map[AccountKey]*keyLock)}
	}
	return &AccountLocks{shards: shards, mask: uint64(n - 1)}
}

func (al *AccountLocks) shardFor(key AccountKey) *lockShard {
	return al.shards[xxhash.Sum64String(key)&al.mask]
}

// LockGuard holds a batch of per-key locks; Release frees them in reverse
// acquisition order.
type LockGuard struct {
	locks *AccountLocks
	keys  []AccountKey
	held  []*keyLock
	once  sync.Once
}

// Len reports how many keys the guard holds.
func (g *LockGuard) Len() int { return len(g.held) }

// Release unlocks every held key and drops unreferenced lock entries from
// their shard maps. Safe to call more than once.
func (g *LockGuard) Release() {
	g.once.Do(func() {
		for i := len(g.held) - 1; i >= 0; i-- {
			kl := g.held[i]
			key := g.keys[i]
			kl.mu.Unlock()

			shard := g.locks.shardFor(key)
			shard.mu.Lock()
			kl.refs--
			if kl.refs == 0 {
				delete(shard.m, key)
			}
			shard.mu.Unlock()
		}
	})
}

// Acquire blocks until every key in the set is exclusively held. Keys are
// deduplicated and sorted before acquisition.
func (al *AccountLocks) Acquire(keys []AccountKey) *LockGuard {
	sorted := dedupSortKeys(keys)
	guard := &LockGuard{locks: al, keys: sorted, held: make([]*keyLock, 0, len(sorted))}
	for _, key := range sorted {
		shard := al.shardFor(key)
		shard.mu.Lock()
		kl, ok := shard.m[key]
		if !ok {
			kl = &keyLock{}
			shard.m[key] = kl
		}
		kl.refs++
		shard.mu.Unlock()

		kl.mu.Lock()
		guard.held = append(guard.held, kl)
	}
	return guard
}

func dedupSortKeys(keys []AccountKey) []AccountKey {
	out := make([]AccountKey, 0, len(keys))
	seen := make(map[AccountKey]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
