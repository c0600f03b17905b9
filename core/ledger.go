package core

// ledger.go – append-only store of finalized blocks over the KV
// abstraction, plus snapshots and slot-retention pruning.
//
// Block keys are the 8-byte big-endian slot number. The ledger owns its KV
// engine; account state lives in a separate store.

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Ledger persists the finalized block sequence.
type Ledger struct {
	mu      sync.RWMutex
	kv      KVStore
	slots   []Slot // sorted ascending
	snapDir string
	retain  uint64
	logger  *logrus.Logger
}

// NewLedger opens a ledger over the KV engine, rebuilding the slot index
// from existing keys. dataDir hosts the snapshots directory; Prune keeps the
// blocks whose slot is at most retain behind the latest (0 disables pruning).
func NewLedger(kv KVStore, dataDir string, retain uint64, lg *logrus.Logger) (*Ledger, error) {
	snapDir := filepath.Join(dataDir, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger snapshots dir: %w", err)
	}

	l := &Ledger{kv: kv, snapDir: snapDir, retain: retain, logger: lg}

	pairs, err := kv.ScanPrefix(nil)
	if err != nil {
		return nil, fmt.Errorf("ledger index scan: %w", err)
	}
	for _, p := range pairs {
		if len(p.Key) != 8 {
			continue
		}
		l.slots = append(l.slots, binary.BigEndian.Uint64(p.Key))
	}
	sort.Slice(l.slots, func(i, j int) bool { return l.slots[i] < l.slots[j] })
	if n := len(l.slots); n > 0 {
		lg.Infof("ledger opened with %d blocks, latest slot %d", n, l.slots[n-1])
	}
	return l, nil
}

func slotKey(slot Slot) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], slot)
	return key[:]
}

// AppendBlock stores block bytes for a slot. Slots may skip but never
// decrease; re-appending an existing or older slot is an error.
func (l *Ledger) AppendBlock(slot Slot, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.slots); n > 0 && slot <= l.slots[n-1] {
		return fmt.Errorf("non-monotonic append: slot %d after %d", slot, l.slots[n-1])
	}
	if err := l.kv.Put(slotKey(slot), data); err != nil {
		return fmt.Errorf("append block %d: %w", slot, err)
	}
	l.slots = append(l.slots, slot)
	return nil
}

// AppendFinalized encodes and appends a finalized block record.
func (l *Ledger) AppendFinalized(fb FinalizedBlock) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return err
	}
	return l.AppendBlock(fb.Slot, data)
}

// GetBlock returns the stored bytes for a slot.
func (l *Ledger) GetBlock(slot Slot) ([]byte, bool, error) {
	return l.kv.Get(slotKey(slot))
}

// HasSlot reports whether a block exists at the slot.
func (l *Ledger) HasSlot(slot Slot) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := sort.Search(len(l.slots), func(i int) bool { return l.slots[i] >= slot })
	return i < len(l.slots) && l.slots[i] == slot
}

// LatestSlot returns the highest stored slot.
func (l *Ledger) LatestSlot() (Slot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.slots) == 0 {
		return 0, false
	}
	return l.slots[len(l.slots)-1], true
}

// Len counts stored blocks.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.slots)
}

//---------------------------------------------------------------------
// Snapshots
//---------------------------------------------------------------------

func (l *Ledger) snapPath(slot Slot) string {
	return filepath.Join(l.snapDir, fmt.Sprintf("slot-%d.snap", slot))
}

// TakeSnapshot copies the block at slot into snapshots/slot-{n}.snap.
func (l *Ledger) TakeSnapshot(slot Slot) error {
	data, ok, err := l.GetBlock(slot)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("snapshot: no block at slot %d", slot)
	}
	return os.WriteFile(l.snapPath(slot), data, 0o644)
}

// LoadSnapshot reads a snapshot taken earlier.
func (l *Ledger) LoadSnapshot(slot Slot) ([]byte, bool) {
	data, err := os.ReadFile(l.snapPath(slot))
	if err != nil {
		return nil, false
	}
	return data, true
}

//---------------------------------------------------------------------
// Pruning
//---------------------------------------------------------------------

// Prune deletes blocks older than retain slots behind the latest, returning
// how many were removed.
func (l *Ledger) Prune() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.slots)
	if l.retain == 0 || n == 0 {
		return 0, nil
	}
	latest := l.slots[n-1]
	if latest < l.retain {
		return 0, nil
	}
	cutoff := latest - l.retain

	batch := l.kv.Batch()
	idx := 0
	for idx < n && l.slots[idx] < cutoff {
		batch.Delete(slotKey(l.slots[idx]))
		idx++
	}
	if idx == 0 {
		return 0, nil
	}
	if err := l.kv.WriteBatch(batch); err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	l.slots = append([]Slot(nil), l.slots[idx:]...)
	l.logger.Infof("pruned %d slots below %d", idx, cutoff)
	return idx, nil
}
