package core

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func newTestLedger(t *testing.T, retain uint64) (*Ledger, string) {
	t.Helper()
	dir := t.TempDir()
	led, err := NewLedger(NewMemKVStore(), dir, retain, testLogger())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return led, dir
}

func TestLedgerAppendAndGet(t *testing.T) {
	led, _ := newTestLedger(t, 0)

	if err := led.AppendBlock(1, []byte("one")); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := led.AppendBlock(5, []byte("five")); err != nil {
		t.Fatalf("append 5 (slots may skip): %v", err)
	}

	data, ok, err := led.GetBlock(5)
	if err != nil || !ok || !bytes.Equal(data, []byte("five")) {
		t.Fatalf("get 5: %q ok=%v err=%v", data, ok, err)
	}
	if _, ok, _ := led.GetBlock(3); ok {
		t.Fatal("missing slot returned a block")
	}
	if latest, ok := led.LatestSlot(); !ok || latest != 5 {
		t.Fatalf("latest=%d ok=%v", latest, ok)
	}
	if !led.HasSlot(1) || led.HasSlot(2) {
		t.Fatal("slot index wrong")
	}
}

func TestLedgerMonotonicAppend(t *testing.T) {
	led, _ := newTestLedger(t, 0)
	if err := led.AppendBlock(10, []byte("x")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := led.AppendBlock(9, []byte("y")); err == nil {
		t.Fatal("decreasing slot accepted")
	}
	if err := led.AppendBlock(10, []byte("y")); err == nil {
		t.Fatal("duplicate slot accepted")
	}
}

func TestLedgerReopenRebuildsIndex(t *testing.T) {
	kv := NewMemKVStore()
	dir := t.TempDir()
	led, err := NewLedger(kv, dir, 0, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := led.AppendBlock(3, []byte("三")); err != nil {
		t.Fatalf("append: %v", err)
	}

	reopened, err := NewLedger(kv, dir, 0, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if latest, ok := reopened.LatestSlot(); !ok || latest != 3 {
		t.Fatalf("index not rebuilt: latest=%d ok=%v", latest, ok)
	}
}

func TestLedgerAppendFinalized(t *testing.T) {
	led, _ := newTestLedger(t, 0)
	fb := FinalizedBlock{Slot: 2, BlockHash: []byte{0xAA}, Proposer: "v1"}
	if err := led.AppendFinalized(fb); err != nil {
		t.Fatalf("append finalized: %v", err)
	}
	data, ok, _ := led.GetBlock(2)
	if !ok || !bytes.Contains(data, []byte("v1")) {
		t.Fatalf("finalized record not stored: %q", data)
	}
}

func TestLedgerSnapshot(t *testing.T) {
	led, dir := newTestLedger(t, 0)
	if err := led.AppendBlock(7, []byte("snap-me")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := led.TakeSnapshot(7); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	path := filepath.Join(dir, "snapshots", "slot-7.snap")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}
	data, ok := led.LoadSnapshot(7)
	if !ok || !bytes.Equal(data, []byte("snap-me")) {
		t.Fatalf("load snapshot: %q ok=%v", data, ok)
	}
	if err := led.TakeSnapshot(99); err == nil {
		t.Fatal("snapshot of missing slot succeeded")
	}
}

func TestLedgerPrune(t *testing.T) {
	led, _ := newTestLedger(t, 10)
	for slot := Slot(1); slot <= 25; slot++ {
		if err := led.AppendBlock(slot, []byte{byte(slot)}); err != nil {
			t.Fatalf("append %d: %v", slot, err)
		}
	}
	removed, err := led.Prune()
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	// cutoff = 25 - 10 = 15: slots 1..14 go
	if removed != 14 {
		t.Fatalf("removed %d want 14", removed)
	}
	if led.HasSlot(14) {
		t.Fatal("pruned slot still indexed")
	}
	if _, ok, _ := led.GetBlock(14); ok {
		t.Fatal("pruned slot still stored")
	}
	if !led.HasSlot(15) {
		t.Fatal("retained slot missing")
	}
}
