package core

import (
	"testing"
	"time"
)

func TestPeerStoreAddListRemove(t *testing.T) {
	ps := NewPeerStore()
	ps.AddPeer("n1", "10.0.0.1:7000")
	ps.AddPeer("n2", "10.0.0.2:7000")

	if got := len(ps.ListPeers()); got != 2 {
		t.Fatalf("peers=%d want 2", got)
	}
	info, ok := ps.Get("n1")
	if !ok || info.Addr != "10.0.0.1:7000" {
		t.Fatalf("get n1: %+v ok=%v", info, ok)
	}

	ps.RemovePeer("n1")
	if _, ok := ps.Get("n1"); ok {
		t.Fatal("removed peer still present")
	}
}

func TestPeerStoreBan(t *testing.T) {
	ps := NewPeerStore()
	ps.AddPeer("n1", "addr")
	if ps.IsBanned("n1") {
		t.Fatal("fresh peer banned")
	}
	ps.BanPeer("n1", time.Hour)
	if !ps.IsBanned("n1") {
		t.Fatal("ban not applied")
	}
	info, _ := ps.Get("n1")
	if info.Healthy() {
		t.Fatal("banned peer reported healthy")
	}
	// unknown peers are not banned
	if ps.IsBanned("ghost") {
		t.Fatal("unknown peer banned")
	}
}

func TestPeerStoreGC(t *testing.T) {
	ps := NewPeerStore()
	ps.AddPeer("old", "a")
	time.Sleep(20 * time.Millisecond)
	ps.AddPeer("fresh", "b")

	ps.GC(10 * time.Millisecond)
	if _, ok := ps.Get("old"); ok {
		t.Fatal("stale peer survived gc")
	}
	if _, ok := ps.Get("fresh"); !ok {
		t.Fatal("fresh peer collected")
	}
}

func TestPeerStoreUpdateSeen(t *testing.T) {
	ps := NewPeerStore()
	ps.AddPeer("n1", "a")
	before, _ := ps.Get("n1")
	time.Sleep(5 * time.Millisecond)
	ps.UpdateSeen("n1")
	after, _ := ps.Get("n1")
	if !after.LastSeen.After(before.LastSeen) {
		t.Fatal("last seen not refreshed")
	}
}
