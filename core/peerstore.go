package core

// peerstore.go – peer metadata: addresses, liveness and bans.

import (
	"sync"
	"time"
)

// PeerStore tracks known peers keyed by node id.
type PeerStore struct {
	mu sync.RWMutex
	m  map[string]PeerInfo
}

// NewPeerStore returns an empty store.
func NewPeerStore() *PeerStore {
	return &PeerStore{m: make(map[string]PeerInfo)}
}

// AddPeer records (or refreshes) a peer.
func (ps *PeerStore) AddPeer(nodeID, addr string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	info := ps.m[nodeID]
	info.NodeID = nodeID
	info.Addr = addr
	info.LastSeen = time.Now()
	ps.m[nodeID] = info
}

// UpdateSeen refreshes a peer's liveness timestamp.
func (ps *PeerStore) UpdateSeen(nodeID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if info, ok := ps.m[nodeID]; ok {
		info.LastSeen = time.Now()
		ps.m[nodeID] = info
	}
}

// RemovePeer forgets a peer.
func (ps *PeerStore) RemovePeer(nodeID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.m, nodeID)
}

// Get returns the metadata for a node id.
func (ps *PeerStore) Get(nodeID string) (PeerInfo, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	info, ok := ps.m[nodeID]
	return info, ok
}

// ListPeers returns all known peers.
func (ps *PeerStore) ListPeers() []PeerInfo {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]PeerInfo, 0, len(ps.m))
	for _, info := range ps.m {
		out = append(out, info)
	}
	return out
}

// GC drops peers not seen within timeout.
func (ps *PeerStore) GC(timeout time.Duration) {
	cutoff := time.Now().Add(-timeout)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for id, info := range ps.m {
		if info.LastSeen.Before(cutoff) {
			delete(ps.m, id)
		}
	}
}

// BanPeer marks a peer unusable for the given duration.
func (ps *PeerStore) BanPeer(nodeID string, d time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if info, ok := ps.m[nodeID]; ok {
		info.BanUntil = time.Now().Add(d)
		ps.m[nodeID] = info
	}
}

// IsBanned reports whether the peer is currently banned.
func (ps *PeerStore) IsBanned(nodeID string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	info, ok := ps.m[nodeID]
	return ok && !info.Healthy()
}
