package core

// gossip.go – dedup-filtered fan-out. The dedup set is keyed by the
// serialized payload bytes, so a re-broadcast of an identical message dies
// here instead of storming the network.

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// Fanner delivers a message to up to fanout live peers; the connection
// manager implements it.
type Fanner interface {
	BroadcastSample(msg WireMessage, fanout int) int
}

// Gossiper forwards payloads it has not seen before to a random sample of
// peers.
type Gossiper struct {
	mu     sync.Mutex
	dedup  *lru.Cache[string, struct{}]
	net    Fanner
	fanout int
	logger *logrus.Logger
}

// NewGossiper builds a gossiper with the given dedup capacity and fanout.
func NewGossiper(net Fanner, dedupCapacity, fanout int, lg *logrus.Logger) (*Gossiper, error) {
	cache, err := lru.New[string, struct{}](dedupCapacity)
	if err != nil {
		return nil, err
	}
	return &Gossiper{dedup: cache, net: net, fanout: fanout, logger: lg}, nil
}

// Broadcast forwards msg to up to fanout peers unless it was already seen.
// Returns false on a duplicate.
func (g *Gossiper) Broadcast(msg WireMessage) bool {
	bin, err := EncodeWireMessage(&msg)
	if err != nil {
		g.logger.Debugf("gossip serialize failed: %v", err)
		return false
	}
	key := string(bin)

	g.mu.Lock()
	if g.dedup.Contains(key) {
		g.mu.Unlock()
		g.logger.Debug("gossip: duplicate payload, skipping")
		return false
	}
	g.dedup.Add(key, struct{}{})
	g.mu.Unlock()

	g.net.BroadcastSample(msg, g.fanout)
	return true
}

// Seen reports whether an identical message already passed through.
func (g *Gossiper) Seen(msg WireMessage) bool {
	bin, err := EncodeWireMessage(&msg)
	if err != nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dedup.Contains(string(bin))
}
