package core

// forwarder.go – pulls prioritized transactions off the pool and pushes
// them toward the leader and/or into gossip.

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ForwardSender abstracts the network for the forwarder so tests can count
// sends without sockets.
type ForwardSender interface {
	SendToPeer(addr, topic string, data []byte) error
	Gossip(topic string, data []byte)
}

// ForwardConfig tunes the forwarding loop.
type ForwardConfig struct {
	LeaderAddr   string // optional direct push target
	Gossip       bool
	BatchSize    int
	PollInterval time.Duration
}

// DefaultForwardConfig mirrors the node defaults.
func DefaultForwardConfig() ForwardConfig {
	return ForwardConfig{Gossip: true, BatchSize: 64, PollInterval: 100 * time.Millisecond}
}

// TxForwarder drains the pool in priority order and forwards each
// transaction's canonical bytes under the "tx" topic.
type TxForwarder struct {
	pool   *TxPool
	net    ForwardSender
	cfg    ForwardConfig
	logger *logrus.Logger
}

// NewTxForwarder wires a forwarder over the pool.
func NewTxForwarder(pool *TxPool, net ForwardSender, cfg ForwardConfig, lg *logrus.Logger) *TxForwarder {
	return &TxForwarder{pool: pool, net: net, cfg: cfg, logger: lg}
}

// Run loops until ctx is cancelled, sleeping PollInterval when the pool is
// empty.
func (f *TxForwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("tx forwarder shutting down")
			return
		default:
		}

		txs := f.pool.PopPriority(f.cfg.BatchSize)
		if len(txs) == 0 {
			select {
			case <-ctx.Done():
				f.logger.Info("tx forwarder shutting down")
				return
			case <-time.After(f.cfg.PollInterval):
			}
			continue
		}

		for i := range txs {
			bin := txs[i].Serialized()
			if f.cfg.LeaderAddr != "" {
				if err := f.net.SendToPeer(f.cfg.LeaderAddr, TopicTx, bin); err != nil {
					f.logger.Debugf("forward to leader %s: %v", f.cfg.LeaderAddr, err)
				}
			}
			if f.cfg.Gossip {
				f.net.Gossip(TopicTx, bin)
			}
		}
	}
}
