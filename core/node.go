package core

// node.go – subsystem wiring and lifecycle. The node owns every component,
// adapts the consensus engine and forwarder onto the connection manager,
// and routes inbound frames by topic.

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// NodeConfig collects everything the node needs to start.
type NodeConfig struct {
	DataDir        string
	BindAddr       string
	BootstrapPeers []string

	ProtocolVersion uint16
	Fanout          int
	DedupCapacity   int

	TickMS        int
	PoHIterations int
	VoteWeighting string // "per-vote" | "by-stake"

	PoolMaxSize     int
	PoolTTL         time.Duration
	PoolLRUCapacity int
	BatchSize       int
	PollInterval    time.Duration

	StorageEngine string // "mem" | "fs"
	RetainSlots   uint64

	// LeaderAddr, when set, makes the forwarder push transactions straight
	// to that peer in addition to gossip.
	LeaderAddr string
}

// Node wires the pool, executor, consensus engine, ledger and peer layer.
type Node struct {
	cfg    NodeConfig
	logger *logrus.Logger

	keypair   *Keypair
	pool      *TxPool
	cache     *AccountCache
	locks     *AccountLocks
	executor  *Executor
	ingestor  *TxIngestor
	engine    *ConsensusEngine
	manager   *ConnectionManager
	gossiper  *Gossiper
	forwarder *TxForwarder
	ledger    *Ledger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

//---------------------------------------------------------------------
// Network adapters
//---------------------------------------------------------------------

// consensusNet adapts the connection manager to the engine's NetworkSender.
// Consensus traffic goes to every live connection.
type consensusNet struct {
	manager *ConnectionManager
	logger  *logrus.Logger
}

func (n *consensusNet) SendProposal(p BlockProposal) {
	data, err := json.Marshal(p)
	if err != nil {
		n.logger.Errorf("encode proposal: %v", err)
		return
	}
	n.manager.Broadcast(PayloadMessage(TopicProposal, data))
}

func (n *consensusNet) SendVote(v Vote) {
	data, err := json.Marshal(v)
	if err != nil {
		n.logger.Errorf("encode vote: %v", err)
		return
	}
	n.manager.Broadcast(PayloadMessage(TopicVote, data))
}

// forwardNet adapts the manager + gossiper to the forwarder.
type forwardNet struct {
	manager  *ConnectionManager
	gossiper *Gossiper
}

func (n *forwardNet) SendToPeer(addr, topic string, data []byte) error {
	return n.manager.SendTo(addr, PayloadMessage(topic, data))
}

func (n *forwardNet) Gossip(topic string, data []byte) {
	n.gossiper.Broadcast(PayloadMessage(topic, data))
}

//---------------------------------------------------------------------
// Construction
//---------------------------------------------------------------------

// NewNode builds every subsystem from cfg. Nothing runs until Start.
func NewNode(cfg NodeConfig, lg *logrus.Logger) (*Node, error) {
	kp, err := LoadOrCreateKeypair(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("node identity: %w", err)
	}

	accountKV, err := OpenKVStore(cfg.StorageEngine, filepath.Join(cfg.DataDir, "accounts"))
	if err != nil {
		return nil, err
	}
	ledgerKV, err := OpenKVStore(cfg.StorageEngine, filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return nil, err
	}

	cache := NewAccountCache(NewKVAccountStore(accountKV))
	locks := NewAccountLocks(DefaultLockShards)
	executor := NewExecutor(cache, locks, lg)

	pool, err := NewTxPool(cfg.PoolMaxSize, cfg.PoolTTL, cfg.PoolLRUCapacity)
	if err != nil {
		return nil, err
	}
	ingestor := NewTxIngestor(pool, NewBalanceValidator(cache))

	ledger, err := NewLedger(ledgerKV, cfg.DataDir, cfg.RetainSlots, lg)
	if err != nil {
		return nil, err
	}

	manager := NewConnectionManager(kp, cfg.ProtocolVersion, NewPeerStore(), lg)
	gossiper, err := NewGossiper(manager, cfg.DedupCapacity, cfg.Fanout, lg)
	if err != nil {
		return nil, err
	}

	engine := NewConsensusEngine(kp.NodeID(), cfg.TickMS, cfg.PoHIterations, &consensusNet{manager: manager, logger: lg}, lg)
	if cfg.VoteWeighting == "by-stake" {
		engine.SetVoteWeighting(WeightByStake)
	}

	n := &Node{
		cfg:      cfg,
		logger:   lg,
		keypair:  kp,
		pool:     pool,
		cache:    cache,
		locks:    locks,
		executor: executor,
		ingestor: ingestor,
		engine:   engine,
		manager:  manager,
		gossiper: gossiper,
		ledger:   ledger,
	}

	fwdCfg := ForwardConfig{
		LeaderAddr:   cfg.LeaderAddr,
		Gossip:       true,
		BatchSize:    cfg.BatchSize,
		PollInterval: cfg.PollInterval,
	}
	n.forwarder = NewTxForwarder(pool, &forwardNet{manager: manager, gossiper: gossiper}, fwdCfg, lg)

	engine.SetOnProposed(n.executeLeaderBatch)
	engine.SetOnFinalized(func(fb FinalizedBlock) {
		if err := ledger.AppendFinalized(fb); err != nil {
			lg.Errorf("ledger append slot %d: %v", fb.Slot, err)
		}
	})

	return n, nil
}

// NodeID returns the local identity (hex public key).
func (n *Node) NodeID() string { return n.keypair.NodeID() }

// Ingestor exposes transaction admission for the RPC layer.
func (n *Node) Ingestor() *TxIngestor { return n.ingestor }

// Pool exposes the transaction pool.
func (n *Node) Pool() *TxPool { return n.pool }

// Cache exposes the account cache.
func (n *Node) Cache() *AccountCache { return n.cache }

// Engine exposes the consensus engine.
func (n *Node) Engine() *ConsensusEngine { return n.engine }

// Ledger exposes the finalized block store.
func (n *Node) Ledger() *Ledger { return n.ledger }

// Peers exposes the peer metadata store.
func (n *Node) Peers() *PeerStore { return n.manager.Peerstore() }

//---------------------------------------------------------------------
// Facade used by the RPC layer
//---------------------------------------------------------------------

// Snapshot returns the consensus state snapshot.
func (n *Node) Snapshot() ConsensusSnapshot { return n.engine.Snapshot() }

// SubmitTx validates and admits a transaction.
func (n *Node) SubmitTx(tx Tx) (IngestResult, error) { return n.ingestor.Ingest(tx) }

// GetBlock returns the ledger bytes stored at slot.
func (n *Node) GetBlock(slot Slot) ([]byte, bool, error) { return n.ledger.GetBlock(slot) }

// GetAccount returns the account at key, if any.
func (n *Node) GetAccount(key AccountKey) (Account, bool, error) { return n.cache.Get(key) }

// MempoolSize counts pooled transactions.
func (n *Node) MempoolSize() int { return n.pool.Len() }

// PeerList returns known peer metadata.
func (n *Node) PeerList() []PeerInfo { return n.manager.Peerstore().ListPeers() }

//---------------------------------------------------------------------
// Lifecycle
//---------------------------------------------------------------------

// Start launches the listener, bootstrap dials, dispatcher, consensus loop,
// forwarder and pool GC. It returns once the listener is bound.
func (n *Node) Start(ctx context.Context) error {
	ctx, n.cancel = context.WithCancel(ctx)

	if err := n.manager.StartListener(ctx, n.cfg.BindAddr); err != nil {
		return err
	}
	for _, peer := range n.cfg.BootstrapPeers {
		n.manager.ConnectPeer(ctx, peer)
	}

	// A node is always a validator of record for itself; real stake
	// registration arrives through chain state at integration time.
	n.engine.RegisterValidator(n.keypair.NodeID(), 1)
	n.engine.Start(ctx)

	n.wg.Add(3)
	go func() {
		defer n.wg.Done()
		n.dispatch(ctx)
	}()
	go func() {
		defer n.wg.Done()
		n.forwarder.Run(ctx)
	}()
	go func() {
		defer n.wg.Done()
		n.poolGC(ctx)
	}()

	n.logger.Infof("node %s started on %s", shortID(n.keypair.NodeID()), n.cfg.BindAddr)
	return nil
}

// Stop cancels every task, tears down connections and flushes state.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.manager.Close()
	n.wg.Wait()
	if err := n.cache.Flush(); err != nil {
		n.logger.Errorf("final cache flush: %v", err)
	}
	n.logger.Info("node stopped")
}

//---------------------------------------------------------------------
// Inbound routing
//---------------------------------------------------------------------

func (n *Node) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-n.manager.Inbound():
			n.route(in)
		}
	}
}

func (n *Node) route(in InboundMsg) {
	switch in.Msg.Kind {
	case MsgPing:
		if err := n.manager.SendTo(in.Addr, WireMessage{Kind: MsgPong}); err != nil {
			n.logger.Debugf("pong to %s: %v", in.Addr, err)
		}
	case MsgPong:
		// liveness only
	case MsgHandshake:
		// renewed identity announcement mid-stream; refresh liveness
		if in.Msg.Handshake != nil {
			n.manager.Peerstore().UpdateSeen(in.Msg.Handshake.NodeID)
		}
	case MsgPayload:
		n.routePayload(in)
	}
}

func (n *Node) routePayload(in InboundMsg) {
	switch in.Msg.Topic {
	case TopicTx:
		tx, err := DecodeTx(in.Msg.Data)
		if err != nil {
			n.logger.Debugf("bad tx from %s: %v", in.Addr, err)
			return
		}
		res, err := n.ingestor.Ingest(*tx)
		if err != nil {
			n.logger.Warnf("tx ingest: %v", err)
			return
		}
		if !res.Accepted {
			n.logger.Debugf("tx rejected: %s", res.Reason)
		}
	case TopicProposal:
		var p BlockProposal
		if err := json.Unmarshal(in.Msg.Data, &p); err != nil {
			n.logger.Debugf("bad proposal from %s: %v", in.Addr, err)
			return
		}
		n.engine.HandleProposal(p)
	case TopicVote:
		var v Vote
		if err := json.Unmarshal(in.Msg.Data, &v); err != nil {
			n.logger.Debugf("bad vote from %s: %v", in.Addr, err)
			return
		}
		n.engine.HandleVote(v)
	default:
		n.logger.Debugf("unroutable topic %q from %s", in.Msg.Topic, in.Addr)
	}
}

//---------------------------------------------------------------------
// Background work
//---------------------------------------------------------------------

// executeLeaderBatch drains the pool head and applies it when the local
// node wins a slot.
func (n *Node) executeLeaderBatch(p BlockProposal) {
	txs := n.pool.PopPriority(n.cfg.BatchSize)
	if len(txs) == 0 {
		return
	}
	receipts := n.executor.ExecuteBatch(txs)
	failed := 0
	for i := range receipts {
		if !receipts[i].Success {
			failed++
		}
	}
	n.logger.Infof("slot %d: executed %d txs (%d failed)", p.Slot, len(receipts), failed)
}

func (n *Node) poolGC(ctx context.Context) {
	interval := n.cfg.PoolTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := n.pool.GCTTL(); dropped > 0 {
				n.logger.Debugf("pool gc dropped %d expired txs", dropped)
			}
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
