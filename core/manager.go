package core

// manager.go – connection lifecycle: accept loop, outbound reconnect with
// exponential backoff, handshake-gated admission, broadcast over live
// per-connection senders, and fan-in of every connection's inbound frames
// into one channel consumed by the node dispatcher.

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// inboundCap sizes the fan-in channel; readers block when the
	// dispatcher falls behind, which back-pressures the sockets.
	inboundCap = 4096

	reconnectBase = 500 * time.Millisecond
	reconnectCap  = 30 * time.Second

	handshakeTimeout = 5 * time.Second
)

// ConnectionManager owns every live connection and the listener.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	inbound   chan InboundMsg
	peerstore *PeerStore
	signer    Signer
	protocol  uint16
	features  []string
	logger    *logrus.Logger

	listener net.Listener
	closed   chan struct{}
	once     sync.Once
}

// NewConnectionManager wires a manager around the node identity.
func NewConnectionManager(signer Signer, protocolVersion uint16, ps *PeerStore, lg *logrus.Logger) *ConnectionManager {
	return &ConnectionManager{
		conns:     make(map[string]*Connection),
		inbound:   make(chan InboundMsg, inboundCap),
		peerstore: ps,
		signer:    signer,
		protocol:  protocolVersion,
		features:  []string{"core/1"},
		logger:    lg,
		closed:    make(chan struct{}),
	}
}

// Inbound is the fan-in channel carrying every connection's decoded frames.
func (cm *ConnectionManager) Inbound() <-chan InboundMsg { return cm.inbound }

// Peerstore exposes the peer metadata store.
func (cm *ConnectionManager) Peerstore() *PeerStore { return cm.peerstore }

// StartListener binds and accepts until ctx is cancelled. Each accepted
// stream must pass the handshake before it joins the active set.
func (cm *ConnectionManager) StartListener(ctx context.Context, bindAddr string) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", bindAddr, err)
	}
	cm.listener = ln
	cm.logger.Infof("listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		cm.Close()
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-cm.closed:
					return
				default:
				}
				cm.logger.Warnf("accept failed: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			go func() {
				if _, err := cm.admit(conn); err != nil {
					cm.logger.Warnf("rejecting %s: %v", conn.RemoteAddr(), err)
					_ = conn.Close()
				}
			}()
		}
	}()
	return nil
}

// ConnectPeer dials addr with exponential backoff, re-establishing the
// connection whenever it drops, until ctx is cancelled.
func (cm *ConnectionManager) ConnectPeer(ctx context.Context, addr string) {
	go func() {
		backoff := reconnectBase
		for {
			conn, err := net.DialTimeout("tcp", addr, handshakeTimeout)
			if err == nil {
				var c *Connection
				c, err = cm.admit(conn)
				if err != nil {
					_ = conn.Close()
				} else {
					cm.logger.Infof("connected to peer %s", addr)
					backoff = reconnectBase
					select {
					case <-c.Done():
						cm.logger.Infof("peer %s disconnected", addr)
					case <-ctx.Done():
						return
					case <-cm.closed:
						return
					}
				}
			}
			if err != nil {
				cm.logger.Warnf("connect %s: %v", addr, err)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			case <-cm.closed:
				return
			}
			if backoff *= 2; backoff > reconnectCap {
				backoff = reconnectCap
			}
		}
	}()
}

// admit performs the signed-nonce handshake on the raw stream and, on
// success, spawns the connection and records the peer.
func (cm *ConnectionManager) admit(conn net.Conn) (*Connection, error) {
	peerID, err := cm.exchangeHandshake(conn)
	if err != nil {
		return nil, err
	}
	if cm.peerstore.IsBanned(peerID) {
		return nil, fmt.Errorf("peer %s is banned", peerID)
	}

	c := SpawnConnection(conn, peerID, cm.inbound, cm.logger)
	addr := c.PeerAddr()

	cm.mu.Lock()
	if old, ok := cm.conns[addr]; ok {
		old.Close()
	}
	cm.conns[addr] = c
	cm.mu.Unlock()

	cm.peerstore.AddPeer(peerID, addr)

	go func() {
		<-c.Done()
		cm.mu.Lock()
		if cm.conns[addr] == c {
			delete(cm.conns, addr)
		}
		cm.mu.Unlock()
	}()
	return c, nil
}

func (cm *ConnectionManager) exchangeHandshake(conn net.Conn) (string, error) {
	deadline := time.Now().Add(handshakeTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return "", err
	}
	defer conn.SetDeadline(time.Time{})

	ours, err := CreateHandshake(cm.signer, cm.protocol, cm.features)
	if err != nil {
		return "", err
	}
	msg := HandshakeMessage(ours)
	bin, err := EncodeWireMessage(&msg)
	if err != nil {
		return "", err
	}
	if err := WriteFrame(conn, bin); err != nil {
		return "", fmt.Errorf("send handshake: %w", err)
	}

	payload, err := ReadFrame(conn)
	if err != nil {
		return "", fmt.Errorf("read handshake: %w", err)
	}
	theirs, err := DecodeWireMessage(payload)
	if err != nil {
		return "", fmt.Errorf("decode handshake: %w", err)
	}
	if theirs.Kind != MsgHandshake {
		return "", fmt.Errorf("expected handshake, got %q", theirs.Kind)
	}
	if err := VerifyHandshake(theirs.Handshake); err != nil {
		return "", err
	}
	return theirs.Handshake.NodeID, nil
}

// Broadcast best-effort sends msg to every live connection. Full queues are
// logged and skipped, never block the caller.
func (cm *ConnectionManager) Broadcast(msg WireMessage) {
	for _, c := range cm.snapshot() {
		if !c.TrySend(msg) {
			cm.logger.Debugf("broadcast: dropping for %s (queue full or closed)", c.PeerAddr())
		}
	}
}

// BroadcastSample sends msg to up to fanout randomly chosen connections and
// reports how many accepted it.
func (cm *ConnectionManager) BroadcastSample(msg WireMessage, fanout int) int {
	if fanout <= 0 {
		return 0
	}
	conns := cm.snapshot()
	if fanout < len(conns) {
		rand.Shuffle(len(conns), func(i, j int) { conns[i], conns[j] = conns[j], conns[i] })
		conns = conns[:fanout]
	}
	sent := 0
	for _, c := range conns {
		if c.TrySend(msg) {
			sent++
		}
	}
	return sent
}

// SendTo queues msg for the connection at addr, awaiting queue capacity.
func (cm *ConnectionManager) SendTo(addr string, msg WireMessage) error {
	cm.mu.RLock()
	c, ok := cm.conns[addr]
	cm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no connection to %s", addr)
	}
	return c.Send(msg)
}

// ListenAddr reports the bound listener address, empty before StartListener.
func (cm *ConnectionManager) ListenAddr() string {
	if cm.listener == nil {
		return ""
	}
	return cm.listener.Addr().String()
}

// ConnCount reports the number of live connections.
func (cm *ConnectionManager) ConnCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

func (cm *ConnectionManager) snapshot() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Connection, 0, len(cm.conns))
	for _, c := range cm.conns {
		out = append(out, c)
	}
	return out
}

// Close stops the listener and tears down every connection.
func (cm *ConnectionManager) Close() {
	cm.once.Do(func() {
		close(cm.closed)
		if cm.listener != nil {
			_ = cm.listener.Close()
		}
		for _, c := range cm.snapshot() {
			c.Close()
		}
	})
}
