package core

// connection.go – one live peer link. A reader goroutine decodes frames into
// the shared inbound channel; a writer goroutine drains the bounded outbound
// queue. Either side failing tears the connection down; Close is idempotent
// and doubles as the done signal.

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// OutboundCap is the per-connection outbound queue capacity. Send blocks
// when the queue is full; there are no unbounded buffers on the hot path.
const OutboundCap = 1024

// ErrConnClosed is returned by Send after the connection shut down.
var ErrConnClosed = net.ErrClosed

// Connection owns the socket and its reader/writer tasks.
type Connection struct {
	peerAddr string
	peerID   string
	conn     net.Conn
	outbound chan WireMessage
	shutdown chan struct{}
	once     sync.Once
	logger   *logrus.Logger
}

// SpawnConnection starts the reader and writer tasks over an established
// (and already handshaken) stream. Decoded messages flow into inbound.
func SpawnConnection(conn net.Conn, peerID string, inbound chan<- InboundMsg, lg *logrus.Logger) *Connection {
	c := &Connection{
		peerAddr: conn.RemoteAddr().String(),
		peerID:   peerID,
		conn:     conn,
		outbound: make(chan WireMessage, OutboundCap),
		shutdown: make(chan struct{}),
		logger:   lg,
	}
	go c.readLoop(inbound)
	go c.writeLoop()
	return c
}

// PeerAddr is the remote socket address.
func (c *Connection) PeerAddr() string { return c.peerAddr }

// PeerID is the authenticated node id from the handshake.
func (c *Connection) PeerID() string { return c.peerID }

// Done is closed once the connection has shut down.
func (c *Connection) Done() <-chan struct{} { return c.shutdown }

// Send queues a message, awaiting outbound capacity (back-pressure).
func (c *Connection) Send(msg WireMessage) error {
	if closed(c.shutdown) {
		return ErrConnClosed
	}
	select {
	case c.outbound <- msg:
		return nil
	case <-c.shutdown:
		return ErrConnClosed
	}
}

// TrySend queues a message only if capacity is immediately available.
func (c *Connection) TrySend(msg WireMessage) bool {
	if closed(c.shutdown) {
		return false
	}
	select {
	case c.outbound <- msg:
		return true
	case <-c.shutdown:
		return false
	default:
		return false
	}
}

// Close signals both tasks to stop and closes the socket. Safe to call from
// any goroutine, any number of times.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.shutdown)
		_ = c.conn.Close()
	})
}

func (c *Connection) readLoop(inbound chan<- InboundMsg) {
	defer c.Close()
	br := bufio.NewReader(c.conn)
	for {
		payload, err := ReadFrame(br)
		if err != nil {
			if err != io.EOF && !closed(c.shutdown) {
				c.logger.Warnf("read error from %s: %v", c.peerAddr, err)
			}
			return
		}
		msg, err := DecodeWireMessage(payload)
		if err != nil {
			c.logger.Warnf("decode error from %s: %v", c.peerAddr, err)
			continue
		}
		select {
		case inbound <- InboundMsg{Addr: c.peerAddr, Msg: msg}:
		case <-c.shutdown:
			return
		}
	}
}

func (c *Connection) writeLoop() {
	defer c.Close()
	bw := bufio.NewWriter(c.conn)
	for {
		select {
		case <-c.shutdown:
			return
		case msg := <-c.outbound:
			bin, err := EncodeWireMessage(&msg)
			if err != nil {
				c.logger.Warnf("encode error sending to %s: %v", c.peerAddr, err)
				continue
			}
			if err := WriteFrame(bw, bin); err != nil {
				c.logger.Warnf("write error to %s: %v", c.peerAddr, err)
				return
			}
			if err := bw.Flush(); err != nil {
				c.logger.Warnf("flush error to %s: %v", c.peerAddr, err)
				return
			}
		}
	}
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
