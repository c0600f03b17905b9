package core

// messages.go – the stable wire-level message union. Consensus proposals,
// votes and transactions ride inside Payload bodies; the dispatcher routes
// them by topic.

import (
	"encoding/json"
	"fmt"
)

// Topic strings used by the node dispatcher.
const (
	TopicTx       = "tx"
	TopicProposal = "consensus.proposal"
	TopicVote     = "consensus.vote"
)

// MsgKind tags the WireMessage union.
type MsgKind string

const (
	MsgHandshake MsgKind = "handshake"
	MsgPayload   MsgKind = "payload"
	MsgPing      MsgKind = "ping"
	MsgPong      MsgKind = "pong"
)

// HandshakeMsg authenticates a peer: the signature covers
// utf8(node_id) || big-endian(protocol_version) || nonce.
type HandshakeMsg struct {
	NodeID          string   `json:"node_id"`
	ProtocolVersion uint16   `json:"protocol_version"`
	Features        []string `json:"features"`
	Signature       []byte   `json:"signature"`
	Nonce           []byte   `json:"nonce"`
}

// WireMessage is one frame's payload: a handshake, a topic-tagged payload,
// or a ping/pong.
type WireMessage struct {
	Kind      MsgKind       `json:"kind"`
	Handshake *HandshakeMsg `json:"handshake,omitempty"`
	Topic     string        `json:"topic,omitempty"`
	Data      []byte        `json:"data,omitempty"`
}

// PayloadMessage builds a topic-tagged payload message.
func PayloadMessage(topic string, data []byte) WireMessage {
	return WireMessage{Kind: MsgPayload, Topic: topic, Data: data}
}

// HandshakeMessage wraps a handshake for the wire.
func HandshakeMessage(hs *HandshakeMsg) WireMessage {
	return WireMessage{Kind: MsgHandshake, Handshake: hs}
}

// EncodeWireMessage serializes a message for framing.
func EncodeWireMessage(msg *WireMessage) ([]byte, error) {
	switch msg.Kind {
	case MsgHandshake, MsgPayload, MsgPing, MsgPong:
	default:
		return nil, fmt.Errorf("unknown wire message kind %q", msg.Kind)
	}
	return json.Marshal(msg)
}

// DecodeWireMessage parses a framed payload, rejecting unknown kinds and a
// handshake frame without a handshake body.
func DecodeWireMessage(data []byte) (WireMessage, error) {
	var msg WireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return WireMessage{}, err
	}
	switch msg.Kind {
	case MsgHandshake:
		if msg.Handshake == nil {
			return WireMessage{}, fmt.Errorf("handshake frame missing body")
		}
	case MsgPayload, MsgPing, MsgPong:
	default:
		return WireMessage{}, fmt.Errorf("unknown wire message kind %q", msg.Kind)
	}
	return msg, nil
}
