package core

// handshake.go – signed-nonce identity exchange. Both sides send a
// HandshakeMsg as their first frame; a connection only joins the manager's
// active set after the peer's signature checks out.

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

const handshakeNonceSize = 16

var errBadHandshake = errors.New("handshake verification failed")

// handshakeSigningBytes is the exact byte string covered by the handshake
// signature: utf8(node_id) || big-endian(protocol_version) || nonce.
func handshakeSigningBytes(nodeID string, protocolVersion uint16, nonce []byte) []byte {
	out := make([]byte, 0, len(nodeID)+2+len(nonce))
	out = append(out, nodeID...)
	out = binary.BigEndian.AppendUint16(out, protocolVersion)
	out = append(out, nonce...)
	return out
}

// CreateHandshake builds a signed handshake for the local identity.
func CreateHandshake(signer Signer, protocolVersion uint16, features []string) (*HandshakeMsg, error) {
	nonce := make([]byte, handshakeNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("handshake nonce: %w", err)
	}
	nodeID := signer.NodeID()
	return &HandshakeMsg{
		NodeID:          nodeID,
		ProtocolVersion: protocolVersion,
		Features:        features,
		Signature:       signer.Sign(handshakeSigningBytes(nodeID, protocolVersion, nonce)),
		Nonce:           nonce,
	}, nil
}

// VerifyHandshake checks the peer's signature against its claimed node id.
func VerifyHandshake(hs *HandshakeMsg) error {
	if hs == nil {
		return errBadHandshake
	}
	msg := handshakeSigningBytes(hs.NodeID, hs.ProtocolVersion, hs.Nonce)
	if err := VerifyWithNodeID(hs.NodeID, msg, hs.Signature); err != nil {
		return fmt.Errorf("%w: %v", errBadHandshake, err)
	}
	return nil
}
