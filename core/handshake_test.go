package core

import "testing"

func TestHandshakeCreateVerify(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	hs, err := CreateHandshake(kp, 1, []string{"core/1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if hs.NodeID != kp.NodeID() {
		t.Fatalf("node id mismatch: %s", hs.NodeID)
	}
	if len(hs.Nonce) != handshakeNonceSize {
		t.Fatalf("nonce length %d", len(hs.Nonce))
	}
	if err := VerifyHandshake(hs); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestHandshakeTamperDetected(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	base, err := CreateHandshake(kp, 1, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(hs *HandshakeMsg)
	}{
		{"version", func(hs *HandshakeMsg) { hs.ProtocolVersion = 2 }},
		{"nonce", func(hs *HandshakeMsg) { hs.Nonce[0] ^= 0xFF }},
		{"signature", func(hs *HandshakeMsg) { hs.Signature[0] ^= 0xFF }},
		{"identity", func(hs *HandshakeMsg) {
			other, _ := GenerateKeypair()
			hs.NodeID = other.NodeID()
		}},
		{"bad hex", func(hs *HandshakeMsg) { hs.NodeID = "zz" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hs := *base
			hs.Nonce = append([]byte(nil), base.Nonce...)
			hs.Signature = append([]byte(nil), base.Signature...)
			tc.mutate(&hs)
			if err := VerifyHandshake(&hs); err == nil {
				t.Fatal("tampered handshake verified")
			}
		})
	}

	if err := VerifyHandshake(nil); err == nil {
		t.Fatal("nil handshake verified")
	}
}
