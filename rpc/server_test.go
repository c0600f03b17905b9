package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/MegaHoot/pecunovus/core"
)

// fakeNode implements NodeAPI for handler tests.
type fakeNode struct {
	accounts map[string]core.Account
	blocks   map[uint64][]byte
	rejected string
}

func (f *fakeNode) NodeID() string { return "aabbcc" }

func (f *fakeNode) Snapshot() core.ConsensusSnapshot {
	return core.ConsensusSnapshot{Slot: 3, TotalStake: 10, Finalized: []core.FinalizedBlock{{Slot: 1}}}
}

func (f *fakeNode) SubmitTx(tx core.Tx) (core.IngestResult, error) {
	if f.rejected != "" {
		return core.IngestResult{Accepted: false, Reason: f.rejected}, nil
	}
	return core.IngestResult{Accepted: true, ID: tx.ID()}, nil
}

func (f *fakeNode) GetBlock(slot uint64) ([]byte, bool, error) {
	b, ok := f.blocks[slot]
	return b, ok, nil
}

func (f *fakeNode) GetAccount(key string) (core.Account, bool, error) {
	a, ok := f.accounts[key]
	return a, ok, nil
}

func (f *fakeNode) MempoolSize() int { return 7 }

func (f *fakeNode) PeerList() []core.PeerInfo { return nil }

func testServer(node NodeAPI, auth AuthConfig) *httptest.Server {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return httptest.NewServer(NewServer("127.0.0.1:0", node, auth, lg).Router())
}

func TestStatusEndpoint(t *testing.T) {
	node := &fakeNode{}
	srv := testServer(node, DisabledAuth())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["slot"].(float64) != 3 || body["mempool"].(float64) != 7 {
		t.Fatalf("body: %v", body)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatal("request id header missing")
	}
}

func TestSubmitTxEndpoint(t *testing.T) {
	node := &fakeNode{}
	srv := testServer(node, DisabledAuth())
	defer srv.Close()

	tx := core.Tx{From: "alice", To: "bob", Amount: 1, Fee: 1, Nonce: 1}
	raw, _ := json.Marshal(tx)
	resp, err := http.Post(srv.URL+"/tx", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	node.rejected = "insufficient funds"
	resp2, err := http.Post(srv.URL+"/tx", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post rejected: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("rejected status=%d", resp2.StatusCode)
	}

	resp3, err := http.Post(srv.URL+"/tx", "application/json", bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatalf("post broken: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusBadRequest {
		t.Fatalf("broken status=%d", resp3.StatusCode)
	}
}

func TestBlockAndAccountEndpoints(t *testing.T) {
	node := &fakeNode{
		blocks:   map[uint64][]byte{4: []byte("blk")},
		accounts: map[string]core.Account{"alice": {Balance: 9, Owner: "system"}},
	}
	srv := testServer(node, DisabledAuth())
	defer srv.Close()

	for path, want := range map[string]int{
		"/block/4":       http.StatusOK,
		"/block/5":       http.StatusNotFound,
		"/block/notnum":  http.StatusBadRequest,
		"/account/alice": http.StatusOK,
		"/account/ghost": http.StatusNotFound,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%s: status=%d want %d", path, resp.StatusCode, want)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuth([]byte("secret"))
	srv := testServer(&fakeNode{}, auth)
	defer srv.Close()

	// health stays open
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status=%d", resp.StatusCode)
	}

	// guarded route without a token
	resp, err = http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status=%d", resp.StatusCode)
	}

	// correct token
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
	req.Header.Set(AuthHeader, auth.Token("/status"))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authed status=%d", resp.StatusCode)
	}

	// wrong token
	req.Header.Set(AuthHeader, "deadbeef")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("bad token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status=%d", resp.StatusCode)
	}
}
