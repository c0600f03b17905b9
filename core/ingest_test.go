package core

import (
	"testing"
	"time"
)

func newTestIngestor(t *testing.T) (*TxIngestor, *AccountCache, *TxPool) {
	t.Helper()
	cache := NewAccountCache(NewInMemAccountStore())
	pool := mustPool(t, 100, time.Minute, 100)
	return NewTxIngestor(pool, NewBalanceValidator(cache)), cache, pool
}

func TestIngestAccept(t *testing.T) {
	ing, cache, pool := newTestIngestor(t)
	if err := cache.Insert("alice", NewAccount(100, "system", nil)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := ing.Ingest(Tx{From: "alice", To: "bob", Amount: 10, Fee: 1, Nonce: 1})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("rejected: %s", res.Reason)
	}
	if _, ok := pool.Get(res.ID); !ok {
		t.Fatal("accepted tx not in pool")
	}
}

func TestIngestRejections(t *testing.T) {
	ing, cache, _ := newTestIngestor(t)

	// unknown sender
	res, err := ing.Ingest(Tx{From: "ghost", To: "bob", Amount: 1, Fee: 1, Nonce: 1})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Accepted || res.Reason != "sender account not found" {
		t.Fatalf("result: %+v", res)
	}

	// amount+fee exceeds balance
	if err := cache.Insert("alice", NewAccount(10, "system", nil)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err = ing.Ingest(Tx{From: "alice", To: "bob", Amount: 10, Fee: 1, Nonce: 1})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Accepted || res.Reason != "insufficient funds" {
		t.Fatalf("result: %+v", res)
	}
}

func TestIngestDuplicateIsRejectionNotError(t *testing.T) {
	ing, cache, _ := newTestIngestor(t)
	if err := cache.Insert("alice", NewAccount(100, "system", nil)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tx := Tx{From: "alice", To: "bob", Amount: 1, Fee: 1, Nonce: 1}
	if res, err := ing.Ingest(tx); err != nil || !res.Accepted {
		t.Fatalf("first ingest: %+v %v", res, err)
	}
	res, err := ing.Ingest(tx)
	if err != nil {
		t.Fatalf("duplicate surfaced as error: %v", err)
	}
	if res.Accepted {
		t.Fatal("duplicate accepted")
	}
}
