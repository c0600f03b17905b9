package core

import (
	"bytes"
	"testing"
)

func kvEngines(t *testing.T) map[string]KVStore {
	t.Helper()
	fs, err := OpenFsKVStore(t.TempDir())
	if err != nil {
		t.Fatalf("open fs store: %v", err)
	}
	return map[string]KVStore{
		"mem": NewMemKVStore(),
		"fs":  fs,
	}
}

func TestKVStoreBasicOps(t *testing.T) {
	for name, kv := range kvEngines(t) {
		t.Run(name, func(t *testing.T) {
			if err := kv.Put([]byte("k1"), []byte("v1")); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, ok, err := kv.Get([]byte("k1"))
			if err != nil || !ok || !bytes.Equal(got, []byte("v1")) {
				t.Fatalf("get: %q ok=%v err=%v", got, ok, err)
			}
			exists, err := kv.Exists([]byte("k1"))
			if err != nil || !exists {
				t.Fatalf("exists: %v %v", exists, err)
			}
			if err := kv.Delete([]byte("k1")); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok, _ := kv.Get([]byte("k1")); ok {
				t.Fatal("deleted key still present")
			}
			// deleting a missing key is not an error
			if err := kv.Delete([]byte("k1")); err != nil {
				t.Fatalf("double delete: %v", err)
			}
		})
	}
}

func TestKVStoreScanPrefix(t *testing.T) {
	for name, kv := range kvEngines(t) {
		t.Run(name, func(t *testing.T) {
			entries := map[string]string{
				"acct:alice":  "1",
				"acct:bob":    "2",
				"blk:genesis": "3",
			}
			for k, v := range entries {
				if err := kv.Put([]byte(k), []byte(v)); err != nil {
					t.Fatalf("put %s: %v", k, err)
				}
			}
			pairs, err := kv.ScanPrefix([]byte("acct:"))
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			if len(pairs) != 2 {
				t.Fatalf("scan returned %d pairs want 2", len(pairs))
			}
			// results are sorted by key
			if string(pairs[0].Key) != "acct:alice" || string(pairs[1].Key) != "acct:bob" {
				t.Fatalf("scan order wrong: %s, %s", pairs[0].Key, pairs[1].Key)
			}
		})
	}
}

func TestKVStoreWriteBatch(t *testing.T) {
	for name, kv := range kvEngines(t) {
		t.Run(name, func(t *testing.T) {
			if err := kv.Put([]byte("stale"), []byte("x")); err != nil {
				t.Fatalf("seed: %v", err)
			}
			batch := kv.Batch()
			batch.Put([]byte("a"), []byte("1"))
			batch.Put([]byte("b"), []byte("2"))
			batch.Delete([]byte("stale"))
			if batch.Len() != 3 {
				t.Fatalf("batch len=%d want 3", batch.Len())
			}
			if err := kv.WriteBatch(batch); err != nil {
				t.Fatalf("write batch: %v", err)
			}
			if _, ok, _ := kv.Get([]byte("a")); !ok {
				t.Fatal("batched put missing")
			}
			if _, ok, _ := kv.Get([]byte("stale")); ok {
				t.Fatal("batched delete ignored")
			}
		})
	}
}

func TestOpenKVStoreEngineTags(t *testing.T) {
	if _, err := OpenKVStore("mem", ""); err != nil {
		t.Fatalf("mem: %v", err)
	}
	if _, err := OpenKVStore("fs", t.TempDir()); err != nil {
		t.Fatalf("fs: %v", err)
	}
	if _, err := OpenKVStore("rocksdb", ""); err == nil {
		t.Fatal("unknown engine accepted")
	}
}

func TestFsKVStoreBinaryKeys(t *testing.T) {
	kv, err := OpenFsKVStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	key := []byte{0x00, 0xFF, 0x10}
	if err := kv.Put(key, []byte("bin")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := kv.Get(key)
	if err != nil || !ok || !bytes.Equal(got, []byte("bin")) {
		t.Fatalf("get: %q ok=%v err=%v", got, ok, err)
	}
	pairs, err := kv.ScanPrefix([]byte{0x00})
	if err != nil || len(pairs) != 1 {
		t.Fatalf("scan: %v %v", pairs, err)
	}
}
