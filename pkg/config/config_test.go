package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network.BindAddr != "0.0.0.0:7000" {
		t.Fatalf("bind addr default wrong: %s", cfg.Network.BindAddr)
	}
	if cfg.Pool.MaxSize != 200_000 {
		t.Fatalf("pool max default wrong: %d", cfg.Pool.MaxSize)
	}
	if cfg.Consensus.VoteWeighting != "per-vote" {
		t.Fatalf("weighting default wrong: %s", cfg.Consensus.VoteWeighting)
	}
}

func TestLoadMergesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
network:
  bind_addr: "127.0.0.1:9999"
pool:
  max_size: 42
`
	if err := os.WriteFile(filepath.Join(dir, "node.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network.BindAddr != "127.0.0.1:9999" {
		t.Fatalf("file value ignored: %s", cfg.Network.BindAddr)
	}
	if cfg.Pool.MaxSize != 42 {
		t.Fatalf("file value ignored: %d", cfg.Pool.MaxSize)
	}
	// untouched sections keep their defaults
	if cfg.Storage.Engine != "fs" {
		t.Fatalf("default lost: %s", cfg.Storage.Engine)
	}
}
