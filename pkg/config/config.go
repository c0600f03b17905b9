package config

// Package config provides a reusable loader for pecunovus configuration files
// and environment variables. Values come from an optional YAML file in the
// data directory, merged with any environment overrides picked up after the
// .env file is loaded.

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/MegaHoot/pecunovus/pkg/utils"
)

// Config represents the unified configuration for a pecunovus node.
type Config struct {
	Network struct {
		BindAddr        string   `mapstructure:"bind_addr" yaml:"bind_addr" json:"bind_addr"`
		RPCAddr         string   `mapstructure:"rpc_addr" yaml:"rpc_addr" json:"rpc_addr"`
		BootstrapPeers  []string `mapstructure:"bootstrap_peers" yaml:"bootstrap_peers" json:"bootstrap_peers"`
		ProtocolVersion uint16   `mapstructure:"protocol_version" yaml:"protocol_version" json:"protocol_version"`
		Fanout          int      `mapstructure:"fanout" yaml:"fanout" json:"fanout"`
		DedupCapacity   int      `mapstructure:"dedup_capacity" yaml:"dedup_capacity" json:"dedup_capacity"`
	} `mapstructure:"network" yaml:"network" json:"network"`

	Consensus struct {
		TickMS        int    `mapstructure:"tick_ms" yaml:"tick_ms" json:"tick_ms"`
		PoHIterations int    `mapstructure:"poh_iterations" yaml:"poh_iterations" json:"poh_iterations"`
		VoteWeighting string `mapstructure:"vote_weighting" yaml:"vote_weighting" json:"vote_weighting"`
	} `mapstructure:"consensus" yaml:"consensus" json:"consensus"`

	Pool struct {
		MaxSize        int `mapstructure:"max_size" yaml:"max_size" json:"max_size"`
		TTLSeconds     int `mapstructure:"ttl_seconds" yaml:"ttl_seconds" json:"ttl_seconds"`
		LRUCapacity    int `mapstructure:"lru_capacity" yaml:"lru_capacity" json:"lru_capacity"`
		BatchSize      int `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
		PollIntervalMS int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms" json:"poll_interval_ms"`
	} `mapstructure:"pool" yaml:"pool" json:"pool"`

	Storage struct {
		Engine      string `mapstructure:"engine" yaml:"engine" json:"engine"`
		DataDir     string `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`
		RetainSlots uint64 `mapstructure:"retain_slots" yaml:"retain_slots" json:"retain_slots"`
	} `mapstructure:"storage" yaml:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" yaml:"level" json:"level"`
	} `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Network.BindAddr = "0.0.0.0:7000"
	cfg.Network.RPCAddr = "0.0.0.0:8080"
	cfg.Network.ProtocolVersion = 1
	cfg.Network.Fanout = 8
	cfg.Network.DedupCapacity = 10_000
	cfg.Consensus.TickMS = 400
	cfg.Consensus.PoHIterations = 256
	cfg.Consensus.VoteWeighting = "per-vote"
	cfg.Pool.MaxSize = 200_000
	cfg.Pool.TTLSeconds = 3600
	cfg.Pool.LRUCapacity = 10_000
	cfg.Pool.BatchSize = 64
	cfg.Pool.PollIntervalMS = 100
	cfg.Storage.Engine = "fs"
	cfg.Storage.DataDir = "./data"
	cfg.Storage.RetainSlots = 100_000
	cfg.Logging.Level = "info"
	return cfg
}

// Load reads node.yaml from the given directory, falling back to defaults for
// anything unset. Environment variables (optionally supplied via a .env file)
// override file values; e.g. PECU_NETWORK_BIND_ADDR overrides
// network.bind_addr.
func Load(dir string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absent .env is fine

	v := viper.New()
	v.SetConfigName("node")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("PECU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, utils.Wrap(err, "load config")
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return cfg, nil
}
