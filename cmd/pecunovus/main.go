package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MegaHoot/pecunovus/core"
	"github.com/MegaHoot/pecunovus/pkg/config"
	"github.com/MegaHoot/pecunovus/pkg/utils"
	"github.com/MegaHoot/pecunovus/rpc"
)

func main() {
	rootCmd := &cobra.Command{Use: "pecunovus", Short: "pecunovus blockchain node"}
	rootCmd.PersistentFlags().String("data-dir", "./data", "path to the node data directory")
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "initialize the node data directory and identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			bootstrap, _ := cmd.Flags().GetString("bootstrap")

			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return utils.Wrap(err, "create data dir")
			}
			if _, err := core.LoadOrCreateKeypair(dataDir); err != nil {
				return utils.Wrap(err, "create identity")
			}

			cfg := config.Default()
			cfg.Storage.DataDir = dataDir
			if bootstrap != "" {
				cfg.Network.BootstrapPeers = parsePeersCSV(bootstrap)
			}
			raw, err := yaml.Marshal(cfg)
			if err != nil {
				return utils.Wrap(err, "encode config")
			}
			if err := os.WriteFile(filepath.Join(dataDir, "node.yaml"), raw, 0o644); err != nil {
				return utils.Wrap(err, "write config")
			}
			fmt.Printf("initialized node data dir at %s\n", dataDir)
			return nil
		},
	}
	cmd.Flags().String("bootstrap", "", "comma separated bootstrap peers")
	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			bind, _ := cmd.Flags().GetString("bind")
			rpcAddr, _ := cmd.Flags().GetString("rpc")
			bootstrap, _ := cmd.Flags().GetString("bootstrap")

			cfg, err := config.Load(dataDir)
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Network.BindAddr = bind
			}
			if rpcAddr != "" {
				cfg.Network.RPCAddr = rpcAddr
			}
			if bootstrap != "" {
				cfg.Network.BootstrapPeers = parsePeersCSV(bootstrap)
			}

			lg := newLogger(cfg.Logging.Level)

			node, err := core.NewNode(nodeConfig(dataDir, cfg), lg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := node.Start(ctx); err != nil {
				return err
			}

			authSecret := utils.EnvOrDefault("PECU_RPC_SECRET", "")
			auth := rpc.DisabledAuth()
			if authSecret != "" {
				auth = rpc.NewAuth([]byte(authSecret))
			}
			rpc.NewServer(cfg.Network.RPCAddr, node, auth, lg).Start(ctx)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			lg.Info("shutting down")
			cancel()
			node.Stop()
			return nil
		},
	}
	cmd.Flags().String("bind", "", "network bind address (host:port)")
	cmd.Flags().String("rpc", "", "rpc bind address (host:port)")
	cmd.Flags().String("bootstrap", "", "comma separated bootstrap peers")
	return cmd
}

func nodeConfig(dataDir string, cfg *config.Config) core.NodeConfig {
	return core.NodeConfig{
		DataDir:         dataDir,
		BindAddr:        cfg.Network.BindAddr,
		BootstrapPeers:  cfg.Network.BootstrapPeers,
		ProtocolVersion: cfg.Network.ProtocolVersion,
		Fanout:          cfg.Network.Fanout,
		DedupCapacity:   cfg.Network.DedupCapacity,
		TickMS:          cfg.Consensus.TickMS,
		PoHIterations:   cfg.Consensus.PoHIterations,
		VoteWeighting:   cfg.Consensus.VoteWeighting,
		PoolMaxSize:     cfg.Pool.MaxSize,
		PoolTTL:         time.Duration(cfg.Pool.TTLSeconds) * time.Second,
		PoolLRUCapacity: cfg.Pool.LRUCapacity,
		BatchSize:       cfg.Pool.BatchSize,
		PollInterval:    time.Duration(cfg.Pool.PollIntervalMS) * time.Millisecond,
		StorageEngine:   cfg.Storage.Engine,
		RetainSlots:     cfg.Storage.RetainSlots,
	}
}

func newLogger(level string) *logrus.Logger {
	lg := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		lg.SetLevel(lvl)
	}
	return lg
}

func parsePeersCSV(s string) []string {
	var peers []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}
