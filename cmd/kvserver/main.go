package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dimatd/kvstore/internal/config"
	"github.com/dimatd/kvstore/server"
	"github.com/dimatd/kvstore/store"
	"github.com/dimatd/kvstore/transport"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:   "kvserver",
	Short: "Networked key/value store with periodic on-disk snapshotting",
	Run: func(rawCmd *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to a YAML configuration file (optional; compiled defaults are used otherwise)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Development = false
	zapCfg.Level.SetLevel(zap.InfoLevel)

	logger, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	runtime.GOMAXPROCS(cfg.Workers)

	s, err := store.New(cfg.SnapshotPath, log.Named("store"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	connOpts := transport.Options{
		IdleTimeout:    cfg.IdleTimeout,
		ReadBufferSize: cfg.ReadBufferSize,
		MaxMessageSize: cfg.MaxMessageSize,
	}
	acceptor := server.NewAcceptor(s, log.Named("acceptor"), cfg.SnapshotInterval, cfg.StatsInterval, connOpts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return acceptor.Run(gctx, cfg.ListenAddr)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	log.Infow("shutdown complete")
	return nil
}
