/*
kvload is a load generator for kvserver: it fans out N concurrent client
sessions, each sending random testKeyN/testValueN traffic at a configurable
SET:GET ratio (1% SET / 99% GET by default), and reports throughput
periodically.
*/
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dimatd/kvstore/client"
	"github.com/dimatd/kvstore/transport"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	Addr        string
	Connections int
	Duration    time.Duration
	SetPercent  int
	KeySpace    int
}

var rootCmd = &cobra.Command{
	Use:   "kvload",
	Short: "Load generator for kvserver",
	Run: func(rawCmd *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVar(&cmd.Addr, "addr", "127.0.0.1:9000", "Server address")
	rootCmd.Flags().IntVar(&cmd.Connections, "connections", 4, "Number of concurrent client sessions")
	rootCmd.Flags().DurationVar(&cmd.Duration, "duration", 30*time.Second, "How long to generate traffic for")
	rootCmd.Flags().IntVar(&cmd.SetPercent, "set-percent", 1, "Percentage of requests that are SETs rather than GETs")
	rootCmd.Flags().IntVar(&cmd.KeySpace, "keys", 100, "Number of distinct keys to cycle through")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

// counters tracks throughput across every session, read periodically by the
// reporting goroutine.
type counters struct {
	sets   atomic.Uint64
	gets   atomic.Uint64
	errors atomic.Uint64
}

func run(cmd Cmd) error {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Development = false
	logger, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cmd.Duration)
	defer cancel()

	var c counters
	var wg sync.WaitGroup
	wg.Add(cmd.Connections)
	for i := 0; i < cmd.Connections; i++ {
		go func(id int) {
			defer wg.Done()
			runSession(ctx, id, cmd, log, &c)
		}(i)
	}

	go reportThroughput(ctx, log, &c)

	wg.Wait()
	log.Infow("load test complete",
		"gets", c.gets.Load(),
		"sets", c.sets.Load(),
		"errors", c.errors.Load(),
	)
	return nil
}

func runSession(ctx context.Context, id int, cmd Cmd, log *zap.SugaredLogger, c *counters) {
	sess, err := client.Dial(cmd.Addr, log.Named(fmt.Sprintf("session-%d", id)), transport.Options{})
	if err != nil {
		log.Errorw("failed to connect", "session", id, "error", err)
		c.errors.Add(1)
		return
	}
	defer sess.Close()

	rng := rand.New(rand.NewSource(int64(id) + time.Now().UnixNano()))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		key := testKey(rng, cmd.KeySpace)
		if rng.Intn(100) < cmd.SetPercent {
			sess.Set(key, []byte(testValue(rng)))
			c.sets.Add(1)
			continue
		}

		if _, err := sess.Get(key, 2*time.Second); err != nil {
			c.errors.Add(1)
			continue
		}
		c.gets.Add(1)
	}
}

func testKey(rng *rand.Rand, keySpace int) string {
	return fmt.Sprintf("testKey%d", rng.Intn(keySpace)+1)
}

func testValue(rng *rand.Rand) string {
	return fmt.Sprintf("testValue%d", rng.Intn(100)+1)
}

func reportThroughput(ctx context.Context, log *zap.SugaredLogger, c *counters) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastGets, lastSets uint64
	for {
		select {
		case <-ticker.C:
			gets, sets := c.gets.Load(), c.sets.Load()
			log.Infow("throughput",
				"gets_per_interval", gets-lastGets,
				"sets_per_interval", sets-lastSets,
				"errors_total", c.errors.Load(),
			)
			lastGets, lastSets = gets, sets
		case <-ctx.Done():
			return
		}
	}
}
