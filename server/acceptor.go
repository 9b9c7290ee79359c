package server

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dimatd/kvstore/store"
	"github.com/dimatd/kvstore/transport"
)

// Acceptor owns the listening socket and the two background timers: a
// snapshot timer and a stats timer. Every accepted connection gets a fresh
// Dispatcher and transport.Connection sharing the one Store.
type Acceptor struct {
	store *store.Store
	log   *zap.SugaredLogger

	snapshotInterval time.Duration
	statsInterval    time.Duration
	connOpts         transport.Options
}

// NewAcceptor constructs an Acceptor. log may be nil, in which case a no-op
// logger is used.
func NewAcceptor(s *store.Store, log *zap.SugaredLogger, snapshotInterval, statsInterval time.Duration, connOpts transport.Options) *Acceptor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Acceptor{
		store:            s,
		log:              log,
		snapshotInterval: snapshotInterval,
		statsInterval:    statsInterval,
		connOpts:         connOpts,
	}
}

// Run listens on addr and serves connections until ctx is canceled. It
// returns nil on a clean shutdown (ctx canceled) and a non-nil error if the
// listener could not be bound or the accept loop failed for another reason
// (the exit code contract lives in cmd/kvserver).
func (a *Acceptor) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	a.log.Infow("listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.acceptLoop(gctx, ln)
	})
	g.Go(func() error {
		return a.snapshotTimer(gctx)
	})
	g.Go(func() error {
		return a.statsTimer(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	err = g.Wait()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Acceptor) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		disp := NewDispatcher(a.store, a.log)
		c := transport.New(conn, disp, a.log, a.connOpts)
		c.Start()
	}
}

// snapshotTimer flushes the store every snapshotInterval if it has been
// mutated since the last flush, offloading each flush to its own goroutine
// so a slow disk never stalls the timer itself.
func (a *Acceptor) snapshotTimer(ctx context.Context) error {
	ticker := time.NewTicker(a.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			go a.flush()
		case <-ctx.Done():
			a.flush()
			return nil
		}
	}
}

func (a *Acceptor) flush() {
	if a.store.FlushIfDirty() {
		a.log.Debugw("snapshot flushed")
	}
}

// statsTimer dumps GET/SET totals and window counts via the structured
// logger every statsInterval, then resets the window.
func (a *Acceptor) statsTimer(ctx context.Context) error {
	ticker := time.NewTicker(a.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := a.store.Stats()
			a.log.Infow("stats",
				"get_total", snap.GetTotal,
				"set_total", snap.SetTotal,
				"get_window", snap.GetWindow,
				"set_window", snap.SetWindow,
			)
			a.store.ResetStatsWindow()
		case <-ctx.Done():
			return nil
		}
	}
}
