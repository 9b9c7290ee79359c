package store

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

/*
Counters tracks process-wide GET/SET totals and a 5-second window that the
stats timer resets.

total is backed by prometheus.Counter so the instrument is reusable by any
future Prometheus registry without touching the data model (the design
excludes metrics exposition beyond a stderr dump, so nothing here registers
a collector or serves /metrics; the counters are read back in-process via
prometheus.Counter's own Write method, the same technique
pkg/exporter/exporter.go in the retrieved tcpinfo exporter uses to pull a
metric's value without a live scrape).

window cannot use prometheus.Counter (it has no reset method), so it stays
a plain atomic.Uint64 pair, reset by the stats timer.
*/
type Counters struct {
	getTotal prometheus.Counter
	setTotal prometheus.Counter

	getWindow atomic.Uint64
	setWindow atomic.Uint64
}

func newCounters() *Counters {
	return &Counters{
		getTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_get_total",
			Help: "Total number of GET operations served.",
		}),
		setTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_set_total",
			Help: "Total number of SET operations served.",
		}),
	}
}

func (c *Counters) addGet() {
	c.getTotal.Inc()
	c.getWindow.Add(1)
}

func (c *Counters) addSet() {
	c.setTotal.Inc()
	c.setWindow.Add(1)
}

// Snapshot is a point-in-time read of the counters, suitable for logging.
type Snapshot struct {
	GetTotal  uint64
	SetTotal  uint64
	GetWindow uint64
	SetWindow uint64
}

// Snapshot reads the current totals and window counts without resetting
// anything.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		GetTotal:  readCounter(c.getTotal),
		SetTotal:  readCounter(c.setTotal),
		GetWindow: c.getWindow.Load(),
		SetWindow: c.setWindow.Load(),
	}
}

// ResetWindow zeroes the window counters; called by the stats timer after
// each dump.
func (c *Counters) ResetWindow() {
	c.getWindow.Store(0)
	c.setWindow.Store(0)
}

func readCounter(ctr prometheus.Counter) uint64 {
	var m dto.Metric
	if err := ctr.Write(&m); err != nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}
