// Package treemetrics provides optional Prometheus instrumentation for the
// B+ tree and the chunk store. All hooks are nil-safe so the rest of the
// repository can run unmetered in tests.
package treemetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tree holds the counters and the key-count gauge emitted by pkg/bptree.
type Tree struct {
	InsertsTotal          *prometheus.CounterVec
	OptimisticAbortsTotal prometheus.Counter
	SplitsTotal           *prometheus.CounterVec
	GetsTotal             *prometheus.CounterVec
	KeyCount              prometheus.Gauge
}

// NewTree registers and returns the tree metrics. They are registered with
// the default global registry through promauto.
func NewTree() *Tree {
	return &Tree{
		InsertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunktree_inserts_total",
				Help: "Total number of tree Insert calls, by path taken.",
			},
			[]string{"path"}, // "optimistic" or "pessimistic"
		),
		OptimisticAbortsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chunktree_optimistic_aborts_total",
				Help: "Number of optimistic inserts that fell through to the pessimistic path.",
			},
		),
		SplitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunktree_splits_total",
				Help: "Total number of node splits, by node kind.",
			},
			[]string{"kind"}, // "leaf" or "internal"
		),
		GetsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunktree_gets_total",
				Help: "Total number of Get calls, by outcome.",
			},
			[]string{"outcome"}, // "hit" or "miss"
		),
		KeyCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chunktree_keys",
				Help: "Approximate number of keys currently in the tree.",
			},
		),
	}
}

func (t *Tree) insert(path string) {
	if t == nil {
		return
	}
	t.InsertsTotal.WithLabelValues(path).Inc()
}

// ObserveOptimisticInsert records a successful optimistic-path insert.
func (t *Tree) ObserveOptimisticInsert() { t.insert("optimistic") }

// ObservePessimisticInsert records an insert that took the write-latch-crab path.
func (t *Tree) ObservePessimisticInsert() { t.insert("pessimistic") }

// ObserveOptimisticAbort records an optimistic attempt falling through.
func (t *Tree) ObserveOptimisticAbort() {
	if t == nil {
		return
	}
	t.OptimisticAbortsTotal.Inc()
}

// ObserveSplit records a node split of the given kind ("leaf" or "internal").
func (t *Tree) ObserveSplit(kind string) {
	if t == nil {
		return
	}
	t.SplitsTotal.WithLabelValues(kind).Inc()
}

// ObserveGet records a Get outcome ("hit" or "miss").
func (t *Tree) ObserveGet(hit bool) {
	if t == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	t.GetsTotal.WithLabelValues(outcome).Inc()
}

// SetKeyCount updates the approximate key-count gauge.
func (t *Tree) SetKeyCount(n int) {
	if t == nil {
		return
	}
	t.KeyCount.Set(float64(n))
}

// ChunkStore holds the counters and histograms emitted by pkg/chunkstore.
type ChunkStore struct {
	WritesTotal   prometheus.Counter
	ReadsTotal    prometheus.Counter
	RotationsTotal prometheus.Counter
	WriteBytes    prometheus.Histogram
}

// NewChunkStore registers and returns the chunk store metrics.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		WritesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunktree_chunkstore_writes_total",
			Help: "Total number of chunk writes.",
		}),
		ReadsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunktree_chunkstore_reads_total",
			Help: "Total number of chunk reads.",
		}),
		RotationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunktree_chunkstore_segment_rotations_total",
			Help: "Total number of segment rotations.",
		}),
		WriteBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chunktree_chunkstore_write_bytes",
			Help:    "Size in bytes of values written to the chunk store.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		}),
	}
}

// ObserveWrite records a chunk write of the given size.
func (c *ChunkStore) ObserveWrite(size int) {
	if c == nil {
		return
	}
	c.WritesTotal.Inc()
	c.WriteBytes.Observe(float64(size))
}

// ObserveRead records a chunk read.
func (c *ChunkStore) ObserveRead() {
	if c == nil {
		return
	}
	c.ReadsTotal.Inc()
}

// ObserveRotation records a segment rotation.
func (c *ChunkStore) ObserveRotation() {
	if c == nil {
		return
	}
	c.RotationsTotal.Inc()
}
