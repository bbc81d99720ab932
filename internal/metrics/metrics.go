// Package metrics keeps in-process counters and latency windows for the
// engine. Everything here is safe for concurrent use.
package metrics

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks engine throughput and exchange latency.
type Metrics struct {
	FetchLatency *LatencyHistogram // full account snapshot
	OrderLatency *LatencyHistogram // place and cancel calls

	snapshotsApplied   atomic.Uint64
	snapshotsDiscarded atomic.Uint64
	fetchErrors        atomic.Uint64
	ordersPlaced       atomic.Uint64
	ordersRejected     atomic.Uint64
	trailingConverted  atomic.Uint64
	priceTicks         atomic.Uint64

	started time.Time
}

// LatencyHistogram is a sliding window of samples with lazily computed stats.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// New creates a metrics set.
func New() *Metrics {
	return &Metrics{
		FetchLatency: NewLatencyHistogram(500),
		OrderLatency: NewLatencyHistogram(500),
		started:      time.Now(),
	}
}

// NewLatencyHistogram creates a window holding size samples.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 500
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts d to ms and records it.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg and percentiles of the window.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}
	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false
	return h.cachedStats
}

// LatencyStats holds computed latency statistics in milliseconds.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

func (m *Metrics) SnapshotApplied()   { m.snapshotsApplied.Add(1) }
func (m *Metrics) SnapshotDiscarded() { m.snapshotsDiscarded.Add(1) }
func (m *Metrics) FetchError()        { m.fetchErrors.Add(1) }
func (m *Metrics) OrderPlaced()       { m.ordersPlaced.Add(1) }
func (m *Metrics) OrderRejected()     { m.ordersRejected.Add(1) }
func (m *Metrics) TrailingConverted() { m.trailingConverted.Add(1) }
func (m *Metrics) PriceTicks(n int)   { m.priceTicks.Add(uint64(n)) }

// Snapshot is a point-in-time copy of the metrics.
type Snapshot struct {
	FetchLatency       LatencyStats  `json:"fetch_latency"`
	OrderLatency       LatencyStats  `json:"order_latency"`
	SnapshotsApplied   uint64        `json:"snapshots_applied"`
	SnapshotsDiscarded uint64        `json:"snapshots_discarded"`
	FetchErrors        uint64        `json:"fetch_errors"`
	OrdersPlaced       uint64        `json:"orders_placed"`
	OrdersRejected     uint64        `json:"orders_rejected"`
	TrailingConverted  uint64        `json:"trailing_converted"`
	PriceTicks         uint64        `json:"price_ticks"`
	GoroutineCount     int           `json:"goroutine_count"`
	HeapAlloc          uint64        `json:"heap_alloc_bytes"`
	Uptime             time.Duration `json:"uptime_ns"`
	Timestamp          time.Time     `json:"timestamp"`
}

// Snapshot reads every counter.
func (m *Metrics) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Snapshot{
		FetchLatency:       m.FetchLatency.Stats(),
		OrderLatency:       m.OrderLatency.Stats(),
		SnapshotsApplied:   m.snapshotsApplied.Load(),
		SnapshotsDiscarded: m.snapshotsDiscarded.Load(),
		FetchErrors:        m.fetchErrors.Load(),
		OrdersPlaced:       m.ordersPlaced.Load(),
		OrdersRejected:     m.ordersRejected.Load(),
		TrailingConverted:  m.trailingConverted.Load(),
		PriceTicks:         m.priceTicks.Load(),
		GoroutineCount:     runtime.NumGoroutine(),
		HeapAlloc:          mem.HeapAlloc,
		Uptime:             time.Since(m.started),
		Timestamp:          time.Now(),
	}
}

// Timer measures one operation.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer starts a timer recording into h.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records the elapsed time.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
