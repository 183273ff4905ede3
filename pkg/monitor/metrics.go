package monitor

import (
	"runtime"
	"sync/atomic"
	"time"

	"trackmesh/pkg/logger"
)

// Metrics holds transfer counters for the node
type Metrics struct {
	// Bytes served to peers from local storage
	BytesServed int64
	// Bytes fetched from remote peers
	BytesFetched int64
	// Inbound service requests handled
	RequestsServed int64
	// Successful discovery handshakes, in either role
	Discoveries int64
	// Node start time
	Start time.Time
}

// Global metrics instance
var Global = &Metrics{
	Start: time.Now(),
}

// Snapshot returns a consistent copy of the counters.
func Snapshot() Metrics {
	return Metrics{
		BytesServed:    atomic.LoadInt64(&Global.BytesServed),
		BytesFetched:   atomic.LoadInt64(&Global.BytesFetched),
		RequestsServed: atomic.LoadInt64(&Global.RequestsServed),
		Discoveries:    atomic.LoadInt64(&Global.Discoveries),
		Start:          Global.Start,
	}
}

func RecordRequest() {
	atomic.AddInt64(&Global.RequestsServed, 1)
}

func RecordDiscovery() {
	atomic.AddInt64(&Global.Discoveries, 1)
}

func RecordBytesServed(n int64) {
	atomic.AddInt64(&Global.BytesServed, n)
}

func RecordBytesFetched(n int64) {
	atomic.AddInt64(&Global.BytesFetched, n)
}

// LogPeriodic logs runtime metrics at the specified interval
func LogPeriodic(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		snap := Snapshot()
		elapsed := time.Since(snap.Start).Seconds()
		var throughput float64
		if elapsed > 0 {
			throughput = float64(snap.BytesServed+snap.BytesFetched) / elapsed / 1024 / 1024
		}

		logger.Sugar.Infof("[Metrics] Goroutines=%d | HeapAlloc=%dMB | Requests=%d | Discoveries=%d | Throughput=%.2fMB/s",
			runtime.NumGoroutine(),
			m.HeapAlloc/1024/1024,
			snap.RequestsServed,
			snap.Discoveries,
			throughput,
		)
	}
}
