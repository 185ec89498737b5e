package metrics

import (
	"sort"
	"sync"
	"time"

	"bookfeed/logger"
)

// DefaultLatencySamples is the number of latency samples kept.
const DefaultLatencySamples = 1000

// LatencyRing keeps the most recent exchange-to-local latency samples in a
// fixed size buffer. Older samples are overwritten.
type LatencyRing struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
}

// NewLatencyRing returns a ring holding up to size samples.
func NewLatencyRing(size int) *LatencyRing {
	if size <= 0 {
		size = DefaultLatencySamples
	}
	return &LatencyRing{samples: make([]time.Duration, size)}
}

// Add records a sample.
func (r *LatencyRing) Add(d time.Duration) {
	r.mu.Lock()
	r.samples[r.next] = d
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Len is the number of samples held.
func (r *LatencyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.samples)
	}
	return r.next
}

// Cap is the ring size.
func (r *LatencyRing) Cap() int { return len(r.samples) }

// LatencyStats summarizes the samples in the ring.
type LatencyStats struct {
	Count int
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
}

// Stats computes the summary over the held samples.
func (r *LatencyRing) Stats() LatencyStats {
	r.mu.Lock()
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	sorted := make([]time.Duration, n)
	copy(sorted, r.samples[:n])
	r.mu.Unlock()

	if n == 0 {
		return LatencyStats{}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return LatencyStats{
		Count: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Mean:  sum / time.Duration(n),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
	}
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(p*float64(len(sorted)) + 0.5)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// Fields renders the summary for a log entry, in milliseconds.
func (s LatencyStats) Fields() logger.Fields {
	return logger.Fields{
		"latency_samples": s.Count,
		"latency_min_ms":  ms(s.Min),
		"latency_max_ms":  ms(s.Max),
		"latency_mean_ms": ms(s.Mean),
		"latency_p50_ms":  ms(s.P50),
		"latency_p95_ms":  ms(s.P95),
	}
}
