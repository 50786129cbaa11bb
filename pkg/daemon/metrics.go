package daemon

import (
	"sort"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// Metrics backs GET /v1/metrics: request totals by path and last-status
// timings (§4.H).
type Metrics struct {
	mu         deadlock.Mutex
	requests   map[string]int64
	lastDurMs  map[string]int64
	queueDepth map[string]int
}

// NewMetrics builds an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{
		requests:   make(map[string]int64),
		lastDurMs:  make(map[string]int64),
		queueDepth: make(map[string]int),
	}
}

func (m *Metrics) recordRequest(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[path]++
}

func (m *Metrics) recordDuration(path string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDurMs[path] = d.Milliseconds()
}

// SetQueueDepth records the current outbound queue depth for a streaming
// path (e.g. /v1/logs), surfaced for operators diagnosing backpressure.
func (m *Metrics) SetQueueDepth(path string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth[path] = depth
}

// MetricsSnapshot is the JSON body returned by GET /v1/metrics.
type MetricsSnapshot struct {
	RequestsByPath  map[string]int64 `json:"requestsByPath"`
	LastDurationMs  map[string]int64 `json:"lastDurationMs"`
	QueueDepthByKey map[string]int   `json:"queueDepthByKey"`
	Paths           []string         `json:"paths"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, 0, len(m.requests))
	for p := range m.requests {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	requests := make(map[string]int64, len(m.requests))
	for k, v := range m.requests {
		requests[k] = v
	}
	durations := make(map[string]int64, len(m.lastDurMs))
	for k, v := range m.lastDurMs {
		durations[k] = v
	}
	queues := make(map[string]int, len(m.queueDepth))
	for k, v := range m.queueDepth {
		queues[k] = v
	}

	return MetricsSnapshot{
		RequestsByPath:  requests,
		LastDurationMs:  durations,
		QueueDepthByKey: queues,
		Paths:           paths,
	}
}
