// Package metrics exposes the Prometheus series the worker-pool substrate
// emits. Metric identity is the pool's name baked into the series name
// itself (matching the bvar-per-name pattern the pools were ported from),
// so gauges and histograms are created and registered lazily the first
// time a given pool name is seen rather than declared as package globals.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// WorkerSetMetrics holds the two counters an ExecqWorkerPool publishes.
type WorkerSetMetrics struct {
	TotalTaskCount   prometheus.Gauge
	PendingTaskCount prometheus.Gauge
}

// SimpleWorkerSetMetrics holds the counters and latency histograms a
// SimpleWorkerPool publishes.
type SimpleWorkerSetMetrics struct {
	TotalTaskCount   prometheus.Gauge
	PendingTaskCount prometheus.Gauge
	QueueWaitLatency prometheus.Histogram
	QueueRunLatency  prometheus.Histogram
}

var (
	mu          sync.Mutex
	workerSets  = map[string]*WorkerSetMetrics{}
	simpleSets  = map[string]*SimpleWorkerSetMetrics{}
	latencyBkts = []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000}
)

// ForWorkerSet returns (creating and registering on first use) the metrics
// for an execq worker pool named name.
func ForWorkerSet(name string) *WorkerSetMetrics {
	mu.Lock()
	defer mu.Unlock()

	if m, ok := workerSets[name]; ok {
		return m
	}

	m := &WorkerSetMetrics{
		TotalTaskCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dingo_worker_set_" + name + "_total_task_count",
			Help: "Total number of tasks ever accepted by worker set " + name,
		}),
		PendingTaskCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dingo_worker_set_" + name + "_pending_task_count",
			Help: "Number of accepted-but-not-finished tasks in worker set " + name,
		}),
	}
	prometheus.MustRegister(m.TotalTaskCount, m.PendingTaskCount)
	workerSets[name] = m
	return m
}

// ForSimpleWorkerSet returns (creating and registering on first use) the
// metrics for a simple worker pool named name.
func ForSimpleWorkerSet(name string) *SimpleWorkerSetMetrics {
	mu.Lock()
	defer mu.Unlock()

	if m, ok := simpleSets[name]; ok {
		return m
	}

	m := &SimpleWorkerSetMetrics{
		TotalTaskCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dingo_simple_worker_set_" + name + "_total_task_count",
			Help: "Total number of tasks ever accepted by simple worker set " + name,
		}),
		PendingTaskCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dingo_simple_worker_set_" + name + "_pending_task_count",
			Help: "Number of accepted-but-not-finished tasks in simple worker set " + name,
		}),
		QueueWaitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dingo_simple_worker_set_" + name + "_queue_wait_latency",
			Help:    "Microseconds between task creation and the start of Run() in simple worker set " + name,
			Buckets: latencyBkts,
		}),
		QueueRunLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dingo_simple_worker_set_" + name + "_queue_run_latency",
			Help:    "Microseconds spent inside Run() in simple worker set " + name,
			Buckets: latencyBkts,
		}),
	}
	prometheus.MustRegister(m.TotalTaskCount, m.PendingTaskCount, m.QueueWaitLatency, m.QueueRunLatency)
	simpleSets[name] = m
	return m
}

// reset is a test-only escape hatch letting pool tests reuse a pool name
// across cases without tripping prometheus's duplicate-registration panic.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	for _, m := range workerSets {
		prometheus.Unregister(m.TotalTaskCount)
		prometheus.Unregister(m.PendingTaskCount)
	}
	for _, m := range simpleSets {
		prometheus.Unregister(m.TotalTaskCount)
		prometheus.Unregister(m.PendingTaskCount)
		prometheus.Unregister(m.QueueWaitLatency)
		prometheus.Unregister(m.QueueRunLatency)
	}
	workerSets = map[string]*WorkerSetMetrics{}
	simpleSets = map[string]*SimpleWorkerSetMetrics{}
}

// Reset clears all registered pool metrics. Exported for tests that create
// many short-lived pools sharing names across test cases.
func Reset() { reset() }

// Timer is a small helper for timing operations in microseconds, matching
// the granularity the pools record latency at.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedUs returns the elapsed time in microseconds since the timer started.
func (t *Timer) ElapsedUs() int64 {
	return time.Since(t.start).Microseconds()
}
