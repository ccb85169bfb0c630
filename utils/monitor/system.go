package monitor

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/michaelpento.lv/arbengine/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Registry is what the monitor needs from a prometheus registry
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// SystemMonitor samples process runtime gauges and logs a health summary of
// every engine metric on a fixed interval
type SystemMonitor struct {
	ctx      context.Context
	cancel   context.CancelFunc
	gatherer prometheus.Gatherer
	interval time.Duration
	logger   *zap.Logger
	metrics  struct {
		goroutines  prometheus.Gauge
		heapObjects prometheus.Gauge
		heapAlloc   prometheus.Gauge
		gcPause     prometheus.Gauge
	}
	wg sync.WaitGroup
}

// NewSystemMonitor registers the runtime gauges with reg and starts reporting
func NewSystemMonitor(ctx context.Context, reg Registry, interval time.Duration, logger *zap.Logger) (*SystemMonitor, error) {
	ctx, cancel := context.WithCancel(ctx)
	m := &SystemMonitor{
		ctx:      ctx,
		cancel:   cancel,
		gatherer: reg,
		interval: interval,
		logger:   logger,
	}

	m.metrics.goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbengine",
		Name:      "goroutines",
		Help:      "Current number of goroutines",
	})
	m.metrics.heapObjects = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbengine",
		Name:      "heap_objects",
		Help:      "Current number of heap objects",
	})
	m.metrics.heapAlloc = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbengine",
		Name:      "heap_alloc_bytes",
		Help:      "Current heap allocation in bytes",
	})
	m.metrics.gcPause = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbengine",
		Name:      "gc_pause_seconds",
		Help:      "Duration of the last GC pause",
	})

	for _, c := range []prometheus.Collector{m.metrics.goroutines, m.metrics.heapObjects, m.metrics.heapAlloc, m.metrics.gcPause} {
		if err := reg.Register(c); err != nil {
			cancel()
			return nil, err
		}
	}

	if interval <= 0 {
		m.interval = 30 * time.Second
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.monitor()
	}()

	return m, nil
}

// monitor logs a summary every interval until stopped
func (m *SystemMonitor) monitor() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.report()
		}
	}
}

func (m *SystemMonitor) report() {
	snapshot, err := m.GetMetrics()
	if err != nil {
		m.logger.Error("Failed to collect metrics", zap.Error(err))
		return
	}

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Float64(k, snapshot[k]))
	}
	m.logger.Info("Health summary", fields...)
}

// collectMetrics refreshes the runtime gauges
func (m *SystemMonitor) collectMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.metrics.goroutines.Set(float64(runtime.NumGoroutine()))
	m.metrics.heapObjects.Set(float64(memStats.HeapObjects))
	m.metrics.heapAlloc.Set(float64(memStats.HeapAlloc))
	m.metrics.gcPause.Set(float64(memStats.PauseNs[(memStats.NumGC+255)%256]) / float64(time.Second))
}

// GetMetrics refreshes the runtime gauges and returns a snapshot of every engine metric
func (m *SystemMonitor) GetMetrics() (map[string]float64, error) {
	m.collectMetrics()
	return metrics.Snapshot(m.gatherer)
}

// Cleanup stops reporting
func (m *SystemMonitor) Cleanup() error {
	m.cancel()
	m.wg.Wait()
	return nil
}
