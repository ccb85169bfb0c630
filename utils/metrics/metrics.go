package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arbengine"

// EngineMetrics holds every collector the engine reports
type EngineMetrics struct {
	OpportunitiesDetected *prometheus.CounterVec
	StrategyErrors        *prometheus.CounterVec
	ScanDuration          prometheus.Histogram
	SkippedTicks          prometheus.Counter
	Rejections            *prometheus.CounterVec
	Executions            *prometheus.CounterVec
	SuccessRate           *prometheus.GaugeVec
	GasPriceGwei          *prometheus.GaugeVec
	RealizedProfitUSD     *prometheus.CounterVec
	CoordinatorState      prometheus.Gauge
	NotificationsDropped  prometheus.Counter
}

// NewEngineMetrics registers the engine collectors with reg
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	factory := promauto.With(reg)

	return &EngineMetrics{
		OpportunitiesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_detected_total",
			Help:      "Total number of opportunities produced by detection",
		}, []string{"network", "strategy"}),
		StrategyErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_errors_total",
			Help:      "Total number of failed strategy scans",
		}, []string{"network", "strategy"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Time taken by one detection pass",
			Buckets:   prometheus.DefBuckets,
		}),
		SkippedTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Total number of scan ticks skipped because a scan was in flight",
		}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Total number of opportunities rejected by preflight checks",
		}, []string{"network", "check"}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of execution attempts by outcome",
		}, []string{"network", "outcome"}),
		SuccessRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "success_rate",
			Help:      "Rolling execution success rate",
		}, []string{"network"}),
		GasPriceGwei: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gas_price_gwei",
			Help:      "Latest sampled gas price in gwei",
		}, []string{"network"}),
		RealizedProfitUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_profit_usd_total",
			Help:      "Total realized profit in USD",
		}, []string{"network"}),
		CoordinatorState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coordinator_state",
			Help:      "Current execution coordinator state (0 = idle)",
		}),
		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Total number of notifications dropped because the queue was full",
		}),
	}
}

// NewTestMetrics returns metrics registered with a private registry
func NewTestMetrics() *EngineMetrics {
	return NewEngineMetrics(prometheus.NewRegistry())
}
