package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector function-master exposes.
// Components share one *Metrics (every field is itself a pointer to a
// shared collector) and increment/set on the hot path.
type Metrics struct {
	KillAttemptsTotal  *prometheus.CounterVec
	KillOutcomesTotal  *prometheus.CounterVec
	ReconcileDriftKeys *prometheus.GaugeVec
	AbnormalNodes      prometheus.Gauge
	BundleReschedules  *prometheus.CounterVec
}

// NewMetrics registers every collector against reg and returns the
// bundle. Pass a fresh *prometheus.Registry in tests to avoid colliding
// with the global default registry across test binaries.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		KillAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "function_master",
			Subsystem: "kill_retry",
			Name:      "attempts_total",
			Help:      "Number of kill/signal forward attempts made to local controllers.",
		}, []string{"signal"}),
		KillOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "function_master",
			Subsystem: "kill_retry",
			Name:      "outcomes_total",
			Help:      "Terminal outcomes of kill/signal retry attempts.",
		}, []string{"outcome"}),
		ReconcileDriftKeys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "function_master",
			Subsystem: "reconciler",
			Name:      "drift_keys",
			Help:      "Keys handled by the last watch-sync sweep, by prefix and direction: applied counts every upstream key re-applied, healed_missing counts cached keys absent upstream.",
		}, []string{"prefix", "direction"}),
		AbnormalNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "function_master",
			Subsystem: "roster",
			Name:      "abnormal_nodes",
			Help:      "Current size of the abnormal-scheduler node set.",
		}),
		BundleReschedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "function_master",
			Subsystem: "resource_group",
			Name:      "bundle_reschedules_total",
			Help:      "Bundle placement requests issued to the scheduler, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.KillAttemptsTotal, m.KillOutcomesTotal, m.ReconcileDriftKeys, m.AbnormalNodes, m.BundleReschedules)
	return m
}
