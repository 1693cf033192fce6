// Package ringprom exposes chash.Ring events as Prometheus metrics.
package ringprom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gobwas/chash"
)

const namespace = "chash"

// Metrics collects ring events fed by the hooks returned from Trace().
// It implements prometheus.Collector.
type Metrics struct {
	freezes        prometheus.Counter
	freezeDuration prometheus.Histogram
	virtualNodes   prometheus.Gauge
	targets        prometheus.Gauge
	lookups        *prometheus.CounterVec
	errors         *prometheus.CounterVec
	serialized     prometheus.Gauge
}

var _ prometheus.Collector = (*Metrics)(nil)

// New creates metrics. Labels are attached to every metric as constant
// labels; they may be used to distinguish rings within one registry.
func New(labels prometheus.Labels) *Metrics {
	return &Metrics{
		freezes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "freezes_total",
			Help:        "Total number of continuum rebuilds.",
			ConstLabels: labels,
		}),
		freezeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "freeze_duration_seconds",
			Help:        "Latency of continuum rebuilds.",
			ConstLabels: labels,
			// 10us .. ~1.3s.
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		virtualNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "virtual_nodes",
			Help:        "Number of points on the last built continuum.",
			ConstLabels: labels,
		}),
		targets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "targets",
			Help:        "Current number of targets.",
			ConstLabels: labels,
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "lookups_total",
			Help:        "Total number of lookups.",
			ConstLabels: labels,
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "errors_total",
			Help:        "Total number of failed ring operations.",
			ConstLabels: labels,
		}, []string{"op", "kind"}),
		serialized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "serialized_bytes",
			Help:        "Size of the last encoded or decoded ring.",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.freezes,
		m.freezeDuration,
		m.virtualNodes,
		m.targets,
		m.lookups,
		m.errors,
		m.serialized,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Trace returns ring hooks which update m.
func (m *Metrics) Trace() chash.Trace {
	return chash.Trace{
		OnTargets: func(info chash.TargetsInfo) {
			m.targets.Set(float64(info.Count))
		},
		OnFreeze: func(chash.FreezeStartInfo) func(chash.FreezeDoneInfo) {
			return func(info chash.FreezeDoneInfo) {
				if info.Error != nil {
					m.fail("freeze", info.Error)
					return
				}
				m.freezes.Inc()
				m.freezeDuration.Observe(info.Latency.Seconds())
				m.virtualNodes.Set(float64(info.VirtualNodes))
			}
		},
		OnLookup: func(start chash.LookupStartInfo) func(chash.LookupDoneInfo) {
			op := "lookup"
			if start.Balance {
				op = "balance"
			}
			return func(info chash.LookupDoneInfo) {
				m.lookups.WithLabelValues(op).Inc()
				if info.Error != nil {
					m.fail(op, info.Error)
				}
			}
		},
		OnMarshal: func() func(chash.MarshalDoneInfo) {
			return func(info chash.MarshalDoneInfo) {
				if info.Error != nil {
					m.fail("marshal", info.Error)
					return
				}
				m.serialized.Set(float64(info.Size))
			}
		},
		OnUnmarshal: func(start chash.UnmarshalStartInfo) func(chash.UnmarshalDoneInfo) {
			return func(info chash.UnmarshalDoneInfo) {
				if info.Error != nil {
					m.fail("unmarshal", info.Error)
					return
				}
				m.serialized.Set(float64(start.Size))
				m.targets.Set(float64(info.Targets))
				m.virtualNodes.Set(float64(info.VirtualNodes))
			}
		},
	}
}

func (m *Metrics) fail(op string, err error) {
	m.errors.WithLabelValues(op, chash.KindOf(err)).Inc()
}
