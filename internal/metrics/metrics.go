// Package metrics exports engine counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the engine's Prometheus instruments.
type Collector struct {
	RegistrationsTotal  prometheus.Counter
	RegistrationRetries prometheus.Counter
	ReconnectsTotal     prometheus.Counter

	CallsTotal    *prometheus.CounterVec
	CallsActive   prometheus.Gauge
	CallDuration  prometheus.Histogram
	MOSObserved   prometheus.Histogram
	MessagesTotal *prometheus.CounterVec
}

// NewCollector registers the engine's metrics against reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		RegistrationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vertolink",
			Name:      "registrations_total",
			Help:      "Successful gateway registrations.",
		}),
		RegistrationRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vertolink",
			Name:      "registration_retries_total",
			Help:      "Gateway state requests retried after a timeout.",
		}),
		ReconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vertolink",
			Name:      "reconnects_total",
			Help:      "Full channel reconnections performed.",
		}),
		CallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vertolink",
			Name:      "calls_total",
			Help:      "Calls placed or received.",
		}, []string{"direction"}),
		CallsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vertolink",
			Name:      "calls_active",
			Help:      "Calls currently in the active table.",
		}),
		CallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vertolink",
			Name:      "call_duration_seconds",
			Help:      "Call duration from creation to teardown.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		MOSObserved: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vertolink",
			Name:      "call_mos",
			Help:      "MOS scores observed across quality samples.",
			Buckets:   prometheus.LinearBuckets(1, 0.5, 9),
		}),
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vertolink",
			Name:      "messages_total",
			Help:      "Signaling messages processed, by method.",
		}, []string{"method", "direction"}),
	}
}
