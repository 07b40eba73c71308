package differ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	diffDuration *prometheus.HistogramVec
	diffsTotal   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		diffDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "amm",
			Subsystem: "differ",
			Name:      "diff_duration_seconds",
			Help:      "Time taken to diff two pool states.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
		}, []string{}),
		diffsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amm",
			Subsystem: "differ",
			Name:      "diffs_total",
			Help:      "State diffs computed, by outcome.",
		}, []string{"status"}),
	}
}
