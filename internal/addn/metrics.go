package addn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "addn_invocations_total",
		Help: "Total number of AddN calls that passed validation, by element kind",
	}, []string{"kind"})

	invocationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "addn_errors_total",
		Help: "Total number of failed AddN calls by reason",
	}, []string{"reason"})

	inputsPerCall = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "addn_inputs",
		Help:    "Number of inputs per AddN call",
		Buckets: []float64{1, 2, 4, 8, 9, 16, 32, 64, 128},
	})
)
