package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "addn_client_requests_total",
		Help: "Flight calls made by the client by method and outcome",
	}, []string{"method", "outcome"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "addn_client_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	})
)
