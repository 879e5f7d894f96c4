package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "addn_cpu_pool_hits_total",
		Help: "Total number of buffers served from the CPU backend pool",
	}, []string{"kind"})

	poolMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "addn_cpu_pool_misses_total",
		Help: "Total number of buffer pool misses (allocations)",
	}, []string{"kind"})
)
