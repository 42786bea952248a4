package pqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPromotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "extpq",
		Name:      "promotions_total",
		Help:      "Total number of segments promoted to the next level.",
	}, []string{"from_level"})

	metricCompactionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "extpq",
		Name:      "compactions_total",
		Help:      "Total number of loser-tree compaction passes.",
	})

	metricActiveLevels = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "extpq",
		Name:      "active_levels",
		Help:      "Current number of active levels.",
	})

	metricMemConsBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "extpq",
		Name:      "mem_cons_bytes",
		Help:      "Most recently observed memory consumption of the queue.",
	})
)
