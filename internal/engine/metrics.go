package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pce_dispatcher_tasks_total",
			Help: "Total number of dispatched controller tasks.",
		},
		[]string{"task"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pce_dispatcher_queue_depth",
			Help: "Number of tasks waiting for a worker.",
		},
	)

	pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pce_poll_duration_seconds",
			Help:    "Duration of one scheduler poll cycle in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(tasksTotal)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(pollDuration)
}
