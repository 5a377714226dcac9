package custody

import "github.com/prometheus/client_golang/prometheus"

var (
	custodyRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "custody",
		Name:      "requests_total",
		Help:      "Total custody provider requests by result.",
	}, []string{"result"}) // "ok", "rejected", "not_found", "transport_error", "upstream_error"

	custodyRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "escrowd",
		Subsystem: "custody",
		Name:      "request_duration_seconds",
		Help:      "Custody provider request duration by endpoint.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	custodyBreakerRejects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "custody",
		Name:      "breaker_rejects_total",
		Help:      "Requests shed by the custody circuit breaker.",
	})
)

func init() {
	prometheus.MustRegister(custodyRequestsTotal, custodyRequestDuration, custodyBreakerRejects)
}
