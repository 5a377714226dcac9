package deposit

import "github.com/prometheus/client_golang/prometheus"

var (
	webhooksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "deposit",
		Name:      "webhooks_total",
		Help:      "Deposit webhooks received, by outcome.",
	}, []string{"result"}) // "accepted", "bad_signature", "bad_payload", "read_error", "error"

	pollChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "deposit",
		Name:      "poll_checks_total",
		Help:      "Fallback deposit status checks, by outcome.",
	}, []string{"result"}) // "observed", "none", "error"

	pollSweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "deposit",
		Name:      "poll_sweeps_total",
		Help:      "Fallback poll passes completed.",
	})
)

func init() {
	prometheus.MustRegister(webhooksTotal, pollChecksTotal, pollSweepsTotal)
}
