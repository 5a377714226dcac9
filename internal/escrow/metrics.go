package escrow

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "escrow",
		Name:      "transitions_total",
		Help:      "Committed escrow state transitions by edge.",
	}, []string{"from", "to"})

	evaluateBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "escrow",
		Name:      "evaluate_blocked_total",
		Help:      "Release evaluations blocked, by unsatisfied precondition.",
	}, []string{"reason"})

	releaseAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "escrow",
		Name:      "release_attempts_total",
		Help:      "Custody release calls attempted, including retries.",
	})

	releaseFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "escrow",
		Name:      "release_failures_total",
		Help:      "Release paths that did not complete, by kind.",
	}, []string{"kind"}) // "rejected", "exhausted"

	depositEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "escrow",
		Name:      "deposit_events_total",
		Help:      "Deposit observations processed, by outcome.",
	}, []string{"result"}) // "funded", "partial", "duplicate", "unconfirmed", "late", "unknown_address", "invalid"

	sweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "escrow",
		Name:      "sweeps_total",
		Help:      "Supervisor sweep passes completed.",
	})

	sweepExpirations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "escrowd",
		Subsystem: "escrow",
		Name:      "sweep_expirations_total",
		Help:      "Escrow transactions expired by the supervisor.",
	})
)

func init() {
	prometheus.MustRegister(
		transitionsTotal,
		evaluateBlocked,
		releaseAttemptsTotal,
		releaseFailures,
		depositEventsTotal,
		sweepsTotal,
		sweepExpirations,
	)
}
