package notify

import "github.com/prometheus/client_golang/prometheus"

var notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "escrowd",
	Subsystem: "notify",
	Name:      "notifications_total",
	Help:      "Notifications dispatched, by outcome.",
}, []string{"result"}) // "stored", "store_error"

func init() {
	prometheus.MustRegister(notificationsTotal)
}
