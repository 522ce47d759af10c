package webhook

import "github.com/prometheus/client_golang/prometheus"

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Gateway webhook deliveries by event type and outcome",
		},
		[]string{"event", "outcome"},
	)

	reconciliationGapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_gaps_total",
			Help: "Webhook deliveries that contradicted local money state",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(webhookEventsTotal)
	prometheus.MustRegister(reconciliationGapsTotal)
}
