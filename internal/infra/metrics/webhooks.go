package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookRequestsTotal,
		webhookLatency,
	)
}

var (
	webhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Inbound gateway callbacks by provider and outcome.",
		},
		[]string{"provider", "outcome"}, // 'ok', 'auth_failed', 'rejected', 'error'
	)

	webhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_latency_ms",
			Help:    "Webhook handling latency distribution in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"provider"},
	)
)

func IncWebhook(provider, outcome string) {
	webhookRequestsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func ObserveWebhookLatency(provider string, ms float64) {
	webhookLatency.WithLabelValues(norm(provider)).Observe(ms)
}
