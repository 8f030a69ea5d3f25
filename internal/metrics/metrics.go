package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_webhooks_received_total",
		Help: "Webhook requests received, labelled by outcome.",
	}, []string{"outcome"})

	WebhooksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_webhooks_rejected_total",
		Help: "Webhook requests rejected by verification or parsing, labelled by reason.",
	}, []string{"reason"})

	EventsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_events_resolved_total",
		Help: "Verified events, labelled by event type and whether a typed variant exists.",
	}, []string{"event_type", "known"})

	EventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_events_handled_total",
		Help: "Handler runs, labelled by event type and status.",
	}, []string{"event_type", "status"})

	HandlerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stripe_event_handler_duration_seconds",
		Help:    "Event handler latency in seconds.",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stripe_event_queue_utilization_ratio",
		Help: "Current worker queue utilization (0–1).",
	})
)

// ObserveHandlerDuration records one handler run.
func ObserveHandlerDuration(d time.Duration) {
	HandlerDuration.Observe(d.Seconds())
}
