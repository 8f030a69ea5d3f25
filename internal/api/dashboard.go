package api

import (
	"context"
	"net/http"

	"github.com/Priya8975/stripe-webhook-listener/internal/store"
)

// MetricsSource supplies the aggregated event counters.
type MetricsSource interface {
	GetEventMetrics(ctx context.Context) (*store.EventMetrics, error)
}

// QueueStats reports worker queue occupancy.
type QueueStats interface {
	QueueLen() int
	QueueCap() int
}

// ClientCounter reports connected live-feed clients.
type ClientCounter interface {
	ClientCount() int
}

type DashboardHandler struct {
	store MetricsSource
	queue QueueStats
	hub   ClientCounter
}

func NewDashboardHandler(s MetricsSource, q QueueStats, hub ClientCounter) *DashboardHandler {
	return &DashboardHandler{store: s, queue: q, hub: hub}
}

type metricsResponse struct {
	store.EventMetrics
	QueueDepth       int `json:"queue_depth"`
	QueueCapacity    int `json:"queue_capacity"`
	WebSocketClients int `json:"websocket_clients"`
}

// Metrics returns aggregated system metrics for the dashboard.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetEventMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		EventMetrics:     *m,
		QueueDepth:       h.queue.QueueLen(),
		QueueCapacity:    h.queue.QueueCap(),
		WebSocketClients: h.hub.ClientCount(),
	})
}
