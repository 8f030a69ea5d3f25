package api

import (
	"net/http"

	"github.com/Priya8975/stripe-webhook-listener/internal/store"
	ws "github.com/Priya8975/stripe-webhook-listener/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Store   *store.PostgresStore
	Webhook *WebhookHandler
	Queue   QueueStats
	Hub     *ws.Hub
	Health  map[string]Pinger
	Version string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	eventHandler := NewEventHandler(d.Store)
	dlqHandler := NewDeadLetterHandler(d.Store)
	subHandler := NewSubscriptionHandler(d.Store)
	dashHandler := NewDashboardHandler(d.Store, d.Queue, d.Hub)

	// Stripe posts here; no CORS.
	r.Post("/webhooks/stripe", d.Webhook.Receive)

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(corsMiddleware)

		r.Get("/ws", d.Hub.HandleWebSocket)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/health", HealthHandler(d.Version, d.Health))

			r.Route("/events", func(r chi.Router) {
				r.Get("/", eventHandler.List)
				r.Get("/{id}", eventHandler.Get)
			})

			r.Route("/dead-letters", func(r chi.Router) {
				r.Get("/", dlqHandler.List)
				r.Get("/{id}", dlqHandler.Get)
				r.Post("/{id}/resolve", dlqHandler.Resolve)
			})

			r.Get("/subscriptions/{id}", subHandler.Get)
			r.Get("/customers/{id}/subscriptions", subHandler.ListForCustomer)

			r.Get("/metrics", dashHandler.Metrics)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
