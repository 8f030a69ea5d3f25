package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Priya8975/stripe-webhook-listener/internal/domain"
	"github.com/Priya8975/stripe-webhook-listener/internal/engine"
	"github.com/Priya8975/stripe-webhook-listener/internal/metrics"
	"github.com/Priya8975/stripe-webhook-listener/internal/store"
	ws "github.com/Priya8975/stripe-webhook-listener/internal/websocket"
	"github.com/Priya8975/stripe-webhook-listener/pkg/stripehook"
	"github.com/google/uuid"
)

// EventProcessor verifies and resolves a raw webhook request.
// *stripehook.Listener satisfies it.
type EventProcessor interface {
	Process(headers http.Header, body []byte) (stripehook.Event, error)
}

// EventRecorder persists verified events.
type EventRecorder interface {
	InsertEvent(ctx context.Context, rec store.EventRecord) (*domain.Event, bool, error)
}

// Claimer guards against handling the same Stripe event twice.
type Claimer interface {
	ClaimEvent(ctx context.Context, stripeEventID, owner string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, stripeEventID, owner string) error
}

// Submitter hands jobs to the worker pool without blocking.
type Submitter interface {
	TrySubmit(job engine.Job) bool
}

// Limiter is the ingress rate limiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) bool
}

// Notifier publishes live notices.
type Notifier interface {
	Broadcast(n ws.Notice)
}

type WebhookConfig struct {
	MaxBodyBytes int64
	DedupeTTL    time.Duration
	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit int
}

type WebhookHandler struct {
	listener EventProcessor
	events   EventRecorder
	claims   Claimer
	pool     Submitter
	limiter  Limiter
	notifier Notifier
	cfg      WebhookConfig
	logger   *slog.Logger
}

func NewWebhookHandler(
	listener EventProcessor,
	events EventRecorder,
	claims Claimer,
	pool Submitter,
	limiter Limiter,
	notifier Notifier,
	cfg WebhookConfig,
	logger *slog.Logger,
) *WebhookHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 * 1024
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 72 * time.Hour
	}
	return &WebhookHandler{
		listener: listener,
		events:   events,
		claims:   claims,
		pool:     pool,
		limiter:  limiter,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

type webhookResponse struct {
	Received   bool   `json:"received"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	EventID    string `json:"event_id"`
	DeliveryID string `json:"delivery_id"`
}

// Receive handles POST /webhooks/stripe.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.cfg.RateLimit > 0 && h.limiter != nil && !h.limiter.Allow(ctx, clientIP(r), h.cfg.RateLimit) {
		metrics.WebhooksReceived.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.WebhooksReceived.WithLabelValues("too_large").Inc()
			respondError(w, http.StatusRequestEntityTooLarge,
				"body exceeds "+strconv.FormatInt(h.cfg.MaxBodyBytes, 10)+" bytes")
			return
		}
		metrics.WebhooksReceived.WithLabelValues("read_error").Inc()
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	event, err := h.listener.Process(r.Header, body)
	if err != nil {
		reason := stripehook.Reason(err)
		metrics.WebhooksReceived.WithLabelValues("rejected").Inc()
		metrics.WebhooksRejected.WithLabelValues(reason).Inc()
		h.logger.Warn("webhook rejected", "reason", reason, "error", err, "remote", clientIP(r))
		respondError(w, http.StatusBadRequest, "webhook rejected: "+reason)
		return
	}

	meta := event.Metadata()
	if meta.ID == "" {
		metrics.WebhooksReceived.WithLabelValues("rejected").Inc()
		metrics.WebhooksRejected.WithLabelValues("missing_id").Inc()
		h.logger.Warn("webhook rejected", "reason", "missing_id", "event_type", meta.Type, "remote", clientIP(r))
		respondError(w, http.StatusBadRequest, "webhook rejected: missing_id")
		return
	}

	deliveryID := uuid.NewString()
	log := h.logger.With(
		"stripe_event_id", meta.ID,
		"event_type", meta.Type,
		"delivery_id", deliveryID,
	)
	metrics.EventsResolved.WithLabelValues(string(meta.Type), strconv.FormatBool(stripehook.Known(meta.Type))).Inc()

	claimed, err := h.claims.ClaimEvent(ctx, meta.ID, deliveryID, h.cfg.DedupeTTL)
	if err != nil {
		// Postgres still rejects a second row for the same id.
		log.Warn("dedupe claim unavailable", "error", err)
		claimed = true
	}
	if !claimed {
		h.duplicate(w, log, meta, "", deliveryID)
		return
	}

	stored, inserted, err := h.events.InsertEvent(ctx, store.EventRecord{
		StripeEventID: meta.ID,
		EventType:     string(meta.Type),
		Livemode:      meta.Livemode,
		Payload:       body,
	})
	if err != nil {
		h.release(log, meta.ID, deliveryID)
		metrics.WebhooksReceived.WithLabelValues("store_error").Inc()
		log.Error("failed to store event", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to store event")
		return
	}
	if !inserted && stored.Status == domain.EventStatusProcessed {
		h.duplicate(w, log, meta, stored.ID, deliveryID)
		return
	}

	job := engine.Job{
		EventID:    stored.ID,
		DeliveryID: deliveryID,
		Event:      event,
		Attempt:    stored.Attempts + 1,
		ReceivedAt: time.Now(),
	}
	if !h.pool.TrySubmit(job) {
		h.release(log, meta.ID, deliveryID)
		metrics.WebhooksReceived.WithLabelValues("overloaded").Inc()
		log.Warn("worker queue full, asking Stripe to retry", "event_id", stored.ID)
		respondError(w, http.StatusServiceUnavailable, "queue full")
		return
	}

	metrics.WebhooksReceived.WithLabelValues("accepted").Inc()
	h.notifier.Broadcast(ws.Notice{
		Type:          ws.NoticeReceived,
		EventID:       stored.ID,
		StripeEventID: meta.ID,
		EventType:     string(meta.Type),
		DeliveryID:    deliveryID,
	})
	log.Info("webhook accepted", "event_id", stored.ID, "redelivery", !inserted)

	respondJSON(w, http.StatusOK, webhookResponse{
		Received:   true,
		EventID:    meta.ID,
		DeliveryID: deliveryID,
	})
}

func (h *WebhookHandler) duplicate(w http.ResponseWriter, log *slog.Logger, meta stripehook.Meta, eventID, deliveryID string) {
	metrics.WebhooksReceived.WithLabelValues("duplicate").Inc()
	h.notifier.Broadcast(ws.Notice{
		Type:          ws.NoticeDuplicate,
		EventID:       eventID,
		StripeEventID: meta.ID,
		EventType:     string(meta.Type),
		DeliveryID:    deliveryID,
	})
	log.Info("duplicate webhook acknowledged")
	respondJSON(w, http.StatusOK, webhookResponse{
		Received:   true,
		Duplicate:  true,
		EventID:    meta.ID,
		DeliveryID: deliveryID,
	})
}

// release frees the dedupe claim so Stripe's next retry is not mistaken
// for a duplicate.
func (h *WebhookHandler) release(log *slog.Logger, stripeEventID, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.claims.ReleaseEvent(ctx, stripeEventID, owner); err != nil {
		log.Warn("failed to release dedupe claim", "error", err)
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
