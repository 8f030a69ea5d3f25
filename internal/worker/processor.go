package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/stripe-webhook-listener/internal/engine"
	"github.com/Priya8975/stripe-webhook-listener/internal/metrics"
	"github.com/Priya8975/stripe-webhook-listener/internal/store"
	ws "github.com/Priya8975/stripe-webhook-listener/internal/websocket"
)

// EventStore is the slice of the Postgres store the processor writes to.
type EventStore interface {
	MarkEventProcessed(ctx context.Context, id string, attempts int) error
	RecordEventFailure(ctx context.Context, id string, attempts int, lastErr string, final bool) error
	InsertDeadLetter(ctx context.Context, rec store.DeadLetterRecord) error
}

// Notifier receives live updates for the dashboard.
type Notifier interface {
	Broadcast(n ws.Notice)
}

// RetryPolicy bounds handler attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Processor runs the event handler for a job and records the outcome.
type Processor struct {
	handler  engine.Handler
	store    EventStore
	notifier Notifier
	policy   RetryPolicy
	logger   *slog.Logger
}

func NewProcessor(handler engine.Handler, s EventStore, n Notifier, policy RetryPolicy, logger *slog.Logger) *Processor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay * 32
	}
	return &Processor{
		handler:  handler,
		store:    s,
		notifier: n,
		policy:   policy,
		logger:   logger,
	}
}

// Process runs one attempt of job.
func (p *Processor) Process(ctx context.Context, job engine.Job) (time.Duration, bool) {
	start := time.Now()
	err := p.handle(ctx, job)
	took := time.Since(start)
	metrics.ObserveHandlerDuration(took)
	elapsed := took.Milliseconds()

	log := p.logger.With(
		"event_id", job.EventID,
		"stripe_event_id", job.StripeEventID(),
		"event_type", job.EventType(),
		"delivery_id", job.DeliveryID,
		"attempt", job.Attempt,
	)

	notice := ws.Notice{
		EventID:       job.EventID,
		StripeEventID: job.StripeEventID(),
		EventType:     job.EventType(),
		DeliveryID:    job.DeliveryID,
		Attempt:       job.Attempt,
		DurationMs:    elapsed,
	}

	if err == nil {
		if serr := p.store.MarkEventProcessed(ctx, job.EventID, job.Attempt); serr != nil {
			log.Error("failed to mark event processed", "error", serr)
		}
		metrics.EventsHandled.WithLabelValues(job.EventType(), "success").Inc()
		notice.Type = ws.NoticeProcessed
		p.notifier.Broadcast(notice)
		log.Info("event handled", "duration_ms", elapsed)
		return 0, false
	}

	notice.Error = err.Error()
	final := job.Attempt >= p.policy.MaxAttempts

	if serr := p.store.RecordEventFailure(ctx, job.EventID, job.Attempt, err.Error(), final); serr != nil {
		log.Error("failed to record event failure", "error", serr)
	}

	if final {
		if serr := p.store.InsertDeadLetter(ctx, store.DeadLetterRecord{
			EventID:       job.EventID,
			TotalAttempts: job.Attempt,
			LastError:     err.Error(),
		}); serr != nil {
			log.Error("failed to insert dead letter", "error", serr)
		}
		metrics.EventsHandled.WithLabelValues(job.EventType(), "dead_lettered").Inc()
		notice.Type = ws.NoticeDeadLettered
		p.notifier.Broadcast(notice)
		log.Error("event dead-lettered", "error", err, "duration_ms", elapsed)
		return 0, false
	}

	delay := engine.Backoff(job.Attempt, p.policy.BaseDelay, p.policy.MaxDelay)
	metrics.EventsHandled.WithLabelValues(job.EventType(), "retrying").Inc()
	notice.Type = ws.NoticeRetrying
	p.notifier.Broadcast(notice)
	log.Warn("event handler failed, retrying", "error", err, "retry_in", delay.String(), "duration_ms", elapsed)
	return delay, true
}

// handle turns a handler panic into an ordinary failure.
func (p *Processor) handle(ctx context.Context, job engine.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler.Handle(ctx, job.Event)
}
