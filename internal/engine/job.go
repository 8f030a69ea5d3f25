package engine

import (
	"context"
	"time"

	"github.com/Priya8975/stripe-webhook-listener/pkg/stripehook"
)

// Job is one verified Stripe event waiting for its handler.
type Job struct {
	// EventID is the stripe_events row id.
	EventID    string
	DeliveryID string
	Event      stripehook.Event
	Attempt    int
	ReceivedAt time.Time
}

// StripeEventID returns the id Stripe assigned to the event.
func (j Job) StripeEventID() string {
	return j.Event.Metadata().ID
}

// EventType returns the Stripe event type string.
func (j Job) EventType() string {
	return string(j.Event.Metadata().Type)
}

// Handler runs the business side effects of an event. Returning an error
// schedules a retry.
type Handler interface {
	Handle(ctx context.Context, event stripehook.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event stripehook.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event stripehook.Event) error {
	return f(ctx, event)
}

// Backoff returns the delay before attempt+1: base doubled per attempt,
// capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
