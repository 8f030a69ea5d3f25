// Package billing keeps a local copy of each customer's subscription state,
// driven by Stripe events.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/stripe-webhook-listener/internal/domain"
	"github.com/Priya8975/stripe-webhook-listener/internal/store"
	"github.com/Priya8975/stripe-webhook-listener/pkg/stripehook"
	"github.com/stripe/stripe-go/v79"
)

type SubscriptionStore interface {
	ApplySubscriptionUpdate(ctx context.Context, u store.SubscriptionUpdate) (bool, error)
}

// Projector implements engine.Handler.
type Projector struct {
	store  SubscriptionStore
	logger *slog.Logger
	now    func() time.Time
}

func NewProjector(s SubscriptionStore, logger *slog.Logger) *Projector {
	return &Projector{store: s, logger: logger, now: time.Now}
}

func (p *Projector) Handle(ctx context.Context, event stripehook.Event) error {
	update, ok := p.updateFor(event)
	if !ok {
		p.logger.Debug("event has no subscription effect",
			"stripe_event_id", event.Metadata().ID,
			"event_type", event.Metadata().Type,
		)
		return nil
	}

	changed, err := p.store.ApplySubscriptionUpdate(ctx, update)
	if err != nil {
		return fmt.Errorf("projecting %s: %w", event.Metadata().Type, err)
	}
	if !changed {
		p.logger.Info("stale subscription update ignored",
			"stripe_event_id", update.EventID,
			"subscription_id", update.SubscriptionID,
		)
		return nil
	}

	p.logger.Info("subscription updated",
		"stripe_event_id", update.EventID,
		"subscription_id", update.SubscriptionID,
		"customer_id", update.CustomerID,
		"status", update.Status,
	)
	return nil
}

func (p *Projector) updateFor(event stripehook.Event) (store.SubscriptionUpdate, bool) {
	meta := event.Metadata()
	u := store.SubscriptionUpdate{
		EventID: meta.ID,
		EventAt: p.eventTime(meta),
	}

	switch e := event.(type) {
	case *stripehook.CheckoutSessionCompleted:
		if e.Session.Subscription == nil || e.Session.Subscription.ID == "" {
			// one-off payment
			return u, false
		}
		u.SubscriptionID = e.Session.Subscription.ID
		u.CustomerID = customerID(e.Session.Customer)
		u.CheckoutSessionID = optional(e.Session.ID)
		u.ClientReference = optional(e.Session.ClientReferenceID)
		u.Status = domain.SubscriptionActive

	case *stripehook.CustomerSubscriptionCreated:
		fromSubscription(&u, &e.Subscription)
	case *stripehook.CustomerSubscriptionUpdated:
		fromSubscription(&u, &e.Subscription)

	case *stripehook.CustomerSubscriptionDeleted:
		fromSubscription(&u, &e.Subscription)
		u.Status = domain.SubscriptionCanceled
		canceledAt := u.EventAt
		if e.Subscription.CanceledAt > 0 {
			canceledAt = time.Unix(e.Subscription.CanceledAt, 0)
		}
		u.CanceledAt = &canceledAt

	case *stripehook.InvoicePaid:
		if !fromInvoice(&u, &e.Invoice) {
			return u, false
		}
		u.Status = domain.SubscriptionActive

	case *stripehook.InvoicePaymentFailed:
		if !fromInvoice(&u, &e.Invoice) {
			return u, false
		}
		u.Status = domain.SubscriptionPastDue

	default:
		return u, false
	}

	return u, u.SubscriptionID != ""
}

func (p *Projector) eventTime(meta stripehook.Meta) time.Time {
	if meta.Created > 0 {
		return time.Unix(meta.Created, 0)
	}
	return p.now()
}

func fromSubscription(u *store.SubscriptionUpdate, sub *stripe.Subscription) {
	u.SubscriptionID = sub.ID
	u.CustomerID = customerID(sub.Customer)
	u.Status = string(sub.Status)
	if u.Status == "" {
		u.Status = domain.SubscriptionActive
	}
}

func fromInvoice(u *store.SubscriptionUpdate, inv *stripe.Invoice) bool {
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return false
	}
	u.SubscriptionID = inv.Subscription.ID
	u.CustomerID = customerID(inv.Customer)
	return true
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
