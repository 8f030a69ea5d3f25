package domain

import "time"

// Subscription states written by the billing projection. Stripe statuses
// are stored verbatim; these are the ones set directly.
const (
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// CustomerSubscription is the locally projected state of a Stripe subscription.
type CustomerSubscription struct {
	SubscriptionID    string     `json:"subscription_id"`
	CustomerID        string     `json:"customer_id"`
	CheckoutSessionID *string    `json:"checkout_session_id,omitempty"`
	ClientReference   *string    `json:"client_reference,omitempty"`
	Status            string     `json:"status"`
	CanceledAt        *time.Time `json:"canceled_at,omitempty"`
	LastEventID       string     `json:"last_event_id"`
	LastEventAt       time.Time  `json:"last_event_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
