package stripehook

import (
	"github.com/stripe/stripe-go/v79"
)

// Event types with a typed variant.
const (
	TypeCheckoutSessionCompleted    stripe.EventType = "checkout.session.completed"
	TypeCustomerSubscriptionCreated stripe.EventType = "customer.subscription.created"
	TypeCustomerSubscriptionUpdated stripe.EventType = "customer.subscription.updated"
	TypeCustomerSubscriptionDeleted stripe.EventType = "customer.subscription.deleted"
	TypeInvoicePaid                 stripe.EventType = "invoice.paid"
	TypeInvoicePaymentFailed        stripe.EventType = "invoice.payment_failed"
)

// Meta is the envelope shared by every Stripe event.
type Meta struct {
	ID         string           `json:"id"`
	Type       stripe.EventType `json:"type"`
	Created    int64            `json:"created"`
	Livemode   bool             `json:"livemode"`
	APIVersion string           `json:"api_version"`
}

// Event is one of the variants below. Callers type-switch on it:
//
//	switch e := ev.(type) {
//	case *stripehook.CheckoutSessionCompleted:
//	case *stripehook.Unknown:
//	}
type Event interface {
	Metadata() Meta
	isEvent()
}

func (m Meta) Metadata() Meta { return m }
func (Meta) isEvent()         {}

// CheckoutSessionCompleted carries the stripe.CheckoutSession of a checkout.session.completed event.
type CheckoutSessionCompleted struct {
	Meta
	Session stripe.CheckoutSession
}

// CustomerSubscriptionCreated carries the stripe.Subscription of a customer.subscription.created event.
type CustomerSubscriptionCreated struct {
	Meta
	Subscription stripe.Subscription
}

// CustomerSubscriptionUpdated carries the stripe.Subscription of a customer.subscription.updated event.
type CustomerSubscriptionUpdated struct {
	Meta
	Subscription stripe.Subscription
}

// CustomerSubscriptionDeleted carries the stripe.Subscription of a customer.subscription.deleted event.
type CustomerSubscriptionDeleted struct {
	Meta
	Subscription stripe.Subscription
}

// InvoicePaid carries the stripe.Invoice of an invoice.paid event.
type InvoicePaid struct {
	Meta
	Invoice stripe.Invoice
}

// InvoicePaymentFailed carries the stripe.Invoice of an invoice.payment_failed event.
type InvoicePaymentFailed struct {
	Meta
	Invoice stripe.Invoice
}

// Unknown carries the whole parsed document for event types without a
// typed variant.
type Unknown struct {
	Meta
	Document map[string]any
}
