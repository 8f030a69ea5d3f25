package stripehook

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/stripe/stripe-go/v79"
)

type envelope struct {
	Meta
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type decoder func(meta Meta, object json.RawMessage) (Event, error)

var decoders = map[stripe.EventType]decoder{
	TypeCheckoutSessionCompleted: func(m Meta, obj json.RawMessage) (Event, error) {
		ev := &CheckoutSessionCompleted{Meta: m}
		return ev, json.Unmarshal(obj, &ev.Session)
	},
	TypeCustomerSubscriptionCreated: func(m Meta, obj json.RawMessage) (Event, error) {
		ev := &CustomerSubscriptionCreated{Meta: m}
		return ev, json.Unmarshal(obj, &ev.Subscription)
	},
	TypeCustomerSubscriptionUpdated: func(m Meta, obj json.RawMessage) (Event, error) {
		ev := &CustomerSubscriptionUpdated{Meta: m}
		return ev, json.Unmarshal(obj, &ev.Subscription)
	},
	TypeCustomerSubscriptionDeleted: func(m Meta, obj json.RawMessage) (Event, error) {
		ev := &CustomerSubscriptionDeleted{Meta: m}
		return ev, json.Unmarshal(obj, &ev.Subscription)
	},
	TypeInvoicePaid: func(m Meta, obj json.RawMessage) (Event, error) {
		ev := &InvoicePaid{Meta: m}
		return ev, json.Unmarshal(obj, &ev.Invoice)
	},
	TypeInvoicePaymentFailed: func(m Meta, obj json.RawMessage) (Event, error) {
		ev := &InvoicePaymentFailed{Meta: m}
		return ev, json.Unmarshal(obj, &ev.Invoice)
	},
}

// Known reports whether t has a typed variant.
func Known(t stripe.EventType) bool {
	_, ok := decoders[t]
	return ok
}

// resolve must only ever see bodies that passed Verify.
func resolve(body []byte) (Event, error) {
	var document map[string]any
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, &ParseError{Kind: ErrInvalidBody, Err: err}
	}
	if document == nil {
		return nil, &ParseError{Kind: ErrInvalidBody, Err: errors.New("document is null")}
	}

	typ, _ := document["type"].(string)
	if typ == "" {
		return nil, &ParseError{Kind: ErrMissingType}
	}

	decode, ok := decoders[stripe.EventType(typ)]
	if !ok {
		return &Unknown{Meta: looseMeta(stripe.EventType(typ), document), Document: document}, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ParseError{Kind: ErrInvalidPayload, EventType: typ, Err: err}
	}

	obj := bytes.TrimSpace(env.Data.Object)
	if len(obj) == 0 || bytes.Equal(obj, []byte("null")) {
		return nil, &ParseError{Kind: ErrInvalidPayload, EventType: typ, Err: errors.New("data.object missing")}
	}
	if obj[0] != '{' {
		return nil, &ParseError{Kind: ErrInvalidPayload, EventType: typ, Err: errors.New("data.object is not an object")}
	}

	ev, err := decode(env.Meta, obj)
	if err != nil {
		return nil, &ParseError{Kind: ErrInvalidPayload, EventType: typ, Err: err}
	}
	return ev, nil
}

// looseMeta copies the envelope fields that have the expected JSON types
// and leaves the rest zero.
func looseMeta(typ stripe.EventType, document map[string]any) Meta {
	m := Meta{Type: typ}
	m.ID, _ = document["id"].(string)
	m.Livemode, _ = document["livemode"].(bool)
	m.APIVersion, _ = document["api_version"].(string)
	if created, ok := document["created"].(float64); ok {
		m.Created = int64(created)
	}
	return m
}
