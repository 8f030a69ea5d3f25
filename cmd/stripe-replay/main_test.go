package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Priya8975/stripe-webhook-listener/pkg/stripehook"
)

func TestSampleEvent_ResolvesToTypedVariant(t *testing.T) {
	const secret = "whsec_replay"
	now := time.Now()

	tests := []struct {
		eventType string
		check     func(stripehook.Event) bool
	}{
		{string(stripehook.TypeCheckoutSessionCompleted), func(e stripehook.Event) bool {
			s, ok := e.(*stripehook.CheckoutSessionCompleted)
			return ok && s.Session.Subscription != nil && s.Session.Subscription.ID == "sub_replay"
		}},
		{string(stripehook.TypeCustomerSubscriptionDeleted), func(e stripehook.Event) bool {
			s, ok := e.(*stripehook.CustomerSubscriptionDeleted)
			return ok && s.Subscription.CanceledAt == now.Unix()
		}},
		{string(stripehook.TypeInvoicePaymentFailed), func(e stripehook.Event) bool {
			_, ok := e.(*stripehook.InvoicePaymentFailed)
			return ok
		}},
		{"charge.refunded", func(e stripehook.Event) bool {
			_, ok := e.(*stripehook.Unknown)
			return ok
		}},
	}

	l, err := stripehook.NewListener(stripehook.Config{Secret: secret})
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			body, err := sampleEvent(tt.eventType, "", now)
			if err != nil {
				t.Fatalf("sampleEvent: %v", err)
			}
			h := http.Header{}
			h.Set(stripehook.SignatureHeaderName, stripehook.SignatureHeader(now, body, secret))

			ev, err := l.Process(h, body)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if !tt.check(ev) {
				t.Errorf("unexpected event %T %+v", ev, ev)
			}
		})
	}
}

func TestSampleEvent_RequiresType(t *testing.T) {
	if _, err := sampleEvent("", "", time.Now()); err == nil {
		t.Fatal("expected error for empty type")
	}
}

func TestSend_SetsSignatureHeader(t *testing.T) {
	var gotHeader, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(stripehook.SignatureHeaderName)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	status, resp, err := send(srv.Client(), srv.URL, "t=1,v1=abc", []byte(`{"id":"evt_1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK || resp != `{"received":true}` {
		t.Errorf("status=%d resp=%q", status, resp)
	}
	if gotHeader != "t=1,v1=abc" || gotBody != `{"id":"evt_1"}` {
		t.Errorf("server saw header=%q body=%q", gotHeader, gotBody)
	}
}
