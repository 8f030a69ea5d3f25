package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Priya8975/stripe-webhook-listener/pkg/stripehook"
)

func TestBackoff(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.attempt, base, max); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestJob_Accessors(t *testing.T) {
	job := Job{Event: &stripehook.Unknown{Meta: stripehook.Meta{ID: "evt_1", Type: "charge.refunded"}}}

	if job.StripeEventID() != "evt_1" {
		t.Errorf("StripeEventID = %q", job.StripeEventID())
	}
	if job.EventType() != "charge.refunded" {
		t.Errorf("EventType = %q", job.EventType())
	}
}

func TestHandlerFunc(t *testing.T) {
	want := errors.New("boom")
	var got stripehook.Event

	h := HandlerFunc(func(_ context.Context, ev stripehook.Event) error {
		got = ev
		return want
	})

	ev := &stripehook.Unknown{}
	if err := h.Handle(context.Background(), ev); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
	if got != ev {
		t.Error("handler did not receive the event")
	}
}
