package domain

import (
	"encoding/json"
	"time"
)

// Event processing states.
const (
	EventStatusReceived  = "received"
	EventStatusProcessed = "processed"
	EventStatusFailed    = "failed"
)

// Event is a verified Stripe event as persisted on receipt.
type Event struct {
	ID            string          `json:"id"`
	StripeEventID string          `json:"stripe_event_id"`
	EventType     string          `json:"event_type"`
	Livemode      bool            `json:"livemode"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     *string         `json:"last_error,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}

type DeadLetter struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	StripeEventID string     `json:"stripe_event_id"`
	EventType     string     `json:"event_type"`
	TotalAttempts int        `json:"total_attempts"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy    *string    `json:"resolved_by,omitempty"`
}
