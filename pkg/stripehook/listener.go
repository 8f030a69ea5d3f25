// Package stripehook verifies Stripe webhook requests and turns their
// payloads into typed events.
//
// Events are only produced by (*Listener).Process, after the body has passed
// signature verification.
package stripehook

import (
	"errors"
	"net/http"
	"time"
)

// Config is built once at start-up and passed to NewListener.
type Config struct {
	// Secret is the endpoint signing secret (whsec_...).
	Secret string
	// Tolerance bounds the signed timestamp's distance from Now.
	// Zero selects DefaultTolerance.
	Tolerance time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Listener verifies and resolves webhook requests. It holds no mutable state
// and is safe for concurrent use.
type Listener struct {
	verifier *Verifier
}

// NewListener builds a Listener from cfg. It fails when cfg.Secret is empty.
func NewListener(cfg Config) (*Listener, error) {
	if cfg.Secret == "" {
		return nil, errors.New("stripehook: signing secret is required")
	}

	v := NewVerifier(cfg.Secret, cfg.Tolerance)
	if cfg.Now != nil {
		v.now = cfg.Now
	}
	return &Listener{verifier: v}, nil
}

// Process verifies body against the Stripe-Signature header and resolves it
// into an Event. The returned error is a *SignatureError or a *ParseError.
func (l *Listener) Process(headers http.Header, body []byte) (Event, error) {
	if err := l.verifier.Verify(headers, body); err != nil {
		return nil, err
	}
	return resolve(body)
}

// Tolerance returns the effective timestamp tolerance.
func (l *Listener) Tolerance() time.Duration {
	return l.verifier.tolerance
}
