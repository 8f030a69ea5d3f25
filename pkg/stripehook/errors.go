package stripehook

import (
	"errors"
	"fmt"
)

// Signature stage.
var (
	ErrMalformed = errors.New("malformed signature header")
	ErrMismatch  = errors.New("signature mismatch")
	ErrExpired   = errors.New("signature timestamp outside tolerance")
)

// Parse stage.
var (
	ErrInvalidBody    = errors.New("body is not a JSON object")
	ErrMissingType    = errors.New("event type missing")
	ErrInvalidPayload = errors.New("payload does not match event type")
)

// SignatureError is returned when a request fails verification. Kind is one
// of ErrMalformed, ErrMismatch or ErrExpired.
type SignatureError struct {
	Kind   error
	Detail string
}

func (e *SignatureError) Error() string {
	if e.Detail == "" {
		return "stripehook: " + e.Kind.Error()
	}
	return fmt.Sprintf("stripehook: %s: %s", e.Kind, e.Detail)
}

func (e *SignatureError) Unwrap() error { return e.Kind }

// ParseError is returned when a verified body cannot be turned into an Event.
// Kind is one of ErrInvalidBody, ErrMissingType or ErrInvalidPayload.
type ParseError struct {
	Kind      error
	EventType string
	Err       error
}

func (e *ParseError) Error() string {
	msg := "stripehook: " + e.Kind.Error()
	if e.EventType != "" {
		msg += " " + e.EventType
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Reason returns a short stable label for err, suitable for metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrMismatch):
		return "mismatch"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInvalidBody):
		return "invalid_body"
	case errors.Is(err, ErrMissingType):
		return "missing_type"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "other"
	}
}
