// Command stripe-replay signs a Stripe event with a webhook secret and posts
// it to a running listener, for local testing without the Stripe CLI.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Priya8975/stripe-webhook-listener/pkg/stripehook"
	"github.com/google/uuid"
)

type options struct {
	url      string
	secret   string
	file     string
	typ      string
	objectID string
	skew     time.Duration
	tamper   bool
	repeat   int
}

func main() {
	fs := flag.NewFlagSet("stripe-replay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts options
	fs.StringVar(&opts.url, "url", "http://localhost:8080/webhooks/stripe", "listener endpoint")
	fs.StringVar(&opts.secret, "secret", os.Getenv("STRIPE_WEBHOOK_SECRET"), "signing secret (defaults to $STRIPE_WEBHOOK_SECRET)")
	fs.StringVar(&opts.file, "file", "", "path to an event JSON fixture; a sample event is generated when empty")
	fs.StringVar(&opts.typ, "type", string(stripehook.TypeInvoicePaid), "event type for the generated sample")
	fs.StringVar(&opts.objectID, "object", "", "data.object id for the generated sample")
	fs.DurationVar(&opts.skew, "skew", 0, "shift the signed timestamp, e.g. -10m to test expiry")
	fs.BoolVar(&opts.tamper, "tamper", false, "alter the body after signing")
	fs.IntVar(&opts.repeat, "repeat", 1, "send the same signed request n times")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if strings.TrimSpace(opts.secret) == "" {
		fmt.Fprintln(os.Stderr, "a signing secret is required (--secret or STRIPE_WEBHOOK_SECRET)")
		os.Exit(2)
	}

	body, err := loadBody(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	header := stripehook.SignatureHeader(time.Now().Add(opts.skew), body, opts.secret)
	if opts.tamper {
		body = append(body, ' ')
	}

	client := &http.Client{Timeout: 10 * time.Second}
	for i := 0; i < opts.repeat; i++ {
		status, resp, err := send(client, opts.url, header, body)
		if err != nil {
			fmt.Fprintln(os.Stderr, "request failed:", err)
			os.Exit(1)
		}
		fmt.Printf("[%d] %d %s\n", i+1, status, strings.TrimSpace(resp))
	}
}

func loadBody(opts options) ([]byte, error) {
	if opts.file != "" {
		body, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, fmt.Errorf("reading fixture: %w", err)
		}
		if !json.Valid(body) {
			return nil, fmt.Errorf("fixture %s is not valid JSON", opts.file)
		}
		return body, nil
	}
	return sampleEvent(opts.typ, opts.objectID, time.Now())
}

// sampleEvent builds a minimal event document of the given type.
func sampleEvent(eventType, objectID string, now time.Time) ([]byte, error) {
	if eventType == "" {
		return nil, fmt.Errorf("event type is required")
	}

	object := map[string]any{"customer": "cus_replay"}
	switch {
	case strings.HasPrefix(eventType, "checkout.session."):
		object["object"] = "checkout.session"
		object["id"] = orDefault(objectID, "cs_replay")
		object["subscription"] = "sub_replay"
		object["client_reference_id"] = "replay"
	case strings.HasPrefix(eventType, "customer.subscription."):
		object["object"] = "subscription"
		object["id"] = orDefault(objectID, "sub_replay")
		object["status"] = "active"
		if eventType == string(stripehook.TypeCustomerSubscriptionDeleted) {
			object["status"] = "canceled"
			object["canceled_at"] = now.Unix()
		}
	case strings.HasPrefix(eventType, "invoice."):
		object["object"] = "invoice"
		object["id"] = orDefault(objectID, "in_replay")
		object["subscription"] = "sub_replay"
		object["amount_paid"] = 1000
	default:
		object["id"] = orDefault(objectID, "obj_replay")
	}

	return json.Marshal(map[string]any{
		"id":          "evt_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		"object":      "event",
		"type":        eventType,
		"created":     now.Unix(),
		"livemode":    false,
		"api_version": "2024-06-20",
		"data":        map[string]any{"object": object},
	})
}

func send(client *http.Client, url, header string, body []byte) (int, string, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(stripehook.SignatureHeaderName, header)

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(data), nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
