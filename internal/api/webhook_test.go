package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/stripe-webhook-listener/internal/domain"
	"github.com/Priya8975/stripe-webhook-listener/internal/engine"
	"github.com/Priya8975/stripe-webhook-listener/internal/store"
	ws "github.com/Priya8975/stripe-webhook-listener/internal/websocket"
	"github.com/Priya8975/stripe-webhook-listener/pkg/stripehook"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const webhookSecret = "whsec_test"

var signedAt = time.Unix(1_700_000_000, 0)

type memoryEvents struct {
	mu     sync.Mutex
	byID   map[string]*domain.Event
	err    error
	writes int
}

func newMemoryEvents() *memoryEvents {
	return &memoryEvents{byID: map[string]*domain.Event{}}
}

func (m *memoryEvents) InsertEvent(_ context.Context, rec store.EventRecord) (*domain.Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	if e, ok := m.byID[rec.StripeEventID]; ok {
		return e, false, nil
	}
	m.writes++
	e := &domain.Event{
		ID:            "00000000-0000-0000-0000-00000000000" + string(rune('0'+m.writes)),
		StripeEventID: rec.StripeEventID,
		EventType:     rec.EventType,
		Livemode:      rec.Livemode,
		Payload:       rec.Payload,
		Status:        domain.EventStatusReceived,
	}
	m.byID[rec.StripeEventID] = e
	return e, true, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	full bool
	jobs []engine.Job
}

func (q *fakeQueue) TrySubmit(job engine.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

type fakeLimiter struct{ allow bool }

func (l fakeLimiter) Allow(context.Context, string, int) bool { return l.allow }

type noticeLog struct {
	mu      sync.Mutex
	notices []ws.Notice
}

func (n *noticeLog) Broadcast(notice ws.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *noticeLog) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.notices))
	for i, notice := range n.notices {
		out[i] = notice.Type
	}
	return out
}

type webhookFixture struct {
	handler *WebhookHandler
	events  *memoryEvents
	queue   *fakeQueue
	notices *noticeLog
	redis   *miniredis.Miniredis
}

func newWebhookFixture(t *testing.T, cfg WebhookConfig, limiter Limiter) *webhookFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	listener, err := stripehook.NewListener(stripehook.Config{
		Secret: webhookSecret,
		Now:    func() time.Time { return signedAt.Add(time.Second) },
	})
	if err != nil {
		t.Fatal(err)
	}

	f := &webhookFixture{
		events:  newMemoryEvents(),
		queue:   &fakeQueue{},
		notices: &noticeLog{},
		redis:   mr,
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	f.handler = NewWebhookHandler(listener, f.events, store.NewRedisFromClient(client), f.queue, limiter, f.notices, cfg, logger)
	return f
}

func (f *webhookFixture) post(t *testing.T, body []byte, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	if header != "" {
		req.Header.Set(stripehook.SignatureHeaderName, header)
	}
	rec := httptest.NewRecorder()
	f.handler.Receive(rec, req)
	return rec
}

func decodeWebhookResponse(t *testing.T, rec *httptest.ResponseRecorder) webhookResponse {
	t.Helper()
	var resp webhookResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

var invoiceBody = []byte(`{"id":"evt_inv_1","type":"invoice.paid","created":1700000000,"data":{"object":{"id":"in_1","subscription":"sub_1","customer":"cus_1"}}}`)

func TestReceive_Accepted(t *testing.T) {
	f := newWebhookFixture(t, WebhookConfig{}, nil)

	rec := f.post(t, invoiceBody, stripehook.SignatureHeader(signedAt, invoiceBody, webhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeWebhookResponse(t, rec)
	if !resp.Received || resp.Duplicate || resp.EventID != "evt_inv_1" || resp.DeliveryID == "" {
		t.Errorf("unexpected response %+v", resp)
	}

	if len(f.queue.jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(f.queue.jobs))
	}
	job := f.queue.jobs[0]
	if job.Attempt != 1 || job.DeliveryID != resp.DeliveryID {
		t.Errorf("unexpected job %+v", job)
	}
	if _, ok := job.Event.(*stripehook.InvoicePaid); !ok {
		t.Errorf("expected *stripehook.InvoicePaid, got %T", job.Event)
	}
	if got := f.notices.types(); len(got) != 1 || got[0] != ws.NoticeReceived {
		t.Errorf("notices = %v", got)
	}
	if !f.redis.Exists("stripe_event:evt_inv_1") {
		t.Error("expected dedupe claim to be held")
	}
}

func TestReceive_UnknownTypeIsAccepted(t *testing.T) {
	f := newWebhookFixture(t, WebhookConfig{}, nil)
	body := []byte(`{"id":"evt_refund","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)

	rec := f.post(t, body, stripehook.SignatureHeader(signedAt, body, webhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := f.queue.jobs[0].Event.(*stripehook.Unknown); !ok {
		t.Errorf("expected *stripehook.Unknown, got %T", f.queue.jobs[0].Event)
	}
}

func TestReceive_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		body   []byte
		header string
		reason string
	}{
		{
			name:   "missing header",
			body:   invoiceBody,
			header: "",
			reason: "malformed",
		},
		{
			name:   "wrong secret",
			body:   invoiceBody,
			header: stripehook.SignatureHeader(signedAt, invoiceBody, "whsec_other"),
			reason: "mismatch",
		},
		{
			name:   "stale timestamp",
			body:   invoiceBody,
			header: stripehook.SignatureHeader(signedAt.Add(-time.Hour), invoiceBody, webhookSecret),
			reason: "expired",
		},
		{
			name:   "signed but not json",
			body:   []byte(`not json`),
			header: stripehook.SignatureHeader(signedAt, []byte(`not json`), webhookSecret),
			reason: "invalid_body",
		},
		{
			name:   "signed without type",
			body:   []byte(`{"id":"evt_1"}`),
			header: stripehook.SignatureHeader(signedAt, []byte(`{"id":"evt_1"}`), webhookSecret),
			reason: "missing_type",
		},
		{
			name:   "signed known type without id",
			body:   []byte(`{"type":"invoice.paid","data":{"object":{"id":"in_1","subscription":"sub_1"}}}`),
			header: stripehook.SignatureHeader(signedAt, []byte(`{"type":"invoice.paid","data":{"object":{"id":"in_1","subscription":"sub_1"}}}`), webhookSecret),
			reason: "missing_id",
		},
		{
			name:   "signed unknown type without id",
			body:   []byte(`{"type":"charge.refunded"}`),
			header: stripehook.SignatureHeader(signedAt, []byte(`{"type":"charge.refunded"}`), webhookSecret),
			reason: "missing_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t, WebhookConfig{}, nil)

			rec := f.post(t, tt.body, tt.header)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var resp errorResponse
			json.NewDecoder(rec.Body).Decode(&resp)
			if !strings.HasSuffix(resp.Error, tt.reason) {
				t.Errorf("error = %q, want reason %q", resp.Error, tt.reason)
			}
			if len(f.queue.jobs) != 0 || f.events.writes != 0 {
				t.Error("rejected webhook must not be stored or queued")
			}
		})
	}
}

func TestReceive_DuplicateDelivery(t *testing.T) {
	f := newWebhookFixture(t, WebhookConfig{}, nil)
	header := stripehook.SignatureHeader(signedAt, invoiceBody, webhookSecret)

	first := f.post(t, invoiceBody, header)
	second := f.post(t, invoiceBody, header)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected 200 twice, got %d and %d", first.Code, second.Code)
	}
	if resp := decodeWebhookResponse(t, second); !resp.Duplicate {
		t.Errorf("second delivery should be flagged duplicate: %+v", resp)
	}
	if len(f.queue.jobs) != 1 {
		t.Errorf("expected 1 queued job, got %d", len(f.queue.jobs))
	}
	if got := f.notices.types(); len(got) != 2 || got[1] != ws.NoticeDuplicate {
		t.Errorf("notices = %v", got)
	}
}

func TestReceive_ProcessedEventIsDuplicateAfterClaimExpires(t *testing.T) {
	f := newWebhookFixture(t, WebhookConfig{DedupeTTL: time.Minute}, nil)
	header := stripehook.SignatureHeader(signedAt, invoiceBody, webhookSecret)

	f.post(t, invoiceBody, header)
	f.events.byID["evt_inv_1"].Status = domain.EventStatusProcessed
	f.redis.FastForward(2 * time.Minute)

	rec := f.post(t, invoiceBody, header)
	if resp := decodeWebhookResponse(t, rec); !resp.Duplicate {
		t.Errorf("expected duplicate, got %+v", resp)
	}
	if len(f.queue.jobs) != 1 {
		t.Errorf("expected 1 queued job, got %d", len(f.queue.jobs))
	}
}

func TestReceive_QueueFullReleasesClaim(t *testing.T) {
	f := newWebhookFixture(t, WebhookConfig{}, nil)
	f.queue.full = true
	header := stripehook.SignatureHeader(signedAt, invoiceBody, webhookSecret)

	rec := f.post(t, invoiceBody, header)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if f.redis.Exists("stripe_event:evt_inv_1") {
		t.Error("claim should be released so Stripe's retry is processed")
	}

	// Stripe retries once the pool has room again.
	f.queue.full = false
	rec = f.post(t, invoiceBody, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", rec.Code)
	}
	if resp := decodeWebhookResponse(t, rec); resp.Duplicate {
		t.Error("retry after 503 must not be treated as duplicate")
	}
	if len(f.queue.jobs) != 1 {
		t.Errorf("expected 1 queued job, got %d", len(f.queue.jobs))
	}
}

func TestReceive_StoreFailure(t *testing.T) {
	f := newWebhookFixture(t, WebhookConfig{}, nil)
	f.events.err = errors.New("connection refused")

	rec := f.post(t, invoiceBody, stripehook.SignatureHeader(signedAt, invoiceBody, webhookSecret))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if f.redis.Exists("stripe_event:evt_inv_1") {
		t.Error("claim should be released after a store failure")
	}
}

func TestReceive_RedisDownStillAccepts(t *testing.T) {
	f := newWebhookFixture(t, WebhookConfig{}, nil)
	f.redis.Close()

	rec := f.post(t, invoiceBody, stripehook.SignatureHeader(signedAt, invoiceBody, webhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without redis, got %d", rec.Code)
	}
	if len(f.queue.jobs) != 1 {
		t.Errorf("expected 1 queued job, got %d", len(f.queue.jobs))
	}
}

func TestReceive_BodyTooLarge(t *testing.T) {
	f := newWebhookFixture(t, WebhookConfig{MaxBodyBytes: 32}, nil)

	rec := f.post(t, invoiceBody, stripehook.SignatureHeader(signedAt, invoiceBody, webhookSecret))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestReceive_RateLimited(t *testing.T) {
	f := newWebhookFixture(t, WebhookConfig{RateLimit: 5}, fakeLimiter{allow: false})

	rec := f.post(t, invoiceBody, stripehook.SignatureHeader(signedAt, invoiceBody, webhookSecret))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestReceive_RateLimitDisabled(t *testing.T) {
	f := newWebhookFixture(t, WebhookConfig{RateLimit: 0}, fakeLimiter{allow: false})

	rec := f.post(t, invoiceBody, stripehook.SignatureHeader(signedAt, invoiceBody, webhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with limiter disabled, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	if got := clientIP(req); got != "203.0.113.7" {
		t.Errorf("clientIP = %q", got)
	}
	req.RemoteAddr = "203.0.113.8"
	if got := clientIP(req); got != "203.0.113.8" {
		t.Errorf("clientIP = %q", got)
	}
}
