package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/stripe-webhook-listener/internal/domain"
	"github.com/jackc/pgx/v5"
)

// EventRecord holds data for inserting a received Stripe event.
type EventRecord struct {
	StripeEventID string
	EventType     string
	Livemode      bool
	Payload       []byte
}

const eventColumns = `id, stripe_event_id, event_type, livemode, payload, status, attempts, last_error, received_at, processed_at`

func scanEvent(row pgx.Row, e *domain.Event) error {
	return row.Scan(
		&e.ID, &e.StripeEventID, &e.EventType, &e.Livemode, &e.Payload,
		&e.Status, &e.Attempts, &e.LastError, &e.ReceivedAt, &e.ProcessedAt,
	)
}

// InsertEvent stores a received event. When the Stripe event id is already
// present it returns the existing row and inserted=false.
func (s *PostgresStore) InsertEvent(ctx context.Context, rec EventRecord) (*domain.Event, bool, error) {
	var event domain.Event
	err := scanEvent(s.pool.QueryRow(ctx, `
		INSERT INTO stripe_events (stripe_event_id, event_type, livemode, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stripe_event_id) DO NOTHING
		RETURNING `+eventColumns,
		rec.StripeEventID, rec.EventType, rec.Livemode, rec.Payload,
	), &event)
	if err == nil {
		return &event, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting event: %w", err)
	}

	existing, err := s.GetEventByStripeID(ctx, rec.StripeEventID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("event %s vanished after conflict", rec.StripeEventID)
	}
	return existing, false, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	var event domain.Event
	err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM stripe_events WHERE id = $1`, id), &event)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return &event, nil
}

func (s *PostgresStore) GetEventByStripeID(ctx context.Context, stripeEventID string) (*domain.Event, error) {
	var event domain.Event
	err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM stripe_events WHERE stripe_event_id = $1`, stripeEventID), &event)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event by stripe id: %w", err)
	}
	return &event, nil
}

// ListEvents returns events newest first, optionally filtered by type and status.
func (s *PostgresStore) ListEvents(ctx context.Context, eventType, status string, limit int) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM stripe_events`
	args := []interface{}{}
	conditions := []string{}

	if eventType != "" {
		args = append(args, eventType)
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	query += whereClause(conditions)
	query += " ORDER BY received_at DESC"

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return events, nil
}

// MarkEventProcessed records a successful handler run.
func (s *PostgresStore) MarkEventProcessed(ctx context.Context, id string, attempts int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE stripe_events
		SET status = $2, attempts = $3, last_error = NULL, processed_at = NOW()
		WHERE id = $1
	`, id, domain.EventStatusProcessed, attempts)
	if err != nil {
		return fmt.Errorf("marking event processed: %w", err)
	}
	return nil
}

// RecordEventFailure stores the latest handler error. When final is true the
// event is moved to the failed state.
func (s *PostgresStore) RecordEventFailure(ctx context.Context, id string, attempts int, lastErr string, final bool) error {
	status := domain.EventStatusReceived
	if final {
		status = domain.EventStatusFailed
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE stripe_events SET status = $2, attempts = $3, last_error = $4
		WHERE id = $1
	`, id, status, attempts, lastErr)
	if err != nil {
		return fmt.Errorf("recording event failure: %w", err)
	}
	return nil
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	clause := " WHERE "
	for i, c := range conditions {
		if i > 0 {
			clause += " AND "
		}
		clause += c
	}
	return clause
}
