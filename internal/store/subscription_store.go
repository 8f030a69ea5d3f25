package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Priya8975/stripe-webhook-listener/internal/domain"
	"github.com/jackc/pgx/v5"
)

// SubscriptionUpdate is one projected change to a customer subscription.
// Nil pointer fields leave the stored value untouched.
type SubscriptionUpdate struct {
	SubscriptionID    string
	CustomerID        string
	CheckoutSessionID *string
	ClientReference   *string
	Status            string
	CanceledAt        *time.Time
	EventID           string
	EventAt           time.Time
}

// ApplySubscriptionUpdate upserts the subscription row. Updates carrying an
// event timestamp older than the stored one are ignored so out-of-order
// deliveries cannot roll state back. Returns whether a row changed.
func (s *PostgresStore) ApplySubscriptionUpdate(ctx context.Context, u SubscriptionUpdate) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		INSERT INTO customer_subscriptions
			(subscription_id, customer_id, checkout_session_id, client_reference, status, canceled_at, last_event_id, last_event_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (subscription_id) DO UPDATE SET
			customer_id         = COALESCE(NULLIF(EXCLUDED.customer_id, ''), customer_subscriptions.customer_id),
			checkout_session_id = COALESCE(EXCLUDED.checkout_session_id, customer_subscriptions.checkout_session_id),
			client_reference    = COALESCE(EXCLUDED.client_reference, customer_subscriptions.client_reference),
			status              = EXCLUDED.status,
			canceled_at         = COALESCE(EXCLUDED.canceled_at, customer_subscriptions.canceled_at),
			last_event_id       = EXCLUDED.last_event_id,
			last_event_at       = EXCLUDED.last_event_at,
			updated_at          = NOW()
		WHERE customer_subscriptions.last_event_at <= EXCLUDED.last_event_at
	`, u.SubscriptionID, u.CustomerID, u.CheckoutSessionID, u.ClientReference,
		u.Status, u.CanceledAt, u.EventID, u.EventAt)
	if err != nil {
		return false, fmt.Errorf("applying subscription update: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, subscriptionID string) (*domain.CustomerSubscription, error) {
	var cs domain.CustomerSubscription
	err := s.pool.QueryRow(ctx, `
		SELECT subscription_id, customer_id, checkout_session_id, client_reference, status,
			   canceled_at, last_event_id, last_event_at, updated_at
		FROM customer_subscriptions WHERE subscription_id = $1
	`, subscriptionID).Scan(
		&cs.SubscriptionID, &cs.CustomerID, &cs.CheckoutSessionID, &cs.ClientReference, &cs.Status,
		&cs.CanceledAt, &cs.LastEventID, &cs.LastEventAt, &cs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return &cs, nil
}

// ListCustomerSubscriptions returns every subscription known for a customer.
func (s *PostgresStore) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]domain.CustomerSubscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subscription_id, customer_id, checkout_session_id, client_reference, status,
			   canceled_at, last_event_id, last_event_at, updated_at
		FROM customer_subscriptions WHERE customer_id = $1
		ORDER BY updated_at DESC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("querying customer subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []domain.CustomerSubscription{}
	for rows.Next() {
		var cs domain.CustomerSubscription
		err := rows.Scan(
			&cs.SubscriptionID, &cs.CustomerID, &cs.CheckoutSessionID, &cs.ClientReference, &cs.Status,
			&cs.CanceledAt, &cs.LastEventID, &cs.LastEventAt, &cs.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}
