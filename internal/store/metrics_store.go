package store

import (
	"context"
	"fmt"
)

// EventMetrics holds aggregated event statistics.
type EventMetrics struct {
	TotalEvents         int     `json:"total_events"`
	ProcessedCount      int     `json:"processed_count"`
	PendingCount        int     `json:"pending_count"`
	FailedCount         int     `json:"failed_count"`
	SuccessRate         float64 `json:"success_rate"`
	DeadLetterCount     int     `json:"dead_letter_count"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
}

// GetEventMetrics returns aggregated event statistics from the database.
func (s *PostgresStore) GetEventMetrics(ctx context.Context) (*EventMetrics, error) {
	var m EventMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'processed') AS processed,
			COUNT(*) FILTER (WHERE status = 'received') AS pending,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM stripe_events
	`).Scan(&m.TotalEvents, &m.ProcessedCount, &m.PendingCount, &m.FailedCount)
	if err != nil {
		return nil, fmt.Errorf("querying event metrics: %w", err)
	}

	if done := m.ProcessedCount + m.FailedCount; done > 0 {
		m.SuccessRate = float64(m.ProcessedCount) / float64(done) * 100
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM dead_letters WHERE resolved_at IS NULL
	`).Scan(&m.DeadLetterCount)
	if err != nil {
		return nil, fmt.Errorf("querying dead letter count: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM customer_subscriptions WHERE status IN ('active', 'trialing')
	`).Scan(&m.ActiveSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("querying active subscriptions: %w", err)
	}

	return &m, nil
}
