package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/stripe-webhook-listener/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ErrDeadLetterNotFound is returned when resolving an unknown or already
// resolved dead letter.
var ErrDeadLetterNotFound = errors.New("dead letter not found or already resolved")

// DeadLetterRecord holds data for inserting a dead letter entry.
type DeadLetterRecord struct {
	EventID       string
	TotalAttempts int
	LastError     string
}

const deadLetterSelect = `
	SELECT d.id, d.event_id, e.stripe_event_id, e.event_type, d.total_attempts,
		   d.last_error, d.created_at, d.resolved_at, d.resolved_by
	FROM dead_letters d
	JOIN stripe_events e ON e.id = d.event_id`

func scanDeadLetter(row pgx.Row, dl *domain.DeadLetter) error {
	return row.Scan(
		&dl.ID, &dl.EventID, &dl.StripeEventID, &dl.EventType, &dl.TotalAttempts,
		&dl.LastError, &dl.CreatedAt, &dl.ResolvedAt, &dl.ResolvedBy,
	)
}

// InsertDeadLetter parks an event whose handler kept failing.
func (s *PostgresStore) InsertDeadLetter(ctx context.Context, rec DeadLetterRecord) error {
	var lastErr *string
	if rec.LastError != "" {
		lastErr = &rec.LastError
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO dead_letters (event_id, total_attempts, last_error)
		VALUES ($1, $2, $3)
	`, rec.EventID, rec.TotalAttempts, lastErr)
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns dead letter entries, resolved or not.
func (s *PostgresStore) ListDeadLetters(ctx context.Context, eventType string, resolved bool, limit int) ([]domain.DeadLetter, error) {
	query := deadLetterSelect
	args := []interface{}{}
	conditions := []string{}

	if eventType != "" {
		args = append(args, eventType)
		conditions = append(conditions, fmt.Sprintf("e.event_type = $%d", len(args)))
	}
	if resolved {
		conditions = append(conditions, "d.resolved_at IS NOT NULL")
	} else {
		conditions = append(conditions, "d.resolved_at IS NULL")
	}
	query += whereClause(conditions)
	query += " ORDER BY d.created_at DESC"

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()

	letters := []domain.DeadLetter{}
	for rows.Next() {
		var dl domain.DeadLetter
		if err := scanDeadLetter(rows, &dl); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		letters = append(letters, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dead letters: %w", err)
	}

	return letters, nil
}

// GetDeadLetter returns a single dead letter by ID.
func (s *PostgresStore) GetDeadLetter(ctx context.Context, id string) (*domain.DeadLetter, error) {
	var dl domain.DeadLetter
	err := scanDeadLetter(s.pool.QueryRow(ctx, deadLetterSelect+` WHERE d.id = $1`, id), &dl)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying dead letter: %w", err)
	}
	return &dl, nil
}

// ResolveDeadLetter marks a dead letter as handled by an operator.
func (s *PostgresStore) ResolveDeadLetter(ctx context.Context, id string, resolvedBy string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE dead_letters SET resolved_at = NOW(), resolved_by = $2
		WHERE id = $1 AND resolved_at IS NULL
	`, id, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolving dead letter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDeadLetterNotFound
	}
	return nil
}
