package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tracker remembers which provider webhook events were already handled, so
// redelivered events are acknowledged without reprocessing.
type Tracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	// MarkProcessed returns false when the event had been marked before.
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// ErrMissingEventID is returned for events without an id; they cannot be deduplicated.
var ErrMissingEventID = errors.New("events: event id required")

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore is the Postgres-backed Tracker. Rows older than the
// retention window count as unseen and are overwritten on the next mark, which
// keeps it in step with the Redis store's key TTL.
type ProcessedStore struct {
	pool      rowQuerier
	retention time.Duration
	now       func() time.Time
}

func NewProcessedStore(pool *pgxpool.Pool, retention time.Duration) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newProcessedStoreWithExec(pool, retention)
}

func newProcessedStoreWithExec(exec rowQuerier, retention time.Duration) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	if retention <= 0 {
		retention = DefaultProcessedTTL
	}
	return &ProcessedStore{pool: exec, retention: retention, now: time.Now}
}

func (s *ProcessedStore) cutoff(now time.Time) time.Time {
	return now.Add(-s.retention)
}

func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrMissingEventID
	}
	var exists int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2 AND processed_at > $3`,
		normalizeProvider(provider), eventID, s.cutoff(s.now().UTC()),
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrMissingEventID
	}
	now := s.now().UTC()
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO processed_events (provider, event_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, event_id) DO UPDATE
			SET processed_at = EXCLUDED.processed_at
			WHERE processed_events.processed_at <= $4
	`, normalizeProvider(provider), eventID, now, s.cutoff(now))
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
