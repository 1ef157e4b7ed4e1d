package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists payments and their lifecycle transitions.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	LatestForSlot(ctx context.Context, slotID string) (*Payment, error)
	LatestForSlots(ctx context.Context, slotIDs []string) (map[string]*Payment, error)
	MarkSucceeded(ctx context.Context, id, paymentIntentID string) (*Payment, error)
	RecordRefund(ctx context.Context, id string, status Status, refundedCents int64, refundID string) (*Payment, error)
	Relink(ctx context.Context, fromSlotID, toSlotID, userID string) error
}

const paymentColumns = `id::text, slot_id::text, user_id, amount_cents, currency, payment_intent_id,
	stripe_session_id, status, refunded_cents, refund_id, created_at, updated_at`

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores payments in Postgres.
type PostgresRepository struct {
	db  rowQuerier
	now func() time.Time
}

// NewPostgresRepository creates a repository backed by pgx.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &PostgresRepository{db: pool, now: time.Now}
}

// newPostgresRepositoryWithQuerier allows injecting pgxmock in tests.
func newPostgresRepositoryWithQuerier(db rowQuerier, now func() time.Time) *PostgresRepository {
	return &PostgresRepository{db: db, now: now}
}

func (r *PostgresRepository) Create(ctx context.Context, p *Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	now := r.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	query := `
		INSERT INTO payments (id, slot_id, user_id, amount_cents, currency, payment_intent_id,
			stripe_session_id, status, refunded_cents, refund_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, '', $9, $9)
	`
	if _, err := r.db.Exec(ctx, query, p.ID, p.SlotID, p.UserID, p.AmountCents, p.Currency,
		p.PaymentIntentID, p.StripeSessionID, string(p.Status), now); err != nil {
		return fmt.Errorf("payments: insert payment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: load by id: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) LatestForSlot(ctx context.Context, slotID string) (*Payment, error) {
	if _, err := uuid.Parse(slotID); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE slot_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, slotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: load latest for slot: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) LatestForSlots(ctx context.Context, slotIDs []string) (map[string]*Payment, error) {
	out := make(map[string]*Payment, len(slotIDs))
	if len(slotIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT DISTINCT ON (slot_id) ` + paymentColumns + `
		FROM payments
		WHERE slot_id::text = ANY($1)
		ORDER BY slot_id, created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, slotIDs)
	if err != nil {
		return nil, fmt.Errorf("payments: load latest for slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("payments: scan: %w", err)
		}
		out[p.SlotID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payments: iterate: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) MarkSucceeded(ctx context.Context, id, paymentIntentID string) (*Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `
		UPDATE payments
		SET status = CASE WHEN status = 'pending' THEN 'succeeded' ELSE status END,
			payment_intent_id = CASE WHEN $2 <> '' THEN $2 ELSE payment_intent_id END,
			updated_at = $3
		WHERE id = $1
		RETURNING ` + paymentColumns
	p, err := scanPayment(r.db.QueryRow(ctx, query, id, paymentIntentID, r.now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: mark succeeded: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) RecordRefund(ctx context.Context, id string, status Status, refundedCents int64, refundID string) (*Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `
		UPDATE payments
		SET status = $2, refunded_cents = $3,
			refund_id = CASE WHEN $4 <> '' THEN $4 ELSE refund_id END,
			updated_at = $5
		WHERE id = $1
		RETURNING ` + paymentColumns
	p, err := scanPayment(r.db.QueryRow(ctx, query, id, string(status), refundedCents, refundID, r.now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: record refund: %w", err)
	}
	return p, nil
}

// Relink points the user's payments for one slot at another slot. It runs
// when an appointment moves, so a later webhook or refund finds the new slot.
func (r *PostgresRepository) Relink(ctx context.Context, fromSlotID, toSlotID, userID string) error {
	if _, err := uuid.Parse(fromSlotID); err != nil {
		return nil
	}
	query := `UPDATE payments SET slot_id = $2, updated_at = $4 WHERE slot_id = $1 AND user_id = $3`
	if _, err := r.db.Exec(ctx, query, fromSlotID, toSlotID, userID, r.now().UTC()); err != nil {
		return fmt.Errorf("payments: relink payments: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p      Payment
		status string
	)
	if err := row.Scan(&p.ID, &p.SlotID, &p.UserID, &p.AmountCents, &p.Currency, &p.PaymentIntentID,
		&p.StripeSessionID, &status, &p.RefundedCents, &p.RefundID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	return &p, nil
}
