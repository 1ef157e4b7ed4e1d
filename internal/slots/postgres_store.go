package slots

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgExclusionViolation = "23P01"
	pgInvalidText        = "22P02"
)

const slotColumns = `id::text, doctor_id, slot_date, start_time, end_time, duration_minutes, status,
	appointment_status, hold_until, holder_id, patient_name, patient_phone, patient_address,
	payment_status, created_at, updated_at`

type pgxQuerier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists slots in Postgres. Window inserts serialize per
// doctor through a transaction-scoped advisory lock; the schema's exclusion
// constraint backs the same invariant for updates.
type PostgresStore struct {
	db  pgxQuerier
	now func() time.Time
}

// NewPostgresStore creates a store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("slots: pgx pool required")
	}
	return &PostgresStore{db: pool, now: time.Now}
}

func newPostgresStoreWithQuerier(db pgxQuerier, now func() time.Time) *PostgresStore {
	if db == nil {
		panic("slots: querier required")
	}
	return &PostgresStore{db: db, now: now}
}

func (p *PostgresStore) InsertWindow(ctx context.Context, doctorID string, window Interval, batch []*Slot) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("slots: begin window insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, doctorID); err != nil {
		return fmt.Errorf("slots: lock doctor calendar: %w", err)
	}

	var overlapping bool
	overlapQuery := `SELECT EXISTS (SELECT 1 FROM slots WHERE doctor_id = $1 AND start_time < $3 AND end_time > $2)`
	if err := tx.QueryRow(ctx, overlapQuery, doctorID, window.Start, window.End).Scan(&overlapping); err != nil {
		return fmt.Errorf("slots: check overlap: %w", err)
	}
	if overlapping {
		return ErrOverlap
	}

	insert := `
		INSERT INTO slots (id, doctor_id, slot_date, start_time, end_time, duration_minutes, status,
			appointment_status, holder_id, patient_name, patient_phone, patient_address, payment_status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', '', '', '', $9, $10, $10)
	`
	now := p.now().UTC()
	for _, s := range batch {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		s.CreatedAt = now
		s.UpdatedAt = now
		if _, err := tx.Exec(ctx, insert, s.ID, s.DoctorID, s.Date, s.StartTime, s.EndTime, s.DurationMinutes,
			string(s.Status), string(s.AppointmentStatus), string(s.PaymentStatus), now); err != nil {
			return mapPgError(fmt.Errorf("slots: insert slot: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("slots: commit window insert: %w", err))
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Slot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := p.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	s, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapPgError(fmt.Errorf("slots: load slot: %w", err))
	}
	return s, nil
}

func (p *PostgresStore) Find(ctx context.Context, q Query) ([]*Slot, error) {
	var w sqlWhere
	q.apply(&w)
	sql := `SELECT ` + slotColumns + ` FROM slots` + w.String() + ` ORDER BY start_time, id`
	rows, err := p.db.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, fmt.Errorf("slots: find: %w", err)
	}
	defer rows.Close()

	var out []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("slots: scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("slots: iterate: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) UpdateIf(ctx context.Context, id string, cond Condition, patch Patch) (*Slot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrConditionFailed
	}
	var w sqlWhere
	set := patch.assignments(&w)
	set = append(set, "updated_at = "+w.arg(p.now().UTC()))
	w.add("id = " + w.arg(id))
	cond.apply(&w)

	sql := `UPDATE slots SET ` + strings.Join(set, ", ") + w.String() + ` RETURNING ` + slotColumns
	s, err := scanSlot(p.db.QueryRow(ctx, sql, w.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConditionFailed
		}
		return nil, mapPgError(fmt.Errorf("slots: conditional update: %w", err))
	}
	return s, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var (
		s          Slot
		status     string
		apptStatus string
		payStatus  string
		holdUntil  *time.Time
	)
	if err := row.Scan(
		&s.ID, &s.DoctorID, &s.Date, &s.StartTime, &s.EndTime, &s.DurationMinutes, &status,
		&apptStatus, &holdUntil, &s.HolderID, &s.Patient.Name, &s.Patient.Phone, &s.Patient.Address,
		&payStatus, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = Status(status)
	s.AppointmentStatus = AppointmentStatus(apptStatus)
	s.PaymentStatus = PaymentStatus(payStatus)
	s.HoldUntil = holdUntil
	return &s, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return ErrOverlap
		case pgInvalidText:
			return ErrNotFound
		}
	}
	return err
}

type sqlWhere struct {
	clauses []string
	args    []any
}

func (w *sqlWhere) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *sqlWhere) add(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *sqlWhere) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *sqlWhere) claimable(at time.Time) {
	w.add("(status = 'free' OR (status = 'held' AND (hold_until IS NULL OR hold_until < " + w.arg(at) + ")))")
}

func (w *sqlWhere) statuses(list []Status) {
	vals := make([]string, 0, len(list))
	for _, s := range list {
		vals = append(vals, string(s))
	}
	w.add("status = ANY(" + w.arg(vals) + ")")
}

func (q Query) apply(w *sqlWhere) {
	if q.DoctorID != "" {
		w.add("doctor_id = " + w.arg(q.DoctorID))
	}
	if q.Date != "" {
		w.add("slot_date = " + w.arg(q.Date))
	}
	if q.HolderID != "" {
		w.add("holder_id = " + w.arg(q.HolderID))
	}
	if len(q.IDs) > 0 {
		w.add("id::text = ANY(" + w.arg(q.IDs) + ")")
	}
	if len(q.Statuses) > 0 {
		w.statuses(q.Statuses)
	}
	if q.AppointmentStatus != "" {
		w.add("appointment_status = " + w.arg(string(q.AppointmentStatus)))
	}
	if q.StartsAt != nil {
		w.add("start_time = " + w.arg(*q.StartsAt))
	}
	if q.EndsAt != nil {
		w.add("end_time = " + w.arg(*q.EndsAt))
	}
	if q.StartsAfter != nil {
		w.add("start_time > " + w.arg(*q.StartsAfter))
	}
	if q.ClaimableAt != nil {
		w.claimable(*q.ClaimableAt)
	}
}

func (c Condition) apply(w *sqlWhere) {
	if c.ClaimableAt != nil {
		w.claimable(*c.ClaimableAt)
	}
	if c.ActiveAt != nil {
		w.add("NOT (status = 'held' AND (hold_until IS NULL OR hold_until < " + w.arg(*c.ActiveAt) + "))")
	}
	if c.HolderID != "" {
		w.add("holder_id = " + w.arg(c.HolderID))
	}
	if c.HasHolder {
		w.add("holder_id <> ''")
	}
	if c.AppointmentStatus != "" {
		w.add("appointment_status = " + w.arg(string(c.AppointmentStatus)))
	}
	if len(c.Statuses) > 0 {
		w.statuses(c.Statuses)
	}
}

func (p Patch) assignments(w *sqlWhere) []string {
	var set []string
	if p.Status != nil {
		set = append(set, "status = "+w.arg(string(*p.Status)))
	}
	if p.AppointmentStatus != nil {
		set = append(set, "appointment_status = "+w.arg(string(*p.AppointmentStatus)))
	}
	if p.PaymentStatus != nil {
		set = append(set, "payment_status = "+w.arg(string(*p.PaymentStatus)))
	}
	if p.ClearHold {
		set = append(set, "hold_until = NULL")
	} else if p.HoldUntil != nil {
		set = append(set, "hold_until = "+w.arg(*p.HoldUntil))
	}
	if p.HolderID != nil {
		set = append(set, "holder_id = "+w.arg(*p.HolderID))
	}
	if p.Patient != nil {
		set = append(set,
			"patient_name = "+w.arg(p.Patient.Name),
			"patient_phone = "+w.arg(p.Patient.Phone),
			"patient_address = "+w.arg(p.Patient.Address),
		)
	}
	return set
}
