package slots

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slotColumnNames = []string{
	"id", "doctor_id", "slot_date", "start_time", "end_time", "duration_minutes", "status",
	"appointment_status", "hold_until", "holder_id", "patient_name", "patient_phone", "patient_address",
	"payment_status", "created_at", "updated_at",
}

const testSlotID = "5b0b7f3e-2f0c-4c57-9d2b-7d9f5d1a6f10"

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	fixed := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	return newPostgresStoreWithQuerier(mock, func() time.Time { return fixed }), mock
}

func TestPostgresStoreGet(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	holdUntil := start.Add(-time.Hour)

	mock.ExpectQuery("SELECT id::text, doctor_id").
		WithArgs(testSlotID).
		WillReturnRows(pgxmock.NewRows(slotColumnNames).AddRow(
			testSlotID, "doc-1", "06-10-2025", start, start.Add(20*time.Minute), 20, "held",
			"pending", &holdUntil, "u1", "A", "+15551234567", "1 Main St",
			"unpaid", start, start,
		))

	slot, err := store.Get(context.Background(), testSlotID)
	require.NoError(t, err)
	assert.Equal(t, StatusHeld, slot.Status)
	assert.Equal(t, "u1", slot.HolderID)
	require.NotNil(t, slot.HoldUntil)
	assert.True(t, slot.Claimable(start.Add(-30*time.Minute)))

	mock.ExpectQuery("SELECT id::text, doctor_id").
		WithArgs(testSlotID).
		WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(context.Background(), testSlotID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreInsertWindow(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	window := Interval{Start: start, End: start.Add(40 * time.Minute)}
	batch := []*Slot{
		{DoctorID: "doc-1", Date: "06-10-2025", StartTime: start, EndTime: start.Add(20 * time.Minute), DurationMinutes: 20,
			Status: StatusFree, AppointmentStatus: AppointmentPending, PaymentStatus: PaymentUnpaid},
		{DoctorID: "doc-1", Date: "06-10-2025", StartTime: start.Add(20 * time.Minute), EndTime: start.Add(40 * time.Minute), DurationMinutes: 20,
			Status: StatusFree, AppointmentStatus: AppointmentPending, PaymentStatus: PaymentUnpaid},
	}

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs("doc-1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("doc-1", window.Start, window.End).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	for range batch {
		mock.ExpectExec("INSERT INTO slots").
			WithArgs(pgxmock.AnyArg(), "doc-1", "06-10-2025", pgxmock.AnyArg(), pgxmock.AnyArg(), 20,
				"free", "pending", "unpaid", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, store.InsertWindow(context.Background(), "doc-1", window, batch))
	for _, s := range batch {
		assert.NotEmpty(t, s.ID)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreInsertWindowOverlap(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	window := Interval{Start: start, End: start.Add(time.Hour)}

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs("doc-1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("doc-1", window.Start, window.End).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := store.InsertWindow(context.Background(), "doc-1", window, []*Slot{{DoctorID: "doc-1"}})
	require.ErrorIs(t, err, ErrOverlap)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateIfLostRace(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	holdUntil := now.Add(2 * time.Minute)
	holder := "u1"
	patient := PatientDetails{Name: "A", Phone: "+15551234567", Address: "1 Main St"}

	mock.ExpectQuery(`UPDATE slots SET status = \$1, appointment_status = \$2, hold_until = \$3, holder_id = \$4`).
		WithArgs("held", "pending", holdUntil, "u1", "A", "+15551234567", "1 Main St", pgxmock.AnyArg(), testSlotID, now).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.UpdateIf(context.Background(), testSlotID,
		Condition{ClaimableAt: &now},
		Patch{
			Status:            ptr(StatusHeld),
			AppointmentStatus: ptr(AppointmentPending),
			HoldUntil:         &holdUntil,
			HolderID:          &holder,
			Patient:           &patient,
		})
	require.ErrorIs(t, err, ErrConditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateIfReturnsRow(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE slots SET status = \$1, payment_status = \$2, hold_until = NULL`).
		WithArgs("booked", "paid", pgxmock.AnyArg(), testSlotID, "u1", []string{"held", "booked"}).
		WillReturnRows(pgxmock.NewRows(slotColumnNames).AddRow(
			testSlotID, "doc-1", "06-10-2025", start, start.Add(20*time.Minute), 20, "booked",
			"pending", nil, "u1", "A", "+15551234567", "1 Main St",
			"paid", start, start,
		))

	slot, err := store.UpdateIf(context.Background(), testSlotID,
		Condition{HolderID: "u1", Statuses: []Status{StatusHeld, StatusBooked}},
		Patch{Status: ptr(StatusBooked), PaymentStatus: ptr(PaymentPaid), ClearHold: true})
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, slot.Status)
	assert.Equal(t, PaymentPaid, slot.PaymentStatus)
	assert.Nil(t, slot.HoldUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateIfRejectsLapsedHold(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 6, 10, 8, 5, 0, 0, time.UTC)

	mock.ExpectQuery(`NOT \(status = 'held' AND \(hold_until IS NULL OR hold_until < \$5\)\) AND holder_id <> '' AND appointment_status = \$6`).
		WithArgs("booked", "approved", pgxmock.AnyArg(), testSlotID, now, "pending").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.UpdateIf(context.Background(), testSlotID,
		Condition{AppointmentStatus: AppointmentPending, HasHolder: true, ActiveAt: &now},
		Patch{AppointmentStatus: ptr(AppointmentApproved), Status: ptr(StatusBooked), ClearHold: true})
	require.ErrorIs(t, err, ErrConditionFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreFindAvailable(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	start := now.Add(time.Hour)

	mock.ExpectQuery(`FROM slots WHERE slot_date = \$1 AND start_time > \$2 AND \(status = 'free' OR \(status = 'held' AND \(hold_until IS NULL OR hold_until < \$3\)\)\) ORDER BY start_time, id`).
		WithArgs("06-10-2025", now, now).
		WillReturnRows(pgxmock.NewRows(slotColumnNames).
			AddRow(testSlotID, "doc-1", "06-10-2025", start, start.Add(20*time.Minute), 20, "free",
				"pending", nil, "", "", "", "", "unpaid", now, now))

	list, err := store.Find(context.Background(), Query{Date: "06-10-2025", StartsAfter: &now, ClaimableAt: &now})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusFree, list[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapPgError(t *testing.T) {
	err := mapPgError(&pgconn.PgError{Code: "23P01", Message: "conflicting key value violates exclusion constraint"})
	require.ErrorIs(t, err, ErrOverlap)

	err = mapPgError(&pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"})
	require.ErrorIs(t, err, ErrNotFound)

	other := &pgconn.PgError{Code: "40001"}
	assert.Equal(t, error(other), mapPgError(other))
}
