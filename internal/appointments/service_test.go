package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/slotbook/internal/identity"
	"github.com/wolfman30/slotbook/internal/payments"
	"github.com/wolfman30/slotbook/internal/slots"
	"github.com/wolfman30/slotbook/pkg/apperr"
	"github.com/wolfman30/slotbook/pkg/logging"
)

type fixture struct {
	svc     *Service
	slots   *slots.Service
	repo    *payments.MemoryRepository
	created []*slots.Slot
}

var testNow = time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := func() time.Time { return testNow }
	store := slots.NewMemoryStore()
	cal := slots.NewCalendar(time.UTC)
	slotSvc := slots.NewService(store, cal, logging.Default()).WithClock(clock)
	created, err := slotSvc.CreateSlots(context.Background(), slots.CreateSlotsRequest{
		DoctorID: "doc-1", Date: "06-10-2025", StartTime: "09:00 AM", EndTime: "10:00 AM", DurationMinutes: 20,
	})
	require.NoError(t, err)
	repo := payments.NewMemoryRepository()
	svc := NewService(store, repo, cal, logging.Default()).WithClock(clock)
	return &fixture{svc: svc, slots: slotSvc, repo: repo, created: created}
}

func (f *fixture) hold(t *testing.T, rangeText, user string) *slots.Slot {
	t.Helper()
	held, err := f.slots.Hold(context.Background(), slots.HoldRequest{
		Date: "06-10-2025", Time: rangeText, RequesterID: user,
		Patient: slots.PatientDetails{Name: "A", Phone: "+15551234567", Address: "1 Main St"},
	})
	require.NoError(t, err)
	return held
}

func (f *fixture) pay(t *testing.T, slot *slots.Slot, user string) {
	t.Helper()
	ctx := context.Background()
	p := &payments.Payment{SlotID: slot.ID, UserID: user, AmountCents: 5000, Currency: "usd", StripeSessionID: "cs_" + slot.ID}
	require.NoError(t, f.repo.Create(ctx, p))
	_, err := f.repo.MarkSucceeded(ctx, p.ID, "pi_"+slot.ID)
	require.NoError(t, err)
	_, err = f.slots.ConfirmPaid(ctx, slot.ID, user)
	require.NoError(t, err)
}

func TestByOwnerListsOnlyPaidAppointments(t *testing.T) {
	f := newFixture(t)
	late := f.hold(t, "09:40 AM - 10:00 AM", "u1")
	early := f.hold(t, "09:00 AM - 09:20 AM", "u1")
	f.hold(t, "09:20 AM - 09:40 AM", "u1")
	f.pay(t, late, "u1")
	f.pay(t, early, "u1")

	list, err := f.svc.ByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)
	assert.Equal(t, "09:00 AM - 09:20 AM", list[0].Time)

	other, err := f.svc.ByOwner(context.Background(), "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestByOwnerIgnoresPendingPayment(t *testing.T) {
	f := newFixture(t)
	held := f.hold(t, "09:00 AM - 09:20 AM", "u1")
	require.NoError(t, f.repo.Create(context.Background(), &payments.Payment{SlotID: held.ID, UserID: "u1", AmountCents: 5000}))

	list, err := f.svc.ByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestByID(t *testing.T) {
	f := newFixture(t)
	paid := f.hold(t, "09:00 AM - 09:20 AM", "u1")
	f.pay(t, paid, "u1")
	unpaid := f.hold(t, "09:20 AM - 09:40 AM", "u1")
	ctx := context.Background()
	patient := identity.Identity{ID: "u1", Role: identity.RolePatient}

	got, err := f.svc.ByID(ctx, paid.ID, patient)
	require.NoError(t, err)
	assert.Equal(t, slots.StatusBooked, got.Status)

	_, err = f.svc.ByID(ctx, unpaid.ID, patient)
	assert.Equal(t, apperr.KindPaymentRequired, apperr.KindOf(err))

	_, err = f.svc.ByID(ctx, paid.ID, identity.Identity{ID: "u2", Role: identity.RolePatient})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.ByID(ctx, "missing", patient)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	got, err = f.svc.ByID(ctx, unpaid.ID, identity.Identity{ID: "doc-1", Role: identity.RoleDoctor})
	require.NoError(t, err)
	assert.Equal(t, unpaid.ID, got.ID)

	_, err = f.svc.ByID(ctx, unpaid.ID, identity.Identity{ID: "doc-2", Role: identity.RoleDoctor})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestFilterForDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.hold(t, "09:00 AM - 09:20 AM", "u1")
	second := f.hold(t, "09:20 AM - 09:40 AM", "u2")
	_, err := f.slots.Decide(ctx, second.ID, slots.AppointmentApproved)
	require.NoError(t, err)

	all, err := f.svc.FilterForDoctor(ctx, "doc-1", "today", "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	pending, err := f.svc.FilterForDoctor(ctx, "doc-1", "06-10-2025", "pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	approved, err := f.svc.FilterForDoctor(ctx, "doc-1", "today", "APPROVED")
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, second.ID, approved[0].ID)

	none, err := f.svc.FilterForDoctor(ctx, "doc-1", "06-11-2025", "")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	otherDoctor, err := f.svc.FilterForDoctor(ctx, "doc-2", "today", "")
	require.NoError(t, err)
	assert.Empty(t, otherDoctor)
}

func TestFilterForDoctorRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		date   string
		status string
	}{
		{name: "loose date", date: "6-10-2025"},
		{name: "garbage date", date: "tomorrow"},
		{name: "bad status", date: "today", status: "visited"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.FilterForDoctor(context.Background(), "doc-1", tc.date, tc.status)
			assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
		})
	}
}

func TestFilterForDoctorHidesLapsedHolds(t *testing.T) {
	f := newFixture(t)
	f.hold(t, "09:00 AM - 09:20 AM", "u1")
	f.svc.WithClock(func() time.Time { return testNow.Add(3 * time.Minute) })

	list, err := f.svc.FilterForDoctor(context.Background(), "doc-1", "today", "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPaidForDoctor(t *testing.T) {
	f := newFixture(t)
	paid := f.hold(t, "09:20 AM - 09:40 AM", "u1")
	f.pay(t, paid, "u1")
	f.hold(t, "09:00 AM - 09:20 AM", "u2")

	list, err := f.svc.PaidForDoctor(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, paid.ID, list[0].ID)
	assert.Equal(t, slots.PaymentPaid, list[0].PaymentStatus)
}
