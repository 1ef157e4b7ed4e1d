package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/slotbook/internal/identity"
	"github.com/wolfman30/slotbook/internal/payments"
	"github.com/wolfman30/slotbook/internal/slots"
	"github.com/wolfman30/slotbook/pkg/apperr"
	"github.com/wolfman30/slotbook/pkg/logging"
)

var appointmentsTracer = otel.Tracer("slotbook.internal.appointments")

type slotFinder interface {
	Get(ctx context.Context, id string) (*slots.Slot, error)
	Find(ctx context.Context, q slots.Query) ([]*slots.Slot, error)
}

type paymentLookup interface {
	LatestForSlot(ctx context.Context, slotID string) (*payments.Payment, error)
	LatestForSlots(ctx context.Context, slotIDs []string) (map[string]*payments.Payment, error)
}

// Service answers appointment read queries. Patients only ever see
// appointments whose latest payment succeeded.
type Service struct {
	slots    slotFinder
	payments paymentLookup
	cal      slots.Calendar
	logger   *logging.Logger
	now      func() time.Time
}

// NewService creates the appointment query service.
func NewService(store slotFinder, repo paymentLookup, cal slots.Calendar, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{slots: store, payments: repo, cal: cal, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// ByOwner lists the requester's paid appointments ordered by start.
func (s *Service) ByOwner(ctx context.Context, requesterID string) ([]*slots.Slot, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.by_owner")
	defer span.End()

	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return []*slots.Slot{}, nil
	}
	owned, err := s.slots.Find(ctx, slots.Query{HolderID: requesterID})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: list owned slots: %w", err)
	}
	return s.paidOnly(ctx, owned, requesterID)
}

// ByID returns one appointment. Patients see their own paid appointments;
// doctors see appointments on their own schedule.
func (s *Service) ByID(ctx context.Context, slotID string, who identity.Identity) (*slots.Slot, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.by_id")
	defer span.End()
	span.SetAttributes(attribute.String("slotbook.slot_id", slotID))

	slot, err := s.slots.Get(ctx, strings.TrimSpace(slotID))
	if err != nil {
		if errors.Is(err, slots.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "Appointment not found.")
		}
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: get slot: %w", err)
	}
	now := s.now()
	if who.IsDoctor() {
		if slot.DoctorID != who.ID {
			return nil, apperr.New(apperr.KindNotFound, "Appointment not found.")
		}
		return s.cal.Present(slot, now), nil
	}
	if slot.HolderID == "" || slot.HolderID != who.ID {
		return nil, apperr.New(apperr.KindNotFound, "Appointment not found.")
	}

	payment, err := s.payments.LatestForSlot(ctx, slot.ID)
	switch {
	case errors.Is(err, payments.ErrNotFound):
		return nil, apperr.New(apperr.KindPaymentRequired, "Payment is required to view this appointment.")
	case err != nil:
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: latest payment: %w", err)
	}
	if payment.Status != payments.StatusSucceeded || payment.UserID != who.ID {
		return nil, apperr.New(apperr.KindPaymentRequired, "Payment is required to view this appointment.")
	}
	return s.cal.Present(slot, now), nil
}

// FilterForDoctor lists the doctor's appointments on date, which is either
// "today" or a strict MM-DD-YYYY date, optionally narrowed to pending or
// approved. An empty match is an empty list.
func (s *Service) FilterForDoctor(ctx context.Context, doctorID, date, status string) ([]*slots.Slot, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.filter_for_doctor")
	defer span.End()
	span.SetAttributes(attribute.String("slotbook.doctor_id", doctorID))

	now := s.now()
	date = strings.TrimSpace(date)
	switch {
	case date == "" || strings.EqualFold(date, "today"):
		date = s.cal.Today(now)
	default:
		parsed, err := s.cal.ParseStrictDate(date)
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidInput, "Invalid date format. Use MM-DD-YYYY or 'today'.")
		}
		date = parsed
	}

	q := slots.Query{
		DoctorID: doctorID,
		Date:     date,
		Statuses: []slots.Status{slots.StatusHeld, slots.StatusBooked},
	}
	switch appt := slots.AppointmentStatus(strings.ToLower(strings.TrimSpace(status))); appt {
	case "":
	case slots.AppointmentPending, slots.AppointmentApproved:
		q.AppointmentStatus = appt
	default:
		return nil, apperr.New(apperr.KindInvalidInput, "Status must be 'pending' or 'approved'.")
	}

	found, err := s.slots.Find(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: filter slots: %w", err)
	}
	out := make([]*slots.Slot, 0, len(found))
	for _, slot := range s.cal.PresentAll(found, now) {
		if slot.HolderID == "" {
			continue
		}
		out = append(out, slot)
	}
	return out, nil
}

// PaidForDoctor lists the doctor's appointments whose latest payment
// succeeded, ordered by start.
func (s *Service) PaidForDoctor(ctx context.Context, doctorID string) ([]*slots.Slot, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.paid_for_doctor")
	defer span.End()
	span.SetAttributes(attribute.String("slotbook.doctor_id", doctorID))

	found, err := s.slots.Find(ctx, slots.Query{
		DoctorID: doctorID,
		Statuses: []slots.Status{slots.StatusHeld, slots.StatusBooked},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: list doctor slots: %w", err)
	}
	return s.paidOnly(ctx, found, "")
}

// paidOnly keeps slots whose latest payment succeeded. A non-empty payer also
// requires the payment to belong to that user.
func (s *Service) paidOnly(ctx context.Context, list []*slots.Slot, payer string) ([]*slots.Slot, error) {
	if len(list) == 0 {
		return []*slots.Slot{}, nil
	}
	ids := make([]string, 0, len(list))
	for _, slot := range list {
		ids = append(ids, slot.ID)
	}
	latest, err := s.payments.LatestForSlots(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("appointments: latest payments: %w", err)
	}

	now := s.now()
	out := make([]*slots.Slot, 0, len(list))
	for _, slot := range list {
		p, ok := latest[slot.ID]
		if !ok || p.Status != payments.StatusSucceeded {
			continue
		}
		if payer != "" && p.UserID != payer {
			continue
		}
		presented := s.cal.Present(slot, now)
		if presented.HolderID == "" {
			continue
		}
		out = append(out, presented)
	}
	return out, nil
}
