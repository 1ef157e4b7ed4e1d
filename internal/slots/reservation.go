package slots

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/slotbook/pkg/apperr"
)

// HoldRequest claims a slot for a patient.
type HoldRequest struct {
	Date        string         `json:"date" validate:"required"`
	Time        string         `json:"time" validate:"required"`
	DoctorID    string         `json:"doctorId,omitempty"`
	Patient     PatientDetails `json:"patientDetails"`
	RequesterID string         `json:"-" validate:"required"`
}

// UpdateRequest edits a held or booked slot on behalf of its holder.
type UpdateRequest struct {
	SlotID      string         `json:"-"`
	Date        string         `json:"date" validate:"required"`
	Time        string         `json:"time" validate:"required"`
	Patient     PatientDetails `json:"patientDetails"`
	RequesterID string         `json:"-" validate:"required"`
}

// Hold places a time-limited claim on the slot matching date and time. Only
// one concurrent caller can win a given slot.
func (s *Service) Hold(ctx context.Context, req HoldRequest) (*Slot, error) {
	ctx, span := slotsTracer.Start(ctx, "slots.hold")
	defer span.End()

	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.RequesterID = strings.TrimSpace(req.RequesterID)
	req.Patient = req.Patient.Trimmed()
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	interval, err := s.cal.ParseRange(req.Date, req.Time)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "Invalid date or time format.")
	}

	now := s.now()
	candidates, err := s.store.Find(ctx, Query{
		DoctorID:    req.DoctorID,
		StartsAt:    &interval.Start,
		EndsAt:      &interval.End,
		StartsAfter: &now,
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	var claimable *Slot
	taken := false
	for _, c := range candidates {
		if c.Claimable(now) {
			claimable = c
			break
		}
		if c.Status == StatusHeld || c.Status == StatusBooked {
			taken = true
		}
	}
	if claimable == nil {
		if taken {
			s.metrics.ObserveHold("conflict")
			return nil, apperr.New(apperr.KindConflict, "This slot was just taken. Please choose another.")
		}
		s.metrics.ObserveHold("unavailable")
		return nil, apperr.New(apperr.KindUnavailable, "This slot is not available.")
	}
	span.SetAttributes(attribute.String("slotbook.slot_id", claimable.ID))

	holdUntil := now.Add(s.holdDuration)
	patient := req.Patient
	updated, err := s.store.UpdateIf(ctx, claimable.ID,
		Condition{ClaimableAt: &now},
		Patch{
			Status:            ptr(StatusHeld),
			HoldUntil:         &holdUntil,
			HolderID:          &req.RequesterID,
			Patient:           &patient,
			AppointmentStatus: ptr(AppointmentPending),
		})
	if err != nil {
		if errors.Is(err, ErrConditionFailed) {
			s.metrics.ObserveHold("conflict")
			return nil, apperr.New(apperr.KindConflict, "This slot was just taken. Please choose another.")
		}
		return nil, s.fail(span, err)
	}

	s.metrics.ObserveHold("held")
	s.logger.WithContext(ctx).Info("slot held", "slot_id", updated.ID, "doctor_id", updated.DoctorID, "hold_until", holdUntil)
	return s.cal.Present(updated, now), nil
}

// ListAvailable returns the slots on date that can currently be claimed,
// ordered by start time.
func (s *Service) ListAvailable(ctx context.Context, date, doctorID string) ([]*Slot, error) {
	ctx, span := slotsTracer.Start(ctx, "slots.list_available")
	defer span.End()

	date = strings.TrimSpace(date)
	if date == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "Valid date is required to fetch slots.")
	}
	canonical, err := s.cal.ParseDate(date)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "Valid date is required to fetch slots.")
	}

	now := s.now()
	list, err := s.store.Find(ctx, Query{
		DoctorID:    strings.TrimSpace(doctorID),
		Date:        canonical,
		StartsAfter: &now,
		ClaimableAt: &now,
	})
	if err != nil {
		return nil, s.fail(span, err)
	}
	return s.cal.PresentAll(list, now), nil
}

// UpdateHeld lets the holder of a slot change its patient details or move the
// appointment to another published slot of the same doctor. The appointment
// returns to pending review.
func (s *Service) UpdateHeld(ctx context.Context, req UpdateRequest) (*Slot, error) {
	ctx, span := slotsTracer.Start(ctx, "slots.update")
	defer span.End()
	span.SetAttributes(attribute.String("slotbook.slot_id", req.SlotID))

	current, err := s.store.Get(ctx, req.SlotID)
	if err != nil {
		return nil, s.fail(span, storeError(err, "Appointment not found."))
	}
	requester := strings.TrimSpace(req.RequesterID)
	if requester == "" || current.HolderID != requester {
		return nil, apperr.New(apperr.KindForbidden, "You are not allowed to update this appointment.")
	}
	if current.Status != StatusHeld && current.Status != StatusBooked {
		return nil, apperr.New(apperr.KindInvalidState, "Only active appointments can be updated.")
	}
	now := s.now()
	if current.HoldLapsed(now) {
		return nil, apperr.New(apperr.KindInvalidState, "Your hold on this slot has expired.")
	}

	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.RequesterID = requester
	req.Patient = req.Patient.Trimmed()
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	date, err := s.cal.ParseDate(req.Date)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "Invalid date format. Use MM-DD-YYYY.")
	}
	if !timeRangePattern.MatchString(req.Time) {
		return nil, apperr.New(apperr.KindInvalidInput, "Invalid time format. Use 'hh:mm AM - hh:mm AM'.")
	}
	if !ValidPhone(req.Patient.Phone) {
		return nil, apperr.New(apperr.KindInvalidInput, "Invalid phone number format.")
	}
	interval, err := s.cal.ParseRange(date, req.Time)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "Invalid time format. Use 'hh:mm AM - hh:mm AM'.")
	}
	if interval.Start.Before(now) {
		return nil, apperr.New(apperr.KindInvalidInput, "Cannot move an appointment into the past.")
	}

	var updated *Slot
	if interval.Start.Equal(current.StartTime) && interval.End.Equal(current.EndTime) {
		updated, err = s.editInPlace(ctx, current, req.Patient, now)
	} else {
		updated, err = s.move(ctx, current, interval, req.Patient, now)
	}
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.logger.WithContext(ctx).Info("appointment updated", "slot_id", updated.ID, "previous_slot_id", current.ID, "date", updated.Date)
	return s.cal.Present(updated, now), nil
}

func (s *Service) editInPlace(ctx context.Context, current *Slot, patient PatientDetails, now time.Time) (*Slot, error) {
	updated, err := s.store.UpdateIf(ctx, current.ID,
		Condition{HolderID: current.HolderID, ActiveAt: &now, Statuses: []Status{StatusHeld, StatusBooked}},
		Patch{Patient: &patient, AppointmentStatus: ptr(AppointmentPending)})
	if errors.Is(err, ErrConditionFailed) {
		return nil, apperr.New(apperr.KindForbidden, "You are not allowed to update this appointment.")
	}
	return updated, err
}

// move claims the published slot at target for the holder of current, carries
// the hold, payment state and patient details across, then frees current.
func (s *Service) move(ctx context.Context, current *Slot, target Interval, patient PatientDetails, now time.Time) (*Slot, error) {
	candidates, err := s.store.Find(ctx, Query{
		DoctorID: current.DoctorID,
		StartsAt: &target.Start,
		EndsAt:   &target.End,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, apperr.New(apperr.KindUnavailable, "The doctor has no slot at the requested time.")
	}
	destination := candidates[0]
	if !destination.Claimable(now) {
		return nil, apperr.New(apperr.KindUnavailable, "This slot is already booked.")
	}

	patch := Patch{
		Status:            ptr(current.Status),
		HolderID:          &current.HolderID,
		Patient:           &patient,
		AppointmentStatus: ptr(AppointmentPending),
		PaymentStatus:     ptr(current.PaymentStatus),
		HoldUntil:         current.HoldUntil,
		ClearHold:         current.HoldUntil == nil,
	}
	claimed, err := s.store.UpdateIf(ctx, destination.ID, Condition{ClaimableAt: &now}, patch)
	if err != nil {
		if errors.Is(err, ErrConditionFailed) {
			return nil, apperr.New(apperr.KindUnavailable, "This slot is already booked.")
		}
		return nil, err
	}

	if s.relinker != nil {
		if err := s.relinker.Relink(ctx, current.ID, claimed.ID, current.HolderID); err != nil {
			s.vacate(ctx, claimed.ID, current.HolderID)
			return nil, err
		}
	}

	if _, err := s.store.UpdateIf(ctx, current.ID,
		Condition{HolderID: current.HolderID},
		freePatch(AppointmentPending)); err != nil {
		// The holder now owns both slots until the old hold lapses or is released.
		s.logger.WithContext(ctx).Warn("failed to free previous slot after move",
			"slot_id", current.ID, "new_slot_id", claimed.ID, "error", err)
	}
	return claimed, nil
}

func (s *Service) vacate(ctx context.Context, slotID, holderID string) {
	if _, err := s.store.UpdateIf(ctx, slotID, Condition{HolderID: holderID}, freePatch(AppointmentPending)); err != nil {
		s.logger.WithContext(ctx).Warn("failed to undo slot claim", "slot_id", slotID, "error", err)
	}
}

// freePatch returns a slot to the open calendar, recording appt as the
// outcome of the appointment it carried.
func freePatch(appt AppointmentStatus) Patch {
	empty := ""
	return Patch{
		Status:            ptr(StatusFree),
		ClearHold:         true,
		HolderID:          &empty,
		Patient:           &PatientDetails{},
		AppointmentStatus: ptr(appt),
		PaymentStatus:     ptr(PaymentUnpaid),
	}
}

// Release frees a slot held by requester and clears its patient data. It is
// the first step of a patient cancellation.
func (s *Service) Release(ctx context.Context, slotID, requesterID string) (*Slot, error) {
	ctx, span := slotsTracer.Start(ctx, "slots.release")
	defer span.End()
	span.SetAttributes(attribute.String("slotbook.slot_id", slotID))

	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return nil, apperr.New(apperr.KindNotFound, "No booked appointment found to cancel.")
	}
	updated, err := s.store.UpdateIf(ctx, slotID,
		Condition{HolderID: requesterID},
		freePatch(AppointmentCancelled))
	if err != nil {
		if errors.Is(err, ErrConditionFailed) || errors.Is(err, ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "No booked appointment found to cancel.")
		}
		return nil, s.fail(span, err)
	}
	s.logger.WithContext(ctx).Info("slot released", "slot_id", slotID)
	return s.cal.Present(updated, s.now()), nil
}

// ConfirmPaid books a slot whose checkout completed while the payer still
// holds it. ErrConditionFailed means the hold was lost in the meantime.
func (s *Service) ConfirmPaid(ctx context.Context, slotID, holderID string) (*Slot, error) {
	ctx, span := slotsTracer.Start(ctx, "slots.confirm_paid")
	defer span.End()
	span.SetAttributes(attribute.String("slotbook.slot_id", slotID))

	updated, err := s.store.UpdateIf(ctx, slotID,
		Condition{HolderID: holderID, Statuses: []Status{StatusHeld, StatusBooked}},
		Patch{
			Status:        ptr(StatusBooked),
			PaymentStatus: ptr(PaymentPaid),
			ClearHold:     true,
		})
	if err != nil {
		if !errors.Is(err, ErrConditionFailed) {
			span.RecordError(err)
		}
		return nil, err
	}
	s.logger.WithContext(ctx).Info("slot booked", "slot_id", slotID)
	return s.cal.Present(updated, s.now()), nil
}
