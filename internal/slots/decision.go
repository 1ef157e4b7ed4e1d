package slots

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/slotbook/pkg/apperr"
)

// Decide records a doctor's approve/decline decision on a pending
// appointment. Approval books the slot; a decline returns it to the open
// calendar. A hold that has lapsed can no longer be decided.
func (s *Service) Decide(ctx context.Context, slotID string, decision AppointmentStatus) (*Slot, error) {
	ctx, span := slotsTracer.Start(ctx, "slots.decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("slotbook.slot_id", slotID),
		attribute.String("slotbook.decision", string(decision)),
	)

	decision = AppointmentStatus(strings.ToLower(strings.TrimSpace(string(decision))))
	var patch Patch
	switch decision {
	case AppointmentApproved:
		patch = Patch{AppointmentStatus: ptr(AppointmentApproved), Status: ptr(StatusBooked), ClearHold: true}
	case AppointmentCancelled:
		patch = freePatch(AppointmentCancelled)
	default:
		return nil, apperr.New(apperr.KindInvalidInput, "Invalid status value. Use 'approved' or 'cancelled'.")
	}

	now := s.now()
	updated, err := s.store.UpdateIf(ctx, slotID,
		Condition{AppointmentStatus: AppointmentPending, HasHolder: true, ActiveAt: &now},
		patch)
	if err != nil {
		if !errors.Is(err, ErrConditionFailed) {
			return nil, s.fail(span, err)
		}
		current, getErr := s.store.Get(ctx, slotID)
		if getErr != nil {
			return nil, s.fail(span, storeError(getErr, "Appointment not found."))
		}
		if current.HoldLapsed(now) {
			return nil, apperr.New(apperr.KindInvalidState, "The patient's hold on this slot has expired.")
		}
		return nil, apperr.New(apperr.KindInvalidState, "Only pending appointments with a patient can be updated.")
	}

	s.metrics.ObserveDecision(string(decision))
	s.logger.WithContext(ctx).Info("appointment decided", "slot_id", slotID, "decision", decision)
	return s.cal.Present(updated, now), nil
}
