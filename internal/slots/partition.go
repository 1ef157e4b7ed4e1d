package slots

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/slotbook/pkg/apperr"
)

// CreateSlotsRequest publishes a window of availability for one doctor.
type CreateSlotsRequest struct {
	DoctorID        string `json:"-" validate:"required"`
	Date            string `json:"date" validate:"required"`
	StartTime       string `json:"startTime" validate:"required"`
	EndTime         string `json:"endTime" validate:"required"`
	DurationMinutes int    `json:"duration"`
}

// CreateSlots partitions [start,end) into back-to-back slots of the requested
// duration. Any remainder shorter than one slot is discarded.
func (s *Service) CreateSlots(ctx context.Context, req CreateSlotsRequest) ([]*Slot, error) {
	ctx, span := slotsTracer.Start(ctx, "slots.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("slotbook.doctor_id", req.DoctorID),
		attribute.Int("slotbook.duration_minutes", req.DurationMinutes),
	)

	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.Date = strings.TrimSpace(req.Date)
	req.StartTime = strings.TrimSpace(req.StartTime)
	req.EndTime = strings.TrimSpace(req.EndTime)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	start, err := s.cal.ParseInstant(req.Date, req.StartTime)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "Invalid date or time format.")
	}
	end, err := s.cal.ParseInstant(req.Date, req.EndTime)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "Invalid date or time format.")
	}
	if !end.After(start) {
		if !s.allowOvernight {
			return nil, apperr.New(apperr.KindInvalidInput, "End time must be after start time.")
		}
		end = end.AddDate(0, 0, 1)
	}
	now := s.now()
	if start.Before(now) {
		return nil, apperr.New(apperr.KindInvalidInput, "Cannot create slots in the past.")
	}
	if req.DurationMinutes < minSlotMinutes || req.DurationMinutes > maxSlotMinutes {
		return nil, apperr.Newf(apperr.KindInvalidInput, "Duration must be between %d and %d minutes.", minSlotMinutes, maxSlotMinutes)
	}

	step := time.Duration(req.DurationMinutes) * time.Minute
	count := int(end.Sub(start) / step)
	if count == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "No slots can be created within the given time range.")
	}

	batch := make([]*Slot, 0, count)
	for i := 0; i < count; i++ {
		slotStart := start.Add(time.Duration(i) * step)
		batch = append(batch, &Slot{
			DoctorID:          req.DoctorID,
			Date:              s.cal.FormatDate(slotStart),
			StartTime:         slotStart,
			EndTime:           slotStart.Add(step),
			DurationMinutes:   req.DurationMinutes,
			Status:            StatusFree,
			AppointmentStatus: AppointmentPending,
			PaymentStatus:     PaymentUnpaid,
		})
	}

	window := Interval{Start: start, End: end}
	if err := s.store.InsertWindow(ctx, req.DoctorID, window, batch); err != nil {
		if errors.Is(err, ErrOverlap) {
			return nil, apperr.New(apperr.KindConflict, "Slots conflict with existing slots.")
		}
		return nil, s.fail(span, err)
	}

	s.metrics.ObserveSlotsCreated(len(batch))
	s.logger.WithContext(ctx).Info("slots created", "doctor_id", req.DoctorID, "date", req.Date, "count", len(batch))
	return s.cal.PresentAll(batch, now), nil
}
