package slots

import (
	"strings"
	"time"
)

// Status is the normalized lifecycle state of a slot.
type Status string

const (
	StatusFree   Status = "free"
	StatusHeld   Status = "held"
	StatusBooked Status = "booked"
)

// AppointmentStatus is the doctor-review state of the appointment in a slot.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentApproved  AppointmentStatus = "approved"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentVisited   AppointmentStatus = "visited"
)

// PaymentStatus mirrors whether the slot has been paid for.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// PatientDetails are captured when a slot is held.
type PatientDetails struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address" validate:"required"`
}

// Trimmed returns a copy with surrounding whitespace removed.
func (p PatientDetails) Trimmed() PatientDetails {
	return PatientDetails{
		Name:    strings.TrimSpace(p.Name),
		Phone:   strings.TrimSpace(p.Phone),
		Address: strings.TrimSpace(p.Address),
	}
}

// Slot is one bookable time unit of a doctor.
type Slot struct {
	ID                string            `json:"id"`
	DoctorID          string            `json:"doctorId"`
	Date              string            `json:"date"`
	Time              string            `json:"time"`
	StartTime         time.Time         `json:"startTime"`
	EndTime           time.Time         `json:"endTime"`
	DurationMinutes   int               `json:"durationMinutes"`
	Status            Status            `json:"status"`
	AppointmentStatus AppointmentStatus `json:"appointmentStatus"`
	HoldUntil         *time.Time        `json:"holdUntil,omitempty"`
	HolderID          string            `json:"holderId,omitempty"`
	Patient           PatientDetails    `json:"patientDetails"`
	PaymentStatus     PaymentStatus     `json:"paymentStatus"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// Claimable reports whether a hold may be granted at now: the slot is free,
// or its hold has lapsed.
func (s *Slot) Claimable(now time.Time) bool {
	switch s.Status {
	case StatusFree:
		return true
	case StatusHeld:
		return s.HoldLapsed(now)
	default:
		return false
	}
}

// HoldLapsed reports whether the slot is held but its hold window ended before now.
func (s *Slot) HoldLapsed(now time.Time) bool {
	return s.Status == StatusHeld && (s.HoldUntil == nil || s.HoldUntil.Before(now))
}

// EffectiveStatus is the status observed at now; lapsed holds read as free.
func (s *Slot) EffectiveStatus(now time.Time) Status {
	if s.Status == StatusHeld && s.Claimable(now) {
		return StatusFree
	}
	return s.Status
}

// Overlaps reports whether the slot intersects [start,end).
func (s *Slot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && s.EndTime.After(start)
}

// Clone returns a deep copy.
func (s *Slot) Clone() *Slot {
	if s == nil {
		return nil
	}
	cp := *s
	if s.HoldUntil != nil {
		until := *s.HoldUntil
		cp.HoldUntil = &until
	}
	return &cp
}

// Interval is a half-open time range [Start,End).
type Interval struct {
	Start time.Time
	End   time.Time
}
