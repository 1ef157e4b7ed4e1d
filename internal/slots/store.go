package slots

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no slot has the requested id.
	ErrNotFound = errors.New("slots: not found")
	// ErrConditionFailed is returned by UpdateIf when the predicate no longer holds.
	ErrConditionFailed = errors.New("slots: condition failed")
	// ErrOverlap is returned when a write would make two slots of one doctor overlap.
	ErrOverlap = errors.New("slots: overlapping slot")
)

// Query selects slots. Zero-valued fields do not filter.
type Query struct {
	DoctorID string
	Date     string
	HolderID string
	IDs      []string
	Statuses []Status

	AppointmentStatus AppointmentStatus

	// StartsAt and EndsAt match exact instants.
	StartsAt *time.Time
	EndsAt   *time.Time
	// StartsAfter keeps slots whose start is strictly later.
	StartsAfter *time.Time
	// ClaimableAt keeps slots that are free or whose hold lapsed before it.
	ClaimableAt *time.Time
}

// Condition guards UpdateIf. Every set field must hold for the write to apply.
type Condition struct {
	ClaimableAt *time.Time
	// ActiveAt rejects held slots whose hold lapsed before it.
	ActiveAt          *time.Time
	HolderID          string
	HasHolder         bool
	AppointmentStatus AppointmentStatus
	Statuses          []Status
}

// Matches evaluates the condition against a slot.
func (c Condition) Matches(s *Slot) bool {
	if c.ClaimableAt != nil && !s.Claimable(*c.ClaimableAt) {
		return false
	}
	if c.ActiveAt != nil && s.HoldLapsed(*c.ActiveAt) {
		return false
	}
	if c.HolderID != "" && s.HolderID != c.HolderID {
		return false
	}
	if c.HasHolder && s.HolderID == "" {
		return false
	}
	if c.AppointmentStatus != "" && s.AppointmentStatus != c.AppointmentStatus {
		return false
	}
	if len(c.Statuses) > 0 && !containsStatus(c.Statuses, s.Status) {
		return false
	}
	return true
}

// Patch lists the fields UpdateIf writes. Nil fields are left untouched.
type Patch struct {
	Status            *Status
	AppointmentStatus *AppointmentStatus
	PaymentStatus     *PaymentStatus
	HoldUntil         *time.Time
	ClearHold         bool
	HolderID          *string
	Patient           *PatientDetails
}

// Apply writes the patch onto s.
func (p Patch) Apply(s *Slot) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.AppointmentStatus != nil {
		s.AppointmentStatus = *p.AppointmentStatus
	}
	if p.PaymentStatus != nil {
		s.PaymentStatus = *p.PaymentStatus
	}
	if p.ClearHold {
		s.HoldUntil = nil
	} else if p.HoldUntil != nil {
		until := *p.HoldUntil
		s.HoldUntil = &until
	}
	if p.HolderID != nil {
		s.HolderID = *p.HolderID
	}
	if p.Patient != nil {
		s.Patient = *p.Patient
	}
}

// Store persists slots. UpdateIf is an atomic compare-and-swap on one record;
// InsertWindow atomically checks the doctor's calendar before inserting.
type Store interface {
	InsertWindow(ctx context.Context, doctorID string, window Interval, slots []*Slot) error
	Get(ctx context.Context, id string) (*Slot, error)
	Find(ctx context.Context, q Query) ([]*Slot, error)
	UpdateIf(ctx context.Context, id string, cond Condition, patch Patch) (*Slot, error)
}

func containsStatus(list []Status, s Status) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T {
	return &v
}
