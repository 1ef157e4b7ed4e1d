package slots

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/slotbook/internal/observability/metrics"
	"github.com/wolfman30/slotbook/pkg/apperr"
	"github.com/wolfman30/slotbook/pkg/logging"
)

var slotsTracer = otel.Tracer("slotbook.internal.slots")

const (
	defaultHoldDuration = 2 * time.Minute
	minSlotMinutes      = 10
	maxSlotMinutes      = 60
)

// Relinker moves records keyed by a slot, such as payments, when an
// appointment moves to another slot.
type Relinker interface {
	Relink(ctx context.Context, fromSlotID, toSlotID, holderID string) error
}

// Service owns slot publication, holds, patient edits and doctor decisions.
type Service struct {
	store          Store
	cal            Calendar
	logger         *logging.Logger
	metrics        *metrics.ReservationMetrics
	relinker       Relinker
	now            func() time.Time
	holdDuration   time.Duration
	allowOvernight bool
}

// NewService constructs a slot service.
func NewService(store Store, cal Calendar, logger *logging.Logger) *Service {
	if store == nil {
		panic("slots: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:        store,
		cal:          cal,
		logger:       logger,
		now:          time.Now,
		holdDuration: defaultHoldDuration,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithHoldDuration sets how long a hold reserves a slot.
func (s *Service) WithHoldDuration(d time.Duration) *Service {
	if d > 0 {
		s.holdDuration = d
	}
	return s
}

// WithOvernightWindows lets a publication window run past midnight when its
// end time is not after its start time.
func (s *Service) WithOvernightWindows(allow bool) *Service {
	s.allowOvernight = allow
	return s
}

// WithMetrics attaches reservation metrics.
func (s *Service) WithMetrics(m *metrics.ReservationMetrics) *Service {
	s.metrics = m
	return s
}

// WithRelinker attaches the owner of slot-keyed records that follow a moved
// appointment.
func (s *Service) WithRelinker(r Relinker) *Service {
	s.relinker = r
	return s
}

// Calendar exposes the doctor-local calendar used by the service.
func (s *Service) Calendar() Calendar {
	return s.cal
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.now()
}

// Get loads a slot for presentation.
func (s *Service) Get(ctx context.Context, id string) (*Slot, error) {
	slot, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err, "Slot not found.")
	}
	return s.cal.Present(slot, s.now()), nil
}

func (s *Service) fail(span trace.Span, err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// storeError translates store sentinels into caller-facing errors.
func storeError(err error, notFound string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.New(apperr.KindNotFound, notFound)
	case errors.Is(err, ErrOverlap):
		return apperr.New(apperr.KindUnavailable, "The selected time overlaps another slot.")
	default:
		return err
	}
}
