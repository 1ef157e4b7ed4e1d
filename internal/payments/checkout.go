package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/slotbook/internal/slots"
	"github.com/wolfman30/slotbook/pkg/apperr"
	"github.com/wolfman30/slotbook/pkg/logging"
)

type slotReader interface {
	Get(ctx context.Context, id string) (*slots.Slot, error)
}

type checkoutCreator interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}

// CheckoutConfig carries pricing and redirect settings.
type CheckoutConfig struct {
	AmountCents int64
	Currency    string
	SuccessURL  string
	CancelURL   string
}

// CheckoutService opens a payment for a slot held by the requester.
type CheckoutService struct {
	slots    slotReader
	payments Repository
	gateway  checkoutCreator
	cfg      CheckoutConfig
	velocity *VelocityChecker
	logger   *logging.Logger
}

// CheckoutResult is returned to the patient to continue on the hosted page.
type CheckoutResult struct {
	URL       string   `json:"url"`
	SessionID string   `json:"sessionId"`
	Payment   *Payment `json:"payment"`
}

// NewCheckoutService constructs a checkout service.
func NewCheckoutService(slotsSvc slotReader, repo Repository, gateway checkoutCreator, cfg CheckoutConfig, logger *logging.Logger) *CheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &CheckoutService{slots: slotsSvc, payments: repo, gateway: gateway, cfg: cfg, logger: logger}
}

// WithVelocity limits checkout attempts per patient.
func (s *CheckoutService) WithVelocity(v *VelocityChecker) *CheckoutService {
	s.velocity = v
	return s
}

// Checkout creates a gateway session and a pending payment. The new payment
// supersedes any earlier one for the slot.
func (s *CheckoutService) Checkout(ctx context.Context, slotID, requesterID string) (*CheckoutResult, error) {
	ctx, span := stripeTracer.Start(ctx, "payments.checkout")
	defer span.End()
	span.SetAttributes(attribute.String("slotbook.slot_id", slotID))

	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" || slot.HolderID != requesterID {
		return nil, apperr.New(apperr.KindForbidden, "This slot is not held by you.")
	}
	if slot.PaymentStatus == slots.PaymentPaid {
		return nil, apperr.New(apperr.KindInvalidState, "This appointment is already paid.")
	}
	if slot.Status != slots.StatusHeld {
		return nil, apperr.New(apperr.KindInvalidState, "Only held slots can be checked out.")
	}
	if s.velocity != nil {
		result, err := s.velocity.CheckCheckout(ctx, requesterID)
		if err != nil {
			return nil, err
		}
		if !result.Allowed {
			return nil, apperr.New(apperr.KindRateLimited, "Too many checkout attempts. Try again later.")
		}
	}

	payment := &Payment{
		ID:          uuid.NewString(),
		SlotID:      slot.ID,
		UserID:      requesterID,
		AmountCents: s.cfg.AmountCents,
		Currency:    s.cfg.Currency,
		Status:      StatusPending,
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		PaymentID:   payment.ID,
		SlotID:      slot.ID,
		UserID:      requesterID,
		AmountCents: payment.AmountCents,
		Currency:    payment.Currency,
		Description: fmt.Sprintf("Appointment %s %s", slot.Date, slot.Time),
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: create checkout session: %w", err)
	}
	payment.StripeSessionID = session.ID
	if err := s.payments.Create(ctx, payment); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.WithContext(ctx).Info("checkout started",
		"slot_id", slot.ID, "payment_id", payment.ID, "session_id", session.ID,
		"hold_until", slot.HoldUntil)
	return &CheckoutResult{URL: session.URL, SessionID: session.ID, Payment: payment}, nil
}
