package cancellation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/slotbook/internal/observability/metrics"
	"github.com/wolfman30/slotbook/internal/payments"
	"github.com/wolfman30/slotbook/internal/slots"
	"github.com/wolfman30/slotbook/pkg/apperr"
	"github.com/wolfman30/slotbook/pkg/logging"
)

var cancellationTracer = otel.Tracer("slotbook.internal.cancellation")

// Gateway is the refund-side view of the payment processor.
type Gateway interface {
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*payments.CheckoutSession, error)
	RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*payments.PaymentIntent, error)
	CreateRefund(ctx context.Context, params payments.RefundParams) (*payments.Refund, error)
}

type slotReleaser interface {
	Get(ctx context.Context, id string) (*slots.Slot, error)
	Release(ctx context.Context, slotID, requesterID string) (*slots.Slot, error)
}

// RefundStatus names the refund branch a cancellation took.
type RefundStatus string

const (
	RefundNone            RefundStatus = "none"
	RefundFull            RefundStatus = "refunded"
	RefundPartial         RefundStatus = "partial_refund"
	RefundAlreadyRefunded RefundStatus = "already_refunded"
	RefundFailedStatus    RefundStatus = "failed"
)

// RefundOutcome describes what happened to the money.
type RefundOutcome struct {
	Status      RefundStatus `json:"status"`
	AmountCents int64        `json:"amount,omitempty"`
	FeeCents    int64        `json:"fee,omitempty"`
	Currency    string       `json:"currency,omitempty"`
	RefundID    string       `json:"refundId,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Result is the outcome of a cancellation. The slot is always released when
// a result is returned; RefundErr reports a refund that still needs
// reconciliation.
type Result struct {
	Slot      *slots.Slot   `json:"appointment"`
	Note      string        `json:"note"`
	Refund    RefundOutcome `json:"refund"`
	RefundErr error         `json:"-"`
}

// Engine cancels appointments and drives refunds.
type Engine struct {
	slots    slotReleaser
	payments payments.Repository
	gateway  Gateway
	policy   Policy
	metrics  *metrics.ReservationMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewEngine constructs a cancellation engine.
func NewEngine(slotSvc slotReleaser, repo payments.Repository, gateway Gateway, policy Policy, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		slots:    slotSvc,
		payments: repo,
		gateway:  gateway,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// WithMetrics attaches reservation metrics.
func (e *Engine) WithMetrics(m *metrics.ReservationMetrics) *Engine {
	e.metrics = m
	return e
}

// Cancel releases the requester's slot and then settles its payment. The
// release is committed before any gateway call and is never rolled back.
// When the slot was already released by an earlier attempt, a settled payment
// of the requester is reconciled again so retries converge.
func (e *Engine) Cancel(ctx context.Context, slotID, requesterID string) (*Result, error) {
	ctx, span := cancellationTracer.Start(ctx, "cancellation.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("slotbook.slot_id", slotID))

	slotID = strings.TrimSpace(slotID)
	requesterID = strings.TrimSpace(requesterID)
	if slotID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "Appointment id is required.")
	}
	if requesterID == "" {
		return nil, apperr.New(apperr.KindNotFound, "No booked appointment found to cancel.")
	}

	slot, releaseErr := e.slots.Release(ctx, slotID, requesterID)
	if releaseErr != nil && !errors.Is(releaseErr, apperr.NotFound) {
		span.RecordError(releaseErr)
		return nil, releaseErr
	}

	payment, err := e.payments.LatestForSlot(ctx, slotID)
	switch {
	case errors.Is(err, payments.ErrNotFound):
		payment = nil
	case err != nil:
		if releaseErr != nil {
			span.RecordError(err)
			return nil, err
		}
		// The slot is already free; report the lookup failure as a refund problem.
		e.logger.WithContext(ctx).Error("payment lookup failed after release", "slot_id", slotID, "error", err)
		return e.finish(ctx, slot, RefundOutcome{Status: RefundFailedStatus, Error: err.Error()},
			apperr.Wrap(apperr.KindRefundFailed, "Payment lookup failed.", err)), nil
	}
	if payment != nil && payment.UserID != requesterID {
		payment = nil
	}

	if releaseErr != nil {
		// Retry path: only a settled payment of this requester keeps the call meaningful.
		if payment == nil || !payment.Status.Settled() {
			return nil, releaseErr
		}
		live, err := e.slots.Get(ctx, slotID)
		if err != nil {
			return nil, err
		}
		slot = releasedView(live)
	}

	if payment == nil || payment.Status == payments.StatusPending {
		return e.finish(ctx, slot, RefundOutcome{Status: RefundNone}, nil), nil
	}
	if payment.Status == payments.StatusRefunded || payment.Status == payments.StatusPartialRefund {
		return e.finish(ctx, slot, RefundOutcome{
			Status:      RefundAlreadyRefunded,
			AmountCents: payment.RefundedCents,
			Currency:    payment.Currency,
			RefundID:    payment.RefundID,
		}, nil), nil
	}

	outcome, refundErr := e.refund(ctx, slot, payment)
	return e.finish(ctx, slot, outcome, refundErr), nil
}

// releasedView reports a slot the requester no longer holds. Whoever holds it
// now stays out of the response.
func releasedView(live *slots.Slot) *slots.Slot {
	return &slots.Slot{
		ID:                live.ID,
		DoctorID:          live.DoctorID,
		Date:              live.Date,
		Time:              live.Time,
		StartTime:         live.StartTime,
		EndTime:           live.EndTime,
		DurationMinutes:   live.DurationMinutes,
		Status:            slots.StatusFree,
		AppointmentStatus: slots.AppointmentCancelled,
		PaymentStatus:     slots.PaymentUnpaid,
	}
}

func (e *Engine) refund(ctx context.Context, slot *slots.Slot, payment *payments.Payment) (RefundOutcome, error) {
	started := time.Now()
	outcome, err := e.refundPayment(ctx, slot, payment)
	e.metrics.ObserveRefundLatency(string(outcome.Status), time.Since(started).Seconds())
	return outcome, err
}

func (e *Engine) refundPayment(ctx context.Context, slot *slots.Slot, payment *payments.Payment) (RefundOutcome, error) {
	failed := func(msg string, cause error) (RefundOutcome, error) {
		out := RefundOutcome{Status: RefundFailedStatus, Currency: payment.Currency}
		if cause != nil {
			out.Error = cause.Error()
		} else {
			out.Error = msg
		}
		e.logger.WithContext(ctx).Error("refund failed", "slot_id", slot.ID, "payment_id", payment.ID, "reason", msg, "error", cause)
		return out, apperr.Wrap(apperr.KindRefundFailed, msg, cause)
	}

	if payment.StripeSessionID == "" {
		return failed("Payment has no checkout session.", nil)
	}
	session, err := e.gateway.RetrieveCheckoutSession(ctx, payment.StripeSessionID)
	if err != nil {
		return failed("Could not retrieve checkout session.", err)
	}
	intentID := session.PaymentIntent
	if intentID == "" {
		intentID = payment.PaymentIntentID
	}
	if intentID == "" {
		return failed("Checkout session has no payment intent.", nil)
	}
	intent, err := e.gateway.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		return failed("Could not retrieve payment intent.", err)
	}

	amount := intent.Amount
	if amount <= 0 {
		amount = payment.AmountCents
	}
	if refunded, ok := intent.AmountRefunded(); ok {
		status := payments.StatusPartialRefund
		if refunded >= amount {
			status = payments.StatusRefunded
		}
		e.record(ctx, payment, status, refunded, "")
		return RefundOutcome{Status: RefundAlreadyRefunded, AmountCents: refunded, Currency: payment.Currency}, nil
	}

	quote := e.policy.Quote(amount, slot.StartTime, e.now())
	params := payments.RefundParams{
		PaymentIntentID: intentID,
		Reason:          "requested_by_customer",
		IdempotencyKey:  fmt.Sprintf("refund-%s-%d", payment.ID, quote.RefundCents),
	}
	if !quote.Full {
		params.AmountCents = quote.RefundCents
	}
	refund, err := e.gateway.CreateRefund(ctx, params)
	if err != nil {
		if payments.IsAlreadyRefunded(err) {
			e.record(ctx, payment, quote.Status, quote.RefundCents, "")
			return RefundOutcome{Status: RefundAlreadyRefunded, AmountCents: quote.RefundCents, Currency: payment.Currency}, nil
		}
		return failed("Refund was rejected by the payment gateway.", err)
	}

	refunded := refund.Amount
	if refunded <= 0 {
		refunded = quote.RefundCents
	}
	e.record(ctx, payment, quote.Status, refunded, refund.ID)
	status := RefundFull
	if !quote.Full {
		status = RefundPartial
	}
	return RefundOutcome{
		Status:      status,
		AmountCents: refunded,
		FeeCents:    quote.FeeCents,
		Currency:    payment.Currency,
		RefundID:    refund.ID,
	}, nil
}

// record persists the refund; the gateway is authoritative so a failed write
// is logged and left for reconciliation.
func (e *Engine) record(ctx context.Context, payment *payments.Payment, status payments.Status, refundedCents int64, refundID string) {
	if _, err := e.payments.RecordRefund(ctx, payment.ID, status, refundedCents, refundID); err != nil {
		e.logger.WithContext(ctx).Error("failed to update payment status after refund",
			"payment_id", payment.ID, "refund_id", refundID, "error", err)
	}
}

func (e *Engine) finish(ctx context.Context, slot *slots.Slot, outcome RefundOutcome, refundErr error) *Result {
	e.metrics.ObserveCancellation(string(outcome.Status))
	e.logger.WithContext(ctx).Info("appointment cancelled", "slot_id", slot.ID, "refund", outcome.Status)
	return &Result{Slot: slot, Note: noteFor(outcome), Refund: outcome, RefundErr: refundErr}
}

func noteFor(o RefundOutcome) string {
	switch o.Status {
	case RefundFull:
		return fmt.Sprintf("Appointment cancelled. Full refund of %s issued.", money(o.AmountCents, o.Currency))
	case RefundPartial:
		return fmt.Sprintf("Appointment cancelled. Refund of %s issued after a %s late cancellation fee.",
			money(o.AmountCents, o.Currency), money(o.FeeCents, o.Currency))
	case RefundAlreadyRefunded:
		return "Appointment cancelled. Payment was already refunded."
	case RefundFailedStatus:
		return "Appointment cancelled, but the refund could not be processed. It will be reconciled later."
	default:
		return "Appointment cancelled. No payment to refund."
	}
}

func money(cents int64, currency string) string {
	if currency == "" {
		currency = "usd"
	}
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, strings.ToUpper(currency))
}
