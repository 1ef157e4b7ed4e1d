package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// CodeChargeAlreadyRefunded is Stripe's error code for a redundant refund.
const CodeChargeAlreadyRefunded = "charge_already_refunded"

// GatewayError is a non-2xx answer from the payment gateway.
type GatewayError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payments: stripe api status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("payments: stripe api status %d: %s", e.StatusCode, e.Message)
}

// IsAlreadyRefunded reports whether err means the charge was refunded before.
func IsAlreadyRefunded(err error) bool {
	var gerr *GatewayError
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == CodeChargeAlreadyRefunded ||
		strings.Contains(strings.ToLower(gerr.Message), "already been refunded")
}

// Charge is the refund-relevant view of a Stripe charge.
type Charge struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Refunded       bool   `json:"refunded"`
	AmountRefunded int64  `json:"amount_refunded"`
}

// PaymentIntent is the subset of Stripe's PaymentIntent we need.
type PaymentIntent struct {
	ID           string  `json:"id"`
	Amount       int64   `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
	LatestCharge *Charge `json:"latest_charge"`
	Charges      struct {
		Data []Charge `json:"data"`
	} `json:"charges"`
}

// AllCharges merges the expanded latest charge with any legacy charge list.
func (pi *PaymentIntent) AllCharges() []Charge {
	out := append([]Charge(nil), pi.Charges.Data...)
	if pi.LatestCharge != nil {
		for _, c := range out {
			if c.ID == pi.LatestCharge.ID {
				return out
			}
		}
		out = append(out, *pi.LatestCharge)
	}
	return out
}

// AmountRefunded sums refunds across the intent's charges. The second result
// reports whether any charge carries a refund.
func (pi *PaymentIntent) AmountRefunded() (int64, bool) {
	var total int64
	refunded := false
	for _, c := range pi.AllCharges() {
		total += c.AmountRefunded
		if c.Refunded || c.AmountRefunded > 0 {
			refunded = true
		}
	}
	return total, refunded
}

// RefundParams requests a refund against a payment intent. A zero amount
// refunds whatever remains.
type RefundParams struct {
	PaymentIntentID string
	AmountCents     int64
	Reason          string
	IdempotencyKey  string
}

// Refund is the subset of Stripe's Refund we need.
type Refund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// RetrievePaymentIntent loads a payment intent with its latest charge expanded.
func (c *StripeClient) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.retrieve_payment_intent")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.payment_intent", paymentIntentID))

	query := url.Values{}
	query.Add("expand[]", "latest_charge")
	var pi PaymentIntent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(paymentIntentID), query, "", &pi); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &pi, nil
}

// CreateRefund issues a refund against a payment intent.
func (c *StripeClient) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.payment_intent", params.PaymentIntentID),
		attribute.Int64("slotbook.amount_cents", params.AmountCents),
	)

	form := url.Values{}
	form.Set("payment_intent", params.PaymentIntentID)
	if params.AmountCents > 0 {
		form.Set("amount", strconv.FormatInt(params.AmountCents, 10))
	}
	if params.Reason != "" {
		form.Set("reason", params.Reason)
	}

	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", form, params.IdempotencyKey, &refund); err != nil {
		if !IsAlreadyRefunded(err) {
			span.RecordError(err)
		}
		return nil, err
	}
	c.logger.WithContext(ctx).Info("refund processed",
		"refund_id", refund.ID,
		"payment_intent", params.PaymentIntentID,
		"status", refund.Status,
		"amount_cents", refund.Amount,
	)
	return &refund, nil
}
