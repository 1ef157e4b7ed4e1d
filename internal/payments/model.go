package payments

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending       Status = "pending"
	StatusSucceeded     Status = "succeeded"
	StatusRefunded      Status = "refunded"
	StatusPartialRefund Status = "partial_refund"
)

// Settled reports whether money was captured for the payment at some point.
func (s Status) Settled() bool {
	return s == StatusSucceeded || s == StatusRefunded || s == StatusPartialRefund
}

// ErrNotFound is returned when no payment matches.
var ErrNotFound = errors.New("payments: not found")

// Payment is the monetary record tied to one slot. The newest payment of a
// slot is its active one.
type Payment struct {
	ID              string    `json:"id"`
	SlotID          string    `json:"slotId"`
	UserID          string    `json:"userId"`
	AmountCents     int64     `json:"amount"`
	Currency        string    `json:"currency"`
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	StripeSessionID string    `json:"stripeSessionId,omitempty"`
	Status          Status    `json:"status"`
	RefundedCents   int64     `json:"refundedAmount"`
	RefundID        string    `json:"refundId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Clone returns a copy.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
