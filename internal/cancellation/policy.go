package cancellation

import (
	"time"

	"github.com/wolfman30/slotbook/internal/payments"
)

// Policy decides how much of a payment is returned on cancellation.
type Policy struct {
	// FullRefundWindow is how long before the appointment a cancellation
	// still earns a full refund.
	FullRefundWindow time.Duration
	// LateFeePercent is withheld from late cancellations.
	LateFeePercent int64
}

// DefaultPolicy refunds in full up to six hours before start and keeps a 10%
// fee afterwards.
func DefaultPolicy() Policy {
	return Policy{FullRefundWindow: 6 * time.Hour, LateFeePercent: 10}
}

// Quote is the refund owed for one cancellation.
type Quote struct {
	Full        bool
	RefundCents int64
	FeeCents    int64
	Status      payments.Status
}

// Quote prices a cancellation of an appointment starting at start, made at now.
func (p Policy) Quote(amountCents int64, start, now time.Time) Quote {
	if start.Sub(now) >= p.FullRefundWindow || p.LateFeePercent <= 0 {
		return Quote{Full: true, RefundCents: amountCents, Status: payments.StatusRefunded}
	}
	fee := p.LateFeePercent
	if fee > 100 {
		fee = 100
	}
	refund := amountCents * (100 - fee) / 100
	return Quote{
		RefundCents: refund,
		FeeCents:    amountCents - refund,
		Status:      payments.StatusPartialRefund,
	}
}
