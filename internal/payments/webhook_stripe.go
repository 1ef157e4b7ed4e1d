package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/slotbook/internal/observability/metrics"
	"github.com/wolfman30/slotbook/internal/slots"
	"github.com/wolfman30/slotbook/pkg/logging"
)

const (
	stripeProvider           = "stripe"
	eventCheckoutCompleted   = "checkout.session.completed"
	signatureToleranceSecond = 300
)

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type slotBooker interface {
	ConfirmPaid(ctx context.Context, slotID, holderID string) (*slots.Slot, error)
}

// StripeWebhookHandler handles Stripe webhook events for checkout session completion.
type StripeWebhookHandler struct {
	webhookSecret string
	payments      Repository
	booker        slotBooker
	processed     processedTracker
	metrics       *metrics.ReservationMetrics
	logger        *logging.Logger
	now           func() time.Time
}

// NewStripeWebhookHandler creates a new handler for Stripe webhooks.
func NewStripeWebhookHandler(
	webhookSecret string,
	payments Repository,
	booker slotBooker,
	processed processedTracker,
	m *metrics.ReservationMetrics,
	logger *logging.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		payments:      payments,
		booker:        booker,
		processed:     processed,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// Handle processes incoming Stripe webhook events.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !verifyStripeSignature(h.webhookSecret, payload, r.Header.Get("Stripe-Signature"), h.now()) {
		h.metrics.ObserveWebhook("unknown", "bad_signature")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	// Only handle checkout.session.completed
	if evt.Type != eventCheckoutCompleted {
		h.metrics.ObserveWebhook(evt.Type, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	if processed, err := h.processed.AlreadyProcessed(ctx, stripeProvider, evt.ID); err != nil {
		h.logger.Error("processed lookup failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if processed {
		h.metrics.ObserveWebhook(evt.Type, "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	session := evt.Data.Object
	paymentID := session.Metadata["payment_id"]
	slotID := session.Metadata["slot_id"]
	userID := session.Metadata["user_id"]
	if paymentID == "" || slotID == "" || userID == "" {
		h.logger.Warn("stripe webhook missing required metadata", "event_id", evt.ID, "metadata", session.Metadata)
		// Acknowledge to prevent retries but can't progress workflow
		h.metrics.ObserveWebhook(evt.Type, "missing_metadata")
		w.WriteHeader(http.StatusOK)
		return
	}
	if session.PaymentStatus != "" && session.PaymentStatus != "paid" {
		h.logger.Info("checkout completed without payment", "event_id", evt.ID, "payment_status", session.PaymentStatus)
		h.metrics.ObserveWebhook(evt.Type, "unpaid")
		w.WriteHeader(http.StatusOK)
		return
	}

	paid, err := h.payments.MarkSucceeded(ctx, paymentID, session.PaymentIntent)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.logger.Warn("stripe webhook for unknown payment", "event_id", evt.ID, "payment_id", paymentID)
			h.metrics.ObserveWebhook(evt.Type, "unknown_payment")
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("failed to update payment record", "error", err, "payment_id", paymentID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	// The payment record follows the appointment when it moves; session metadata does not.
	if paid.SlotID != "" {
		slotID = paid.SlotID
	}

	if _, err := h.booker.ConfirmPaid(ctx, slotID, userID); err != nil {
		if !errors.Is(err, slots.ErrConditionFailed) {
			h.logger.Error("failed to book paid slot", "error", err, "slot_id", slotID)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		// The payment stays succeeded; the slot is reconciled out of band.
		h.logger.Warn("payment completed for a slot no longer held by the payer",
			"event_id", evt.ID, "slot_id", slotID, "payment_id", paymentID, "user_id", userID)
		h.metrics.ObserveOrphanedPayment()
	}

	if _, err := h.processed.MarkProcessed(ctx, stripeProvider, evt.ID); err != nil {
		h.logger.Error("failed to record processed event", "error", err)
	}
	h.metrics.ObserveWebhook(evt.Type, "processed")
	h.logger.Info("stripe checkout completed", "event_id", evt.ID, "slot_id", slotID, "payment_id", paymentID)
	w.WriteHeader(http.StatusOK)
}

// stripeWebhookEvent represents a Stripe webhook event envelope.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

// verifyStripeSignature verifies a Stripe webhook signature.
// Stripe signs with HMAC-SHA256 and sends the signature in the Stripe-Signature header
// as: t=<timestamp>,v1=<signature>[,v0=<test_signature>]
func verifyStripeSignature(secret string, payload []byte, header string, now time.Time) bool {
	if secret == "" {
		return true // bypass for development
	}
	if header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if abs64(now.Unix()-ts) > signatureToleranceSecond {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, payload)))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
