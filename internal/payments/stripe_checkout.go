package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/slotbook/pkg/logging"
)

var stripeTracer = otel.Tracer("slotbook.internal.payments.stripe")

// StripeClient talks to the Stripe REST API with form-encoded requests.
type StripeClient struct {
	secretKey  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewStripeClient creates a Stripe API client.
func NewStripeClient(secretKey string, logger *logging.Logger) *StripeClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeClient{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (c *StripeClient) WithBaseURL(baseURL string) *StripeClient {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *StripeClient) WithHTTPClient(client *http.Client) *StripeClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

// CheckoutParams describes a Checkout Session for one slot.
type CheckoutParams struct {
	PaymentID   string
	SlotID      string
	UserID      string
	AmountCents int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is the subset of Stripe's Checkout Session we need.
type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	Status        string            `json:"status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// CreateCheckoutSession starts a hosted payment page for a held slot.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("slotbook.slot_id", params.SlotID),
		attribute.Int64("slotbook.amount_cents", params.AmountCents),
	)

	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	description := params.Description
	if strings.TrimSpace(description) == "" {
		description = "Doctor appointment"
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("line_items[0][quantity]", "1")
	if params.SuccessURL != "" {
		form.Set("success_url", params.SuccessURL)
	}
	if params.CancelURL != "" {
		form.Set("cancel_url", params.CancelURL)
	}

	// Metadata for webhook processing
	form.Set("metadata[slot_id]", params.SlotID)
	form.Set("metadata[user_id]", params.UserID)
	form.Set("metadata[payment_id]", params.PaymentID)
	form.Set("payment_intent_data[metadata][slot_id]", params.SlotID)
	form.Set("payment_intent_data[metadata][payment_id]", params.PaymentID)

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, "checkout-"+params.PaymentID, &session); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if session.URL == "" {
		return nil, fmt.Errorf("payments: stripe response missing checkout url")
	}
	return &session, nil
}

// RetrieveCheckoutSession loads a Checkout Session by id.
func (c *StripeClient) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.retrieve_checkout_session")
	defer span.End()

	var session CheckoutSession
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, "", &session); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &session, nil
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	apiURL := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(form) > 0 {
			apiURL += "?" + form.Encode()
		}
	} else {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Stripe-Version", c.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		gerr := readStripeError(resp)
		c.logger.WithContext(ctx).Warn("stripe api error", "path", path, "status", resp.StatusCode, "code", gerr.Code)
		return gerr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payments: stripe decode: %w", err)
	}
	return nil
}

// stripeErrorResponse represents a Stripe API error.
type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func readStripeError(resp *http.Response) *GatewayError {
	gerr := &GatewayError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		gerr.Message = "unknown error"
		return gerr
	}
	var parsed stripeErrorResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
		gerr.Type = parsed.Error.Type
		gerr.Code = parsed.Error.Code
		gerr.Message = parsed.Error.Message
		return gerr
	}
	gerr.Message = string(data)
	return gerr
}
