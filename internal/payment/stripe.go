package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"themeseller/config"
)

const stripeName = "stripe"

// StripeProvider drives Stripe hosted checkout sessions. Completion
// arrives as a signed webhook event; the session lookup endpoint serves
// as the authoritative re-verification.
type StripeProvider struct {
	httpClient    *http.Client
	baseURL       string
	secretKey     string
	webhookSecret string
	callbackURL   string
}

// NewStripeProvider creates the card checkout provider. callbackURL is
// where the buyer's browser lands after leaving the hosted checkout.
func NewStripeProvider(cfg config.StripeConfig, callbackURL string) *StripeProvider {
	return &StripeProvider{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:       cfg.BaseURL,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		callbackURL:   callbackURL,
	}
}

func (p *StripeProvider) Name() string { return stripeName }

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	PaymentIntent string `json:"payment_intent"`
	ClientRefID   string `json:"client_reference_id"`
}

// CreateSession creates a hosted checkout session. The order number
// travels as client_reference_id, which comes back on the webhook event.
func (p *StripeProvider) CreateSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.OrderNumber)
	form.Set("customer_email", req.CustomerEmail)
	form.Set("success_url", fmt.Sprintf("%s?reference=%s&status=success", p.callbackURL, req.OrderNumber))
	form.Set("cancel_url", fmt.Sprintf("%s?reference=%s&status=cancelled", p.callbackURL, req.OrderNumber))
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", req.Amount))
	form.Set("line_items[0][price_data][product_data][name]", fmt.Sprintf("Commande %s", req.OrderNumber))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create checkout session: unexpected status %d", resp.StatusCode)
	}

	var session stripeSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}

	return &Session{
		Reference:   session.ID,
		CheckoutURL: session.URL,
	}, nil
}

// Verify re-checks the session's payment status against Stripe.
func (p *StripeProvider) Verify(ctx context.Context, reference string) (Status, error) {
	if !strings.HasPrefix(reference, "cs_") {
		return StatusPending, ErrVerifyUnsupported
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/v1/checkout/sessions/"+reference, nil)
	if err != nil {
		return StatusPending, fmt.Errorf("http new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.secretKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return StatusPending, fmt.Errorf("verify session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusPending, fmt.Errorf("verify session: unexpected status %d", resp.StatusCode)
	}

	var session stripeSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return StatusPending, fmt.Errorf("decode session: %w", err)
	}

	if session.PaymentStatus == "paid" {
		return StatusSuccess, nil
	}
	if session.Status == "expired" {
		return StatusFailure, nil
	}
	return StatusPending, nil
}

type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object stripeSession `json:"object"`
	} `json:"data"`
}

// ParseNotification verifies the webhook signature and extracts the
// completion signal from a checkout.session event.
func (p *StripeProvider) ParseNotification(header http.Header, body []byte) (*Signal, error) {
	if err := p.checkSignature(header.Get("Stripe-Signature"), body); err != nil {
		return nil, err
	}

	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("unmarshal webhook event: %w", err)
	}

	session := event.Data.Object
	if session.ClientRefID == "" {
		return nil, fmt.Errorf("webhook event %s has no client reference", event.Type)
	}

	rawStatus := session.PaymentStatus
	switch event.Type {
	case "checkout.session.completed":
		// payment_status already carries paid/unpaid
	case "checkout.session.expired":
		rawStatus = "expired"
	default:
		rawStatus = ""
	}

	transactionID := session.PaymentIntent
	if transactionID == "" {
		transactionID = session.ID
	}

	return &Signal{
		Provider:      stripeName,
		Reference:     session.ClientRefID,
		TransactionID: transactionID,
		RawStatus:     rawStatus,
	}, nil
}

// checkSignature validates the t=<ts>,v1=<hmac> header scheme: the
// signed payload is "<ts>.<body>" under HMAC-SHA256 with the webhook
// secret.
func (p *StripeProvider) checkSignature(sigHeader string, body []byte) error {
	if sigHeader == "" {
		return fmt.Errorf("missing webhook signature")
	}

	var timestamp, signature string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signature = kv[1]
		}
	}
	if timestamp == "" || signature == "" {
		return fmt.Errorf("malformed webhook signature header")
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("webhook signature mismatch")
	}
	return nil
}
