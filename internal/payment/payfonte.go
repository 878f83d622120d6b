package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"themeseller/config"
)

const payfonteName = "payfonte"

// PayfonteProvider drives the mobile-money aggregator checkout.
// Completion is delivered by a browser redirect carrying reference and
// status query params, plus an unsigned server-to-server webhook; both
// are untrusted and must be re-verified through Verify.
type PayfonteProvider struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	environment  string
	callbackURL  string
}

// NewPayfonteProvider creates the mobile-money checkout provider.
func NewPayfonteProvider(cfg config.PayfonteConfig, callbackURL string) *PayfonteProvider {
	return &PayfonteProvider{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		environment:  cfg.Environment,
		callbackURL:  callbackURL,
	}
}

func (p *PayfonteProvider) Name() string { return payfonteName }

func (p *PayfonteProvider) setHeaders(req *http.Request) {
	req.Header.Set("client-id", p.clientID)
	req.Header.Set("client-secret", p.clientSecret)
	req.Header.Set("Content-Type", "application/json")
}

type payfonteCheckoutResponse struct {
	Data struct {
		URL       string `json:"url"`
		Reference string `json:"reference"`
	} `json:"data"`
}

// CreateSession creates a checkout; the order number is used as the
// provider-side reference so the redirect callback correlates directly.
func (p *PayfonteProvider) CreateSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	payload := map[string]interface{}{
		"amount":      req.Amount,
		"currency":    req.Currency,
		"reference":   req.OrderNumber,
		"environment": p.environment,
		"callbackURL": p.callbackURL,
		"customer": map[string]string{
			"email": req.CustomerEmail,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/payments/v1/payments", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create checkout: unexpected status %d", resp.StatusCode)
	}

	var result payfonteCheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode checkout response: %w", err)
	}

	return &Session{
		Reference:   result.Data.Reference,
		CheckoutURL: result.Data.URL,
	}, nil
}

type payfonteStatusResponse struct {
	Data struct {
		Status        string `json:"status"`
		TransactionID string `json:"transactionId"`
	} `json:"data"`
}

// Verify fetches the authoritative payment status for a reference.
func (p *PayfonteProvider) Verify(ctx context.Context, reference string) (Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/payments/v1/payments/"+reference, nil)
	if err != nil {
		return StatusPending, fmt.Errorf("http new request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return StatusPending, fmt.Errorf("verify payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusPending, fmt.Errorf("verify payment: unexpected status %d", resp.StatusCode)
	}

	var result payfonteStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return StatusPending, fmt.Errorf("decode payment status: %w", err)
	}

	return NormalizeStatus(result.Data.Status), nil
}

type payfonteNotification struct {
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}

// ParseNotification decodes the webhook body. No signature scheme exists
// for this provider; the embedded status is advisory and reconciliation
// re-verifies it through Verify.
func (p *PayfonteProvider) ParseNotification(_ http.Header, body []byte) (*Signal, error) {
	var n payfonteNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("unmarshal notification: %w", err)
	}
	if n.Reference == "" {
		return nil, fmt.Errorf("notification has no reference")
	}

	return &Signal{
		Provider:      payfonteName,
		Reference:     n.Reference,
		TransactionID: n.TransactionID,
		RawStatus:     n.Status,
	}, nil
}
