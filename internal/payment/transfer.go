package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// TransferRequest is a revenue-share payout to a vendor account.
type TransferRequest struct {
	Account   string
	Amount    int64
	Currency  string
	Reference string
}

// Transferrer initiates vendor payout transfers. Only the mobile-money
// provider exposes payouts today.
type Transferrer interface {
	Transfer(ctx context.Context, req TransferRequest) error
}

// Transfer sends the vendor-share amount to the vendor's payout account.
func (p *PayfonteProvider) Transfer(ctx context.Context, req TransferRequest) error {
	payload := map[string]interface{}{
		"amount":      req.Amount,
		"currency":    req.Currency,
		"account":     req.Account,
		"reference":   req.Reference,
		"environment": p.environment,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal transfer payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/payouts/v1/payouts", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("create payout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("create payout: unexpected status %d", resp.StatusCode)
	}
	return nil
}
