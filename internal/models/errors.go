package models

import (
	"errors"
	"fmt"
)

// Domain error sentinels, matched with errors.Is at the API boundary.
var (
	ErrUnauthenticated      = errors.New("authentication required")
	ErrUnauthorized         = errors.New("permission denied")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderItemNotFound    = errors.New("order item not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrAlreadyPurchased     = errors.New("product already purchased")
	ErrOrderNotPaid         = errors.New("order is not paid")
	ErrDownloadLimitReached = errors.New("download limit reached")
	ErrProviderUnconfigured = errors.New("payment provider not configured")
)

// ProductUnavailableError reports which products blocked order creation.
type ProductUnavailableError struct {
	ProductIDs []int64
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("products unavailable: %v", e.ProductIDs)
}

// ProviderError wraps a failure talking to an external payment processor.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
