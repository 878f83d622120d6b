// Package payment integrates the external payment processors behind a
// single Provider interface. Two providers exist: Stripe hosted card
// checkout (completion via signed webhook) and Payfonte mobile-money
// checkout (completion via redirect callback re-verified against the
// provider's status lookup).
package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Status is the internal normalized payment status vocabulary.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusPending Status = "PENDING"
)

// ErrVerifyUnsupported is returned by providers that have no
// authoritative status-lookup endpoint for the given reference.
var ErrVerifyUnsupported = errors.New("status verification not supported")

// Signal is a normalized payment-completion notification, parsed from a
// webhook body or redirect callback before reconciliation.
type Signal struct {
	Provider      string
	Reference     string
	TransactionID string
	RawStatus     string
}

// CheckoutRequest describes the order handed to a provider for session
// creation. Amount is in integer minor units.
type CheckoutRequest struct {
	OrderNumber   string
	Amount        int64
	Currency      string
	CustomerEmail string
}

// Session is the provider-side checkout session the buyer is redirected to.
type Session struct {
	Reference   string
	CheckoutURL string
}

// Provider is the capability interface the reconciliation engine depends
// on. Implementations translate provider-specific vocabulary into the
// internal one and never surface raw provider payloads upward.
type Provider interface {
	Name() string
	CreateSession(ctx context.Context, req CheckoutRequest) (*Session, error)
	Verify(ctx context.Context, reference string) (Status, error)
	ParseNotification(header http.Header, body []byte) (*Signal, error)
}

// NormalizeStatus maps a provider status string onto the internal
// vocabulary. Matching is case-insensitive; anything unrecognized is
// PENDING ("no change yet"), never an error.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "successful", "completed", "paid", "succeeded":
		return StatusSuccess
	case "failed", "failure", "cancelled", "canceled", "expired", "declined":
		return StatusFailure
	default:
		return StatusPending
	}
}
