package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"themeseller/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayfonteTransfer(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payouts/v1/payouts", r.URL.Path)
		assert.Equal(t, "client-1", r.Header.Get("client-id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)

	provider := NewPayfonteProvider(config.PayfonteConfig{
		BaseURL:      server.URL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		Environment:  "sandbox",
	}, "http://localhost:8080/api/v1/payments/callback")

	err := provider.Transfer(context.Background(), TransferRequest{
		Account:   "acct-vendor-10",
		Amount:    4250,
		Currency:  "XOF",
		Reference: "TS-AAA111-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "acct-vendor-10", got["account"])
	assert.Equal(t, float64(4250), got["amount"])
	assert.Equal(t, "TS-AAA111-1", got["reference"])
}

func TestPayfonteTransferServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	provider := NewPayfonteProvider(config.PayfonteConfig{BaseURL: server.URL}, "")

	err := provider.Transfer(context.Background(), TransferRequest{
		Account: "acct-vendor-10",
		Amount:  4250,
	})
	assert.Error(t, err)
}
