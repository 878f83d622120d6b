package service

import (
	"context"
	"errors"
	"testing"

	"themeseller/internal/models"
	"themeseller/internal/payment"
	"themeseller/internal/util"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrderFixture(store *fakeStore) {
	store.addProduct(models.Product{ID: 1, VendorID: 10, Price: 5000, Status: models.ProductStatusApproved})
	store.addProduct(models.Product{ID: 2, VendorID: 11, Price: 3000, Status: models.ProductStatusApproved})
	store.addOrder(
		models.Order{
			ID:          200,
			OrderNumber: "TS-AAA111",
			UserID:      7,
			Subtotal:    8000,
			PlatformFee: 1200,
			Total:       8000,
			Status:      models.OrderStatusPending,
			Provider:    "payfonte",
			ExternalRef: "TS-AAA111",
		},
		[]models.OrderItem{
			{ID: 201, OrderID: 200, ProductID: 1, VendorID: 10, UnitPrice: 5000, VendorShare: 4250, PlatformShare: 750, MaxDownloads: 5},
			{ID: 202, OrderID: 200, ProductID: 2, VendorID: 11, UnitPrice: 3000, VendorShare: 2550, PlatformShare: 450, MaxDownloads: 5},
		},
	)
}

func newTestReconciler(store *fakeStore, provider *fakeProvider) (*Reconciler, *fakeCart, *fakePublisher) {
	cart := newFakeCart()
	publisher := &fakePublisher{}
	entitlements := NewEntitlementUpdater(store, cart)
	rec := NewReconciler(store,
		map[string]payment.Provider{provider.name: provider},
		entitlements, publisher)
	return rec, cart, publisher
}

func successSignal() *payment.Signal {
	return &payment.Signal{
		Provider:      "payfonte",
		Reference:     "TS-AAA111",
		TransactionID: "TXN-1",
		RawStatus:     "successful",
	}
}

func TestReconcileSuccessAppliesSideEffectsOnce(t *testing.T) {
	store := newFakeStore()
	pendingOrderFixture(store)
	provider := &fakeProvider{name: "payfonte", verifyStatus: payment.StatusSuccess}
	rec, cart, publisher := newTestReconciler(store, provider)

	require.NoError(t, rec.Process(context.Background(), successSignal()))

	order := store.orders[200]
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, "TXN-1", order.ExternalRef)

	assert.Equal(t, 1, store.products[1].SalesCount)
	assert.Equal(t, 1, store.products[2].SalesCount)
	assert.Equal(t, 1, store.vendors[10].TotalSales)
	assert.Equal(t, int64(4250), store.vendors[10].TotalRevenue)
	assert.Equal(t, 1, store.vendors[11].TotalSales)
	assert.Equal(t, int64(2550), store.vendors[11].TotalRevenue)
	assert.ElementsMatch(t, []int64{1, 2}, cart.removed[7])
	require.Len(t, publisher.paid, 1)

	// Redelivered notification: still acknowledged, nothing changes.
	require.NoError(t, rec.Process(context.Background(), successSignal()))

	assert.Equal(t, 1, store.products[1].SalesCount)
	assert.Equal(t, 1, store.vendors[10].TotalSales)
	assert.Equal(t, int64(4250), store.vendors[10].TotalRevenue)
	assert.Len(t, publisher.paid, 1)
	assert.Len(t, cart.removed[7], 2)
}

func TestReconcileVerifiedStatusOverridesInbound(t *testing.T) {
	store := newFakeStore()
	pendingOrderFixture(store)

	// The inbound signal claims success but the provider says failed;
	// the authoritative lookup wins.
	provider := &fakeProvider{name: "payfonte", verifyStatus: payment.StatusFailure}
	rec, _, publisher := newTestReconciler(store, provider)

	require.NoError(t, rec.Process(context.Background(), successSignal()))

	assert.Equal(t, models.OrderStatusCancelled, store.orders[200].Status)
	assert.Equal(t, 0, store.products[1].SalesCount)
	assert.Len(t, publisher.paid, 0)
	assert.Len(t, publisher.cancelled, 1)
}

func TestReconcileVerifyFailureFallsBackToInbound(t *testing.T) {
	store := newFakeStore()
	pendingOrderFixture(store)
	provider := &fakeProvider{name: "payfonte", verifyErr: errors.New("connection refused")}
	rec, _, _ := newTestReconciler(store, provider)

	require.NoError(t, rec.Process(context.Background(), successSignal()))

	assert.Equal(t, models.OrderStatusPaid, store.orders[200].Status)
	assert.Equal(t, 1, provider.verifyCalls)
}

func TestReconcilePendingStatusIsNoChange(t *testing.T) {
	store := newFakeStore()
	pendingOrderFixture(store)
	provider := &fakeProvider{name: "payfonte", verifyStatus: payment.StatusPending}
	rec, _, publisher := newTestReconciler(store, provider)

	sig := successSignal()
	sig.RawStatus = "processing"
	require.NoError(t, rec.Process(context.Background(), sig))

	assert.Equal(t, models.OrderStatusPending, store.orders[200].Status)
	assert.Len(t, publisher.paid, 0)
	assert.Len(t, publisher.cancelled, 0)
}

func TestReconcileUnmatchedReferenceIsDiscarded(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{name: "payfonte", verifyStatus: payment.StatusSuccess}
	rec, _, publisher := newTestReconciler(store, provider)

	sig := successSignal()
	sig.Reference = "TS-UNKNOWN"

	// Never an error: an error response would make the provider retry
	// forever.
	assert.NoError(t, rec.Process(context.Background(), sig))
	assert.Len(t, publisher.paid, 0)
}

func TestReconcileLateSuccessAfterCancellation(t *testing.T) {
	store := newFakeStore()
	pendingOrderFixture(store)
	store.orders[200].Status = models.OrderStatusCancelled

	provider := &fakeProvider{name: "payfonte", verifyStatus: payment.StatusSuccess}
	rec, cart, publisher := newTestReconciler(store, provider)

	require.NoError(t, rec.Process(context.Background(), successSignal()))

	// The anomaly is logged, never applied.
	assert.Equal(t, models.OrderStatusCancelled, store.orders[200].Status)
	assert.Equal(t, 0, store.products[1].SalesCount)
	assert.Empty(t, cart.removed)
	assert.Len(t, publisher.paid, 0)
}

func TestReconcileFailureSignalCancels(t *testing.T) {
	store := newFakeStore()
	pendingOrderFixture(store)
	provider := &fakeProvider{name: "payfonte", verifyStatus: payment.StatusFailure}
	rec, _, publisher := newTestReconciler(store, provider)

	sig := successSignal()
	sig.RawStatus = "cancelled"
	require.NoError(t, rec.Process(context.Background(), sig))

	assert.Equal(t, models.OrderStatusCancelled, store.orders[200].Status)
	assert.Nil(t, store.orders[200].PaidAt)
	require.Len(t, publisher.cancelled, 1)

	// A later failure signal for the now-cancelled order is a no-op.
	require.NoError(t, rec.Process(context.Background(), sig))
	assert.Len(t, publisher.cancelled, 1)
}

func TestReconcileResolvesByExternalRef(t *testing.T) {
	store := newFakeStore()
	pendingOrderFixture(store)
	store.orders[200].ExternalRef = "cs_ext_123"

	provider := &fakeProvider{name: "payfonte", verifyStatus: payment.StatusSuccess}
	rec, _, _ := newTestReconciler(store, provider)

	sig := successSignal()
	sig.Reference = "cs_ext_123"
	require.NoError(t, rec.Process(context.Background(), sig))

	assert.Equal(t, models.OrderStatusPaid, store.orders[200].Status)
}

func TestReconcileUnknownProviderUsesInboundStatus(t *testing.T) {
	store := newFakeStore()
	pendingOrderFixture(store)
	store.orders[200].Provider = "legacy"

	provider := &fakeProvider{name: "payfonte", verifyStatus: payment.StatusFailure}
	rec, _, _ := newTestReconciler(store, provider)

	require.NoError(t, rec.Process(context.Background(), successSignal()))

	assert.Equal(t, models.OrderStatusPaid, store.orders[200].Status)
	assert.Equal(t, 0, provider.verifyCalls)
}

func TestReconcileCountsSignalsByOrderProvider(t *testing.T) {
	store := newFakeStore()
	pendingOrderFixture(store)
	provider := &fakeProvider{name: "payfonte", verifyStatus: payment.StatusSuccess}
	rec, _, _ := newTestReconciler(store, provider)

	byOrder := util.PaymentSignalsTotal.WithLabelValues("payfonte", string(payment.StatusSuccess))
	unlabeled := util.PaymentSignalsTotal.WithLabelValues("", string(payment.StatusSuccess))
	orderBefore := testutil.ToFloat64(byOrder)
	emptyBefore := testutil.ToFloat64(unlabeled)

	// Redirect callbacks carry no provider of their own; the matched
	// order supplies the label.
	sig := &payment.Signal{Reference: "TS-AAA111", TransactionID: "TXN-9", RawStatus: "successful"}
	require.NoError(t, rec.Process(context.Background(), sig))

	assert.Equal(t, orderBefore+1, testutil.ToFloat64(byOrder))
	assert.Equal(t, emptyBefore, testutil.ToFloat64(unlabeled))
}
