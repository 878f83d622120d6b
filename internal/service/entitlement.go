package service

import (
	"context"

	"themeseller/internal/models"
	"themeseller/internal/util"

	"go.uber.org/zap"
)

// EntitlementStore is the persistence surface post-payment side effects need.
type EntitlementStore interface {
	IncrementProductSales(ctx context.Context, productID int64) error
	AddVendorSale(ctx context.Context, vendorID int64, revenue int64) error
}

// CartStore removes purchased products from the buyer's persistent cart.
type CartStore interface {
	RemoveFromCart(ctx context.Context, userID int64, productIDs []int64) error
}

// EntitlementUpdater applies the fixed side effects of a PENDING -> PAID
// transition. It is not re-entrant safe on its own: the reconciler's
// conditional update guarantees it runs at most once per order.
type EntitlementUpdater struct {
	store  EntitlementStore
	cart   CartStore
	logger *zap.Logger
}

// NewEntitlementUpdater creates a new side-effect executor
func NewEntitlementUpdater(store EntitlementStore, cart CartStore) *EntitlementUpdater {
	return &EntitlementUpdater{
		store:  store,
		cart:   cart,
		logger: util.GetLogger(),
	}
}

// Apply runs the counter updates for every item and clears the cart.
// Failures are isolated per item; nothing rolls back.
func (u *EntitlementUpdater) Apply(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	ctx, span := util.StartSpan(ctx, "EntitlementUpdater.Apply")
	defer span.End()

	productIDs := make([]int64, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)

		if err := u.store.IncrementProductSales(ctx, item.ProductID); err != nil {
			u.logger.Error("Failed to increment product sales",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}

		if err := u.store.AddVendorSale(ctx, item.VendorID, item.VendorShare); err != nil {
			u.logger.Error("Failed to update vendor totals",
				zap.Int64("order_id", order.ID),
				zap.Int64("vendor_id", item.VendorID),
				zap.Error(err))
		}
	}

	if err := u.cart.RemoveFromCart(ctx, order.UserID, productIDs); err != nil {
		u.logger.Warn("Failed to clear purchased items from cart",
			zap.Int64("user_id", order.UserID),
			zap.Error(err))
	}

	return nil
}
