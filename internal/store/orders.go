package store

import (
	"context"
	"database/sql"
	"fmt"

	"themeseller/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrderWithItems inserts the order and its items in one transaction.
// The order and item IDs are filled in on success.
func (s *Store) CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (order_number, user_id, subtotal, platform_fee, total, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err = tx.GetContext(ctx, order, query,
		order.OrderNumber, order.UserID, order.Subtotal, order.PlatformFee, order.Total, order.Status)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, vendor_id, unit_price, vendor_share, platform_share, max_downloads)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.GetContext(ctx, &items[i].ID, itemQuery,
			order.ID, items[i].ProductID, items[i].VendorID,
			items[i].UnitPrice, items[i].VendorShare, items[i].PlatformShare, items[i].MaxDownloads)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByReference resolves an order from a payment correlation
// reference, matching either the order number or the stored external
// payment reference.
func (s *Store) GetOrderByReference(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE order_number = $1 OR external_ref = $1", ref)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// GetOrderItem retrieves one item of an order by product
func (s *Store) GetOrderItem(ctx context.Context, orderID, productID int64) (*models.OrderItem, error) {
	var item models.OrderItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM order_items WHERE order_id = $1 AND product_id = $2", orderID, productID)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SetOrderCheckout stores the provider and external session reference
// returned by checkout-session creation.
func (s *Store) SetOrderCheckout(ctx context.Context, orderID int64, provider, externalRef string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET provider = $1, external_ref = $2, updated_at = NOW() WHERE id = $3",
		provider, externalRef, orderID)
	return err
}

// MarkOrderPaid performs the PENDING -> PAID transition as a single
// conditional update. It reports whether the row actually changed, which
// is the idempotency guard gating side effects: a redelivered success
// signal finds the order already PAID and changes nothing.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID int64, transactionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, external_ref = COALESCE(NULLIF($2, ''), external_ref),
		    paid_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.OrderStatusPaid, transactionID, orderID, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkOrderCancelled performs the PENDING -> CANCELLED transition,
// conditional like MarkOrderPaid.
func (s *Store) MarkOrderCancelled(ctx context.Context, orderID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.OrderStatusCancelled, orderID, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkOrderCompleted performs the PAID -> COMPLETED transition taken by
// administrative fulfillment.
func (s *Store) MarkOrderCompleted(ctx context.Context, orderID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, completed_at = NOW(), updated_at = NOW() WHERE id = $2 AND status = $3",
		models.OrderStatusCompleted, orderID, models.OrderStatusPaid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkOrderRefunded performs the PAID -> REFUNDED transition.
func (s *Store) MarkOrderRefunded(ctx context.Context, orderID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.OrderStatusRefunded, orderID, models.OrderStatusPaid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ProductsPurchasedBy returns the subset of the given product IDs already
// contained in a PAID or COMPLETED order of this user.
func (s *Store) ProductsPurchasedBy(ctx context.Context, userID int64, productIDs []int64) ([]int64, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT oi.product_id
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.user_id = ? AND o.status IN (?, ?) AND oi.product_id IN (?)`

	query, args, err := sqlx.In(query, userID, models.OrderStatusPaid, models.OrderStatusCompleted, productIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var owned []int64
	err = s.db.SelectContext(ctx, &owned, query, args...)
	return owned, err
}

// IncrementDownloadCount bumps an item's download counter, but only while
// it is below the limit. Check and increment are one statement so two
// requests at the boundary cannot both pass; the post-update count is
// returned so callers report the remainder from the same statement.
func (s *Store) IncrementDownloadCount(ctx context.Context, itemID int64) (int, bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE order_items
		SET download_count = download_count + 1
		WHERE id = $1 AND download_count < max_downloads
		RETURNING download_count`,
		itemID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}
