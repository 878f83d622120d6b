package models

import "time"

// Event types published on the order-events topic
const (
	EventTypeOrderCreated   = "order.created"
	EventTypeOrderPaid      = "order.paid"
	EventTypeOrderCancelled = "order.cancelled"
)

// BaseEvent contains fields common to all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderItemData is the item snapshot carried inside order events
type OrderItemData struct {
	ProductID   int64 `json:"product_id"`
	VendorID    int64 `json:"vendor_id"`
	UnitPrice   int64 `json:"unit_price"`
	VendorShare int64 `json:"vendor_share"`
}

// OrderCreatedEvent is published when a pending order has been created
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	Total       int64           `json:"total"`
	Items       []OrderItemData `json:"items"`
}

// OrderPaidEvent is published exactly once per order, on the
// PENDING -> PAID transition. The payout worker consumes it to
// initiate vendor revenue-share transfers.
type OrderPaidEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	Total       int64           `json:"total"`
	Items       []OrderItemData `json:"items"`
}

// OrderCancelledEvent is published when a payment-completion signal
// resolved to a failure
type OrderCancelledEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      int64  `json:"user_id"`
	Reason      string `json:"reason"`
}
