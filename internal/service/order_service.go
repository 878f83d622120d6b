package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"themeseller/config"
	"themeseller/internal/models"
	"themeseller/internal/payment"
	"themeseller/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the persistence surface order creation needs.
type OrderStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	ProductsPurchasedBy(ctx context.Context, userID int64, productIDs []int64) ([]int64, error)
	CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error
	SetOrderCheckout(ctx context.Context, orderID int64, provider, externalRef string) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
}

// EventPublisher publishes domain events; best effort, failures logged.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// OrderService handles order creation and reads
type OrderService struct {
	store     OrderStore
	providers map[string]payment.Provider
	publisher EventPublisher
	business  config.BusinessConfig
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store OrderStore,
	providers map[string]payment.Provider,
	publisher EventPublisher,
	business config.BusinessConfig,
) *OrderService {
	return &OrderService{
		store:     store,
		providers: providers,
		publisher: publisher,
		business:  business,
		logger:    util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	ProductIDs    []int64 `json:"product_ids" binding:"required,min=1"`
	PaymentMethod string  `json:"payment_method" binding:"required"`
}

// CreateOrderResponse is the created order plus the URL the buyer must
// be redirected to in order to pay.
type CreateOrderResponse struct {
	Order       *models.Order      `json:"order"`
	Items       []models.OrderItem `json:"items"`
	CheckoutURL string             `json:"checkout_url"`
}

// CreateOrder creates a PENDING order with snapshotted prices and a
// provider checkout session.
func (s *OrderService) CreateOrder(ctx context.Context, buyer *models.User, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	provider, err := s.resolveProvider(req.PaymentMethod)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("provider_unconfigured").Inc()
		return nil, err
	}

	products, err := s.validateProducts(ctx, req.ProductIDs)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("product_unavailable").Inc()
		return nil, err
	}

	owned, err := s.store.ProductsPurchasedBy(ctx, buyer.ID, req.ProductIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check purchase history: %w", err)
	}
	if len(owned) > 0 {
		util.OrdersFailedTotal.WithLabelValues("already_purchased").Inc()
		return nil, fmt.Errorf("products %v: %w", owned, models.ErrAlreadyPurchased)
	}

	// Commission rate read once here; later rate changes never touch
	// existing items.
	rate := s.business.CommissionRate

	items := make([]models.OrderItem, 0, len(req.ProductIDs))
	var subtotal, platformFee int64
	for _, id := range req.ProductIDs {
		product := products[id]
		price := product.EffectivePrice()
		platformShare := int64(math.Round(float64(price) * rate))
		items = append(items, models.OrderItem{
			ProductID:     product.ID,
			VendorID:      product.VendorID,
			UnitPrice:     price,
			VendorShare:   price - platformShare,
			PlatformShare: platformShare,
			MaxDownloads:  s.business.MaxDownloads,
		})
		subtotal += price
		platformFee += platformShare
	}

	order := &models.Order{
		OrderNumber: newOrderNumber(),
		UserID:      buyer.ID,
		Subtotal:    subtotal,
		PlatformFee: platformFee,
		Total:       subtotal,
		Status:      models.OrderStatusPending,
	}

	if err := s.store.CreateOrderWithItems(ctx, order, items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total", order.Total))

	session, err := s.createCheckout(ctx, provider, order, buyer)
	if err != nil {
		// The order stays PENDING with no external reference; without
		// one it is never surfaced to the buyer as payable.
		util.OrdersFailedTotal.WithLabelValues("checkout_failed").Inc()
		s.logger.Error("Checkout session creation failed",
			zap.Int64("order_id", order.ID),
			zap.String("provider", provider.Name()),
			zap.Error(err))
		return nil, &models.ProviderError{Provider: provider.Name(), Err: err}
	}

	if err := s.store.SetOrderCheckout(ctx, order.ID, provider.Name(), session.Reference); err != nil {
		return nil, fmt.Errorf("failed to store checkout reference: %w", err)
	}
	order.Provider = provider.Name()
	order.ExternalRef = session.Reference

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total,
		Items:       itemData(items),
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CreateOrderResponse{
		Order:       order,
		Items:       items,
		CheckoutURL: session.CheckoutURL,
	}, nil
}

func (s *OrderService) resolveProvider(method string) (payment.Provider, error) {
	var name string
	switch strings.ToLower(method) {
	case "card":
		name = "stripe"
	case "mobile_money":
		name = "payfonte"
	default:
		return nil, fmt.Errorf("payment method %q: %w", method, models.ErrProviderUnconfigured)
	}

	provider, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", name, models.ErrProviderUnconfigured)
	}
	return provider, nil
}

// validateProducts ensures every referenced product exists and is
// approved for sale.
func (s *OrderService) validateProducts(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	var unavailable []int64
	for _, id := range ids {
		p, ok := productMap[id]
		if !ok || p.Status != models.ProductStatusApproved {
			unavailable = append(unavailable, id)
		}
	}
	if len(unavailable) > 0 {
		return nil, &models.ProductUnavailableError{ProductIDs: unavailable}
	}

	return productMap, nil
}

func (s *OrderService) createCheckout(ctx context.Context, provider payment.Provider, order *models.Order, buyer *models.User) (*payment.Session, error) {
	start := time.Now()
	defer func() {
		util.CheckoutSessionLatency.WithLabelValues(provider.Name()).Observe(time.Since(start).Seconds())
	}()

	return provider.CreateSession(ctx, payment.CheckoutRequest{
		OrderNumber:   order.OrderNumber,
		Amount:        order.Total,
		Currency:      s.business.Currency,
		CustomerEmail: buyer.Email,
	})
}

// GetOrder retrieves an order with items, enforcing ownership.
func (s *OrderService) GetOrder(ctx context.Context, requester *models.User, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	if order.UserID != requester.ID && requester.Role != models.RoleAdmin {
		return nil, nil, models.ErrUnauthorized
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// ListOrders retrieves the requester's orders.
func (s *OrderService) ListOrders(ctx context.Context, requester *models.User) ([]models.Order, error) {
	return s.store.GetOrdersByUserID(ctx, requester.ID)
}

func itemData(items []models.OrderItem) []models.OrderItemData {
	data := make([]models.OrderItemData, len(items))
	for i, it := range items {
		data[i] = models.OrderItemData{
			ProductID:   it.ProductID,
			VendorID:    it.VendorID,
			UnitPrice:   it.UnitPrice,
			VendorShare: it.VendorShare,
		}
	}
	return data
}

func newOrderNumber() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "TS-" + id[:12]
}
