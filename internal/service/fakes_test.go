package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"themeseller/internal/models"
	"themeseller/internal/payment"
)

// fakeStore is an in-memory stand-in for store.Store covering the
// service-layer interfaces.
type fakeStore struct {
	mu       sync.Mutex
	products map[int64]*models.Product
	vendors  map[int64]*models.VendorProfile
	orders   map[int64]*models.Order
	items    map[int64][]models.OrderItem
	nextID   int64

	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: make(map[int64]*models.Product),
		vendors:  make(map[int64]*models.VendorProfile),
		orders:   make(map[int64]*models.Order),
		items:    make(map[int64][]models.OrderItem),
		nextID:   100,
	}
}

func (f *fakeStore) addProduct(p models.Product) {
	f.products[p.ID] = &p
	if _, ok := f.vendors[p.VendorID]; !ok {
		f.vendors[p.VendorID] = &models.VendorProfile{ID: p.VendorID}
	}
}

func (f *fakeStore) addOrder(o models.Order, items []models.OrderItem) {
	f.orders[o.ID] = &o
	f.items[o.ID] = items
}

func (f *fakeStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.products[id]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ProductsPurchasedBy(_ context.Context, userID int64, productIDs []int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	wanted := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}

	var owned []int64
	for _, o := range f.orders {
		if o.UserID != userID || !o.Downloadable() {
			continue
		}
		for _, it := range f.items[o.ID] {
			if wanted[it.ProductID] {
				owned = append(owned, it.ProductID)
			}
		}
	}
	return owned, nil
}

func (f *fakeStore) CreateOrderWithItems(_ context.Context, order *models.Order, items []models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}

	f.nextID++
	order.ID = f.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range items {
		f.nextID++
		items[i].ID = f.nextID
		items[i].OrderID = order.ID
	}

	cp := *order
	f.orders[order.ID] = &cp
	f.items[order.ID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (f *fakeStore) SetOrderCheckout(_ context.Context, orderID int64, provider, externalRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	o.Provider = provider
	o.ExternalRef = externalRef
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetOrderByReference(_ context.Context, ref string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, o := range f.orders {
		if o.OrderNumber == ref || (o.ExternalRef != "" && o.ExternalRef == ref) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (f *fakeStore) GetOrdersByUserID(_ context.Context, userID int64) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.OrderItem(nil), f.items[orderID]...), nil
}

func (f *fakeStore) GetOrderItem(_ context.Context, orderID, productID int64) (*models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items[orderID] {
		if f.items[orderID][i].ProductID == productID {
			cp := f.items[orderID][i]
			return &cp, nil
		}
	}
	return nil, models.ErrOrderItemNotFound
}

func (f *fakeStore) MarkOrderPaid(_ context.Context, orderID int64, transactionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok || o.Status != models.OrderStatusPending {
		return false, nil
	}
	now := time.Now()
	o.Status = models.OrderStatusPaid
	o.PaidAt = &now
	if transactionID != "" {
		o.ExternalRef = transactionID
	}
	return true, nil
}

func (f *fakeStore) MarkOrderCancelled(_ context.Context, orderID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusCancelled
	return true, nil
}

func (f *fakeStore) IncrementProductSales(_ context.Context, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.products[productID]
	if !ok {
		return models.ErrProductNotFound
	}
	p.SalesCount++
	return nil
}

func (f *fakeStore) IncrementProductDownloads(_ context.Context, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.products[productID]
	if !ok {
		return models.ErrProductNotFound
	}
	p.Downloads++
	return nil
}

func (f *fakeStore) AddVendorSale(_ context.Context, vendorID int64, revenue int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.vendors[vendorID]
	if !ok {
		v = &models.VendorProfile{ID: vendorID}
		f.vendors[vendorID] = v
	}
	v.TotalSales++
	v.TotalRevenue += revenue
	return nil
}

func (f *fakeStore) IncrementDownloadCount(_ context.Context, itemID int64) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for orderID := range f.items {
		for i := range f.items[orderID] {
			it := &f.items[orderID][i]
			if it.ID == itemID {
				if it.DownloadCount >= it.MaxDownloads {
					return 0, false, nil
				}
				it.DownloadCount++
				return it.DownloadCount, true, nil
			}
		}
	}
	return 0, false, models.ErrOrderItemNotFound
}

// fakeCart records removals.
type fakeCart struct {
	mu      sync.Mutex
	removed map[int64][]int64
	err     error
}

func newFakeCart() *fakeCart {
	return &fakeCart{removed: make(map[int64][]int64)}
}

func (f *fakeCart) RemoveFromCart(_ context.Context, userID int64, productIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.removed[userID] = append(f.removed[userID], productIDs...)
	return nil
}

// fakeProvider scripts checkout and verification outcomes.
type fakeProvider struct {
	name         string
	session      *payment.Session
	createErr    error
	verifyStatus payment.Status
	verifyErr    error

	mu          sync.Mutex
	created     []payment.CheckoutRequest
	verifyCalls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CreateSession(_ context.Context, req payment.CheckoutRequest) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.session, nil
}

func (f *fakeProvider) Verify(_ context.Context, _ string) (payment.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.verifyCalls++
	if f.verifyErr != nil {
		return payment.StatusPending, f.verifyErr
	}
	return f.verifyStatus, nil
}

func (f *fakeProvider) ParseNotification(http.Header, []byte) (*payment.Signal, error) {
	return nil, errors.New("not implemented")
}

// fakePublisher counts published events.
type fakePublisher struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	paid      []*models.OrderPaidEvent
	cancelled []*models.OrderCancelledEvent
}

func (f *fakePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, e)
	return nil
}

func (f *fakePublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid = append(f.paid, e)
	return nil
}

func (f *fakePublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, e)
	return nil
}
