package service

import (
	"context"
	"fmt"

	"themeseller/internal/models"
	"themeseller/internal/util"

	"go.uber.org/zap"
)

// DownloadStore is the persistence surface the download gate needs.
type DownloadStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetOrderItem(ctx context.Context, orderID, productID int64) (*models.OrderItem, error)
	IncrementDownloadCount(ctx context.Context, itemID int64) (int, bool, error)
	IncrementProductDownloads(ctx context.Context, productID int64) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// DownloadService authorizes file downloads for purchased items.
type DownloadService struct {
	store        DownloadStore
	assetBaseURL string
	logger       *zap.Logger
}

// NewDownloadService creates a new download gate
func NewDownloadService(store DownloadStore, assetBaseURL string) *DownloadService {
	return &DownloadService{
		store:        store,
		assetBaseURL: assetBaseURL,
		logger:       util.GetLogger(),
	}
}

// DownloadResult carries the asset location and the remaining
// entitlement count.
type DownloadResult struct {
	DownloadURL string `json:"download_url"`
	Remaining   int    `json:"remaining"`
}

// Download authorizes one download of a purchased item. productID may be
// zero for single-item orders.
func (s *DownloadService) Download(ctx context.Context, requester *models.User, orderID, productID int64) (*DownloadResult, error) {
	ctx, span := util.StartSpan(ctx, "DownloadService.Download")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID != requester.ID {
		util.DownloadsRejectedTotal.WithLabelValues("not_owner").Inc()
		return nil, models.ErrUnauthorized
	}

	if !order.Downloadable() {
		util.DownloadsRejectedTotal.WithLabelValues("not_paid").Inc()
		return nil, models.ErrOrderNotPaid
	}

	item, err := s.resolveItem(ctx, orderID, productID)
	if err != nil {
		return nil, err
	}

	// Check and increment are one conditional update; two requests at
	// the limit boundary cannot both pass. used is the post-update
	// count, so concurrent grants never misreport the remainder.
	used, granted, err := s.store.IncrementDownloadCount(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if !granted {
		util.DownloadsRejectedTotal.WithLabelValues("limit_reached").Inc()
		return nil, models.ErrDownloadLimitReached
	}

	if err := s.store.IncrementProductDownloads(ctx, item.ProductID); err != nil {
		s.logger.Warn("Failed to increment product download counter",
			zap.Int64("product_id", item.ProductID),
			zap.Error(err))
	}

	product, err := s.store.GetProductByID(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}

	util.DownloadsTotal.Inc()
	s.logger.Info("Download authorized",
		zap.Int64("order_id", orderID),
		zap.Int64("product_id", item.ProductID),
		zap.Int("used", used),
		zap.Int("max", item.MaxDownloads))

	return &DownloadResult{
		DownloadURL: fmt.Sprintf("%s/%s", s.assetBaseURL, product.FileKey),
		Remaining:   item.MaxDownloads - used,
	}, nil
}

func (s *DownloadService) resolveItem(ctx context.Context, orderID, productID int64) (*models.OrderItem, error) {
	if productID != 0 {
		return s.store.GetOrderItem(ctx, orderID, productID)
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(items) != 1 {
		return nil, fmt.Errorf("order has %d items, product_id required: %w",
			len(items), models.ErrOrderItemNotFound)
	}
	return &items[0], nil
}
