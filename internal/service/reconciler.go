package service

import (
	"context"
	"errors"
	"time"

	"themeseller/internal/models"
	"themeseller/internal/payment"
	"themeseller/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconciliationStore is the persistence surface reconciliation needs.
type ReconciliationStore interface {
	GetOrderByReference(ctx context.Context, ref string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	MarkOrderPaid(ctx context.Context, orderID int64, transactionID string) (bool, error)
	MarkOrderCancelled(ctx context.Context, orderID int64) (bool, error)
}

// Reconciler matches payment-completion signals against orders and
// applies the resulting transition with side effects at most once.
type Reconciler struct {
	store        ReconciliationStore
	providers    map[string]payment.Provider
	entitlements *EntitlementUpdater
	publisher    EventPublisher
	logger       *zap.Logger
}

// NewReconciler creates a new reconciliation engine
func NewReconciler(
	store ReconciliationStore,
	providers map[string]payment.Provider,
	entitlements *EntitlementUpdater,
	publisher EventPublisher,
) *Reconciler {
	return &Reconciler{
		store:        store,
		providers:    providers,
		entitlements: entitlements,
		publisher:    publisher,
		logger:       util.GetLogger(),
	}
}

// Process reconciles one completion signal. The returned error is for
// logging only: the transport layer acknowledges the notification no
// matter what, so the delivering party is never induced to retry.
func (r *Reconciler) Process(ctx context.Context, sig *payment.Signal) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.Process")
	defer span.End()

	order, err := r.store.GetOrderByReference(ctx, sig.Reference)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			util.PaymentUnmatchedTotal.Inc()
			r.logger.Warn("Unmatched payment notification",
				zap.String("provider", sig.Provider),
				zap.String("reference", sig.Reference))
			return nil
		}
		return err
	}

	// The order, not the inbound signal, is the source of truth for
	// which provider this payment belongs to.
	status := r.verifiedStatus(ctx, sig, order)
	util.PaymentSignalsTotal.WithLabelValues(order.Provider, string(status)).Inc()

	switch status {
	case payment.StatusSuccess:
		return r.applyPaid(ctx, order, sig)
	case payment.StatusFailure:
		return r.applyCancelled(ctx, order, sig)
	default:
		// No change yet; the provider will signal again.
		return nil
	}
}

// verifiedStatus re-checks the payment against the provider's
// authoritative lookup. Inbound signals (redirect params, webhook
// payloads) are not fully trusted; only when verification is unsupported
// or unreachable does the embedded status stand.
func (r *Reconciler) verifiedStatus(ctx context.Context, sig *payment.Signal, order *models.Order) payment.Status {
	embedded := payment.NormalizeStatus(sig.RawStatus)

	provider, ok := r.providers[order.Provider]
	if !ok {
		return embedded
	}

	ref := order.ExternalRef
	if ref == "" {
		ref = sig.Reference
	}

	status, err := provider.Verify(ctx, ref)
	if err != nil {
		if !errors.Is(err, payment.ErrVerifyUnsupported) {
			r.logger.Warn("Status verification failed, falling back to inbound status",
				zap.String("provider", order.Provider),
				zap.String("reference", ref),
				zap.Error(err))
		}
		return embedded
	}
	return status
}

func (r *Reconciler) applyPaid(ctx context.Context, order *models.Order, sig *payment.Signal) error {
	changed, err := r.store.MarkOrderPaid(ctx, order.ID, sig.TransactionID)
	if err != nil {
		return err
	}

	if !changed {
		if order.Status == models.OrderStatusCancelled {
			// Late success after cancellation: logged, never applied.
			util.PaymentAnomaliesTotal.Inc()
			r.logger.Warn("Success signal for cancelled order",
				zap.Int64("order_id", order.ID),
				zap.String("order_number", order.OrderNumber),
				zap.String("transaction_id", sig.TransactionID))
		}
		// Already PAID: redelivered signal, side effects stay applied once.
		return nil
	}

	util.OrdersPaidTotal.Inc()
	r.logger.Info("Order paid",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("provider", order.Provider))

	items, err := r.store.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}

	if err := r.entitlements.Apply(ctx, order, items); err != nil {
		// Side-effect failures never undo the PAID transition.
		r.logger.Error("Failed to apply post-payment side effects",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaid,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total,
		Items:       itemData(items),
	}
	if err := r.publisher.PublishOrderPaid(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}

	return nil
}

func (r *Reconciler) applyCancelled(ctx context.Context, order *models.Order, sig *payment.Signal) error {
	changed, err := r.store.MarkOrderCancelled(ctx, order.ID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	util.OrdersCancelledTotal.Inc()
	r.logger.Info("Order cancelled",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("raw_status", sig.RawStatus))

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Reason:      sig.RawStatus,
	}
	if err := r.publisher.PublishOrderCancelled(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	return nil
}
