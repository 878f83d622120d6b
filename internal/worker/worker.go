package worker

import (
	"context"
	"fmt"

	"themeseller/internal/broker"
	"themeseller/internal/models"
	"themeseller/internal/payment"
	"themeseller/internal/util"

	"go.uber.org/zap"
)

// VendorStore resolves payout accounts for vendors.
type VendorStore interface {
	GetVendorProfile(ctx context.Context, id int64) (*models.VendorProfile, error)
}

// PayoutWorker consumes order.paid events and initiates vendor
// revenue-share transfers. Transfer failures are logged only; the order
// state and counters are already final when the event reaches us.
type PayoutWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        VendorStore
	transferrer  payment.Transferrer
	currency     string
	logger       *zap.Logger
}

// NewPayoutWorker creates a new payout worker
func NewPayoutWorker(
	consumer *broker.Consumer,
	store VendorStore,
	transferrer payment.Transferrer,
	currency string,
) *PayoutWorker {
	w := &PayoutWorker{
		consumer:    consumer,
		store:       store,
		transferrer: transferrer,
		currency:    currency,
		logger:      util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPaid(w.handleOrderPaid)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *PayoutWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting payout worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *PayoutWorker) Stop() error {
	w.logger.Info("Stopping payout worker")
	return w.consumer.Close()
}

func (w *PayoutWorker) handleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	for _, item := range event.Items {
		if err := w.transferItem(ctx, event.OrderNumber, item); err != nil {
			util.PayoutTransfersTotal.WithLabelValues("failed").Inc()
			w.logger.Error("Vendor payout transfer failed",
				zap.String("order_number", event.OrderNumber),
				zap.Int64("vendor_id", item.VendorID),
				zap.Int64("amount", item.VendorShare),
				zap.Error(err))
			continue
		}
	}
	// Errors are per-item and already logged; the message is committed
	// either way so the bus never redelivers a paid order.
	return nil
}

func (w *PayoutWorker) transferItem(ctx context.Context, orderNumber string, item models.OrderItemData) error {
	vendor, err := w.store.GetVendorProfile(ctx, item.VendorID)
	if err != nil {
		return err
	}

	if vendor.PayoutAccount == "" {
		util.PayoutTransfersTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	err = w.transferrer.Transfer(ctx, payment.TransferRequest{
		Account:   vendor.PayoutAccount,
		Amount:    item.VendorShare,
		Currency:  w.currency,
		Reference: fmt.Sprintf("%s-%d", orderNumber, item.ProductID),
	})
	if err != nil {
		return err
	}

	util.PayoutTransfersTotal.WithLabelValues("initiated").Inc()
	w.logger.Info("Vendor payout initiated",
		zap.String("order_number", orderNumber),
		zap.Int64("vendor_id", item.VendorID),
		zap.Int64("amount", item.VendorShare))
	return nil
}
