package service

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// SagaOrchestrator moves an order forward or compensates it once payment settles
type SagaOrchestrator struct {
	store     OrderRepository
	orders    *OrderService
	publisher Publisher
	logger    *zap.Logger
}

// NewSagaOrchestrator creates a new saga orchestrator
func NewSagaOrchestrator(store OrderRepository, orders *OrderService, publisher Publisher) *SagaOrchestrator {
	return &SagaOrchestrator{
		store:     store,
		orders:    orders,
		publisher: publisher,
		logger:    util.Named("saga"),
	}
}

// HandlePaymentSucceeded marks the order paid and confirms it if it is still pending
func (so *SagaOrchestrator) HandlePaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.HandlePaymentSucceeded")
	defer span.End()

	processed, err := so.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		so.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	so.logger.Info("Handling payment success",
		zap.Int64("order_id", event.OrderID),
		zap.String("tx_id", event.TxID))

	var previous string
	confirmed := false
	needsRefund := false
	err = so.store.InTx(ctx, func(tx store.Tx) error {
		order, err := tx.LockOrder(ctx, event.OrderID)
		if err != nil {
			return err
		}
		previous = order.Status
		confirmed = false
		needsRefund = order.Status == models.OrderStatusCancelled

		if err := tx.SetOrderPaymentStatus(ctx, order.ID, models.PaymentStatusPaid); err != nil {
			return err
		}
		if order.Status == models.OrderStatusPending {
			if err := tx.SetOrderStatus(ctx, order.ID, models.OrderStatusConfirmed); err != nil {
				return err
			}
			confirmed = true
		}
		return tx.MarkEventProcessed(ctx, event.EventID, event.EventType)
	})
	if err != nil {
		return fmt.Errorf("failed to confirm order %d: %w", event.OrderID, err)
	}

	if needsRefund {
		util.PaidCancelledOrdersTotal.Inc()
		so.logger.Warn("Payment captured for a cancelled order, refund required",
			zap.Int64("order_id", event.OrderID),
			zap.Int64("payment_id", event.PaymentID),
			zap.String("amount", event.Amount.StringFixed(2)),
			zap.String("tx_id", event.TxID))
	}

	if confirmed {
		util.OrdersConfirmedTotal.Inc()
		changed := &models.OrderStatusChangedEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
			OrderID:   event.OrderID,
			Field:     "status",
			Previous:  previous,
			Current:   models.OrderStatusConfirmed,
		}
		if err := so.publisher.PublishOrderStatusChanged(ctx, changed); err != nil {
			so.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
		so.logger.Info("Order confirmed", zap.Int64("order_id", event.OrderID))
	}

	so.orders.revalidate(ctx, "/orders", fmt.Sprintf("/orders/%d", event.OrderID), "/admin/orders")
	return nil
}

// HandlePaymentFailed compensates by cancelling the order and returning its stock
func (so *SagaOrchestrator) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.HandlePaymentFailed")
	defer span.End()

	processed, err := so.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		so.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	so.logger.Warn("Handling payment failure - starting compensation",
		zap.Int64("order_id", event.OrderID),
		zap.String("reason", event.Reason))

	base := event.BaseEvent
	order, err := so.orders.cancel(ctx, cancelRequest{
		orderID:       event.OrderID,
		reason:        "payment failed",
		source:        "payment",
		paymentStatus: models.PaymentStatusFailed,
		event:         &base,
	})
	if err != nil {
		return fmt.Errorf("failed to compensate order %d: %w", event.OrderID, err)
	}

	so.logger.Info("Order compensated",
		zap.Int64("order_id", order.ID),
		zap.String("status", order.Status))
	return nil
}
