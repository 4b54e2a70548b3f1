package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// MessageSource is the consuming side of a Kafka topic
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// PaymentOutcomeHandler settles an order once its payment result is known
type PaymentOutcomeHandler interface {
	HandlePaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// PaymentProcessor charges a newly placed order
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, event *models.OrderPlacedEvent) error
}

// StockCacheUpdater moves the cached stock counter forward
type StockCacheUpdater interface {
	ApplyAdjustment(ctx context.Context, event *models.InventoryAdjustedEvent) error
}

// eventWorker consumes one topic and routes events through an EventHandler
type eventWorker struct {
	name         string
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

func newEventWorker(name string, consumer MessageSource) *eventWorker {
	return &eventWorker{
		name:         name,
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.Named("worker").With(zap.String("worker", name)),
	}
}

// Start blocks until ctx is cancelled
func (w *eventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the underlying consumer
func (w *eventWorker) Stop() error {
	w.logger.Info("Stopping worker")
	return w.consumer.Close()
}

// OrderWorker advances or compensates orders from payment results
type OrderWorker struct {
	*eventWorker
}

// NewOrderWorker creates a new order worker
func NewOrderWorker(consumer MessageSource, saga PaymentOutcomeHandler) *OrderWorker {
	w := newEventWorker("orders", consumer)
	w.eventHandler.OnPaymentSucceeded(saga.HandlePaymentSucceeded)
	w.eventHandler.OnPaymentFailed(saga.HandlePaymentFailed)
	return &OrderWorker{eventWorker: w}
}

// PaymentWorker charges orders as they are placed
type PaymentWorker struct {
	*eventWorker
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer MessageSource, payments PaymentProcessor) *PaymentWorker {
	w := newEventWorker("payments", consumer)
	w.eventHandler.OnOrderPlaced(func(ctx context.Context, event *models.OrderPlacedEvent) error {
		w.logger.Info("Processing payment",
			zap.Int64("order_id", event.OrderID),
			zap.String("method", event.PaymentMethod))
		return payments.ProcessPayment(ctx, event)
	})
	return &PaymentWorker{eventWorker: w}
}

// StockCacheWorker keeps the stock cache in step with the inventory ledger
type StockCacheWorker struct {
	*eventWorker
}

// NewStockCacheWorker creates a new stock cache worker
func NewStockCacheWorker(consumer MessageSource, cache StockCacheUpdater) *StockCacheWorker {
	w := newEventWorker("stock-cache", consumer)
	w.eventHandler.OnInventoryAdjusted(cache.ApplyAdjustment)
	return &StockCacheWorker{eventWorker: w}
}
