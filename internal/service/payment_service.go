package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrPaymentDeclined is returned by a gateway that refused the charge
var ErrPaymentDeclined = errors.New("payment declined")

// PaymentGateway charges an order
type PaymentGateway interface {
	Charge(ctx context.Context, orderID int64, amount decimal.Decimal, method string) (string, error)
}

// MockGateway approves a fixed share of charges after a fixed delay
type MockGateway struct {
	successRate float64
	latency     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockGateway creates a gateway that succeeds with probability successRate
func NewMockGateway(successRate float64, latency time.Duration, seed int64) *MockGateway {
	return &MockGateway{
		successRate: successRate,
		latency:     latency,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Charge simulates a provider round trip
func (g *MockGateway) Charge(ctx context.Context, orderID int64, amount decimal.Decimal, method string) (string, error) {
	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()

	if roll >= g.successRate {
		return "", fmt.Errorf("%w: %s charge of %s for order %d", ErrPaymentDeclined, method, amount.StringFixed(2), orderID)
	}
	return "txn_" + uuid.New().String(), nil
}

// PaymentService charges placed orders and reports the outcome as events
type PaymentService struct {
	store     PaymentRepository
	gateway   PaymentGateway
	publisher Publisher
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store PaymentRepository, gateway PaymentGateway, publisher Publisher) *PaymentService {
	return &PaymentService{
		store:     store,
		gateway:   gateway,
		publisher: publisher,
		logger:    util.Named("payments"),
	}
}

// ProcessPayment charges a newly placed order. Cash on delivery is collected by
// the courier and skipped here. A redelivered event for an order that already has
// a settled payment is not charged again; its outcome is published again instead.
func (s *PaymentService) ProcessPayment(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.ProcessPayment")
	defer span.End()

	if event.PaymentMethod == models.PaymentMethodCOD {
		s.logger.Debug("Skipping cash on delivery order", zap.Int64("order_id", event.OrderID))
		return nil
	}

	existing, err := s.store.GetPaymentByOrderID(ctx, event.OrderID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("failed to check existing payment: %w", err)
	case existing.Status != models.PaymentStatusPending:
		s.logger.Info("Payment already settled, publishing outcome again",
			zap.Int64("order_id", event.OrderID),
			zap.String("status", existing.Status))
		return s.publishOutcome(ctx, existing, "payment declined")
	}

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	payment := existing
	if payment == nil {
		payment = &models.Payment{
			OrderID: event.OrderID,
			Status:  models.PaymentStatusPending,
			Amount:  event.Total,
		}
		if err := s.store.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
	}

	txID, err := s.gateway.Charge(ctx, event.OrderID, event.Total, event.PaymentMethod)
	if errors.Is(err, ErrPaymentDeclined) {
		return s.paymentFailed(ctx, payment, err.Error())
	}
	if err != nil {
		return fmt.Errorf("payment gateway error: %w", err)
	}

	if err := s.store.UpdatePaymentResult(ctx, payment.ID, models.PaymentStatusPaid, txID); err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}

	util.PaymentSuccessTotal.Inc()
	s.logger.Info("Payment succeeded",
		zap.Int64("order_id", event.OrderID),
		zap.String("tx_id", txID))

	payment.Status = models.PaymentStatusPaid
	payment.ProviderTxID = txID
	return s.publishOutcome(ctx, payment, "")
}

func (s *PaymentService) paymentFailed(ctx context.Context, payment *models.Payment, reason string) error {
	if err := s.store.UpdatePaymentResult(ctx, payment.ID, models.PaymentStatusFailed, ""); err != nil {
		return fmt.Errorf("failed to record payment failure: %w", err)
	}

	util.PaymentFailedTotal.Inc()
	s.logger.Warn("Payment failed",
		zap.Int64("order_id", payment.OrderID),
		zap.String("reason", reason))

	payment.Status = models.PaymentStatusFailed
	return s.publishOutcome(ctx, payment, reason)
}

// publishOutcome reports a settled payment to the saga. Refunded payments have
// nothing left for the saga to do.
func (s *PaymentService) publishOutcome(ctx context.Context, payment *models.Payment, reason string) error {
	switch payment.Status {
	case models.PaymentStatusPaid:
		succeeded := &models.PaymentSucceededEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypePaymentSucceeded),
			OrderID:   payment.OrderID,
			PaymentID: payment.ID,
			Amount:    payment.Amount,
			TxID:      payment.ProviderTxID,
		}
		if err := s.publisher.PublishPaymentSucceeded(ctx, succeeded); err != nil {
			return fmt.Errorf("failed to publish PaymentSucceeded event: %w", err)
		}
	case models.PaymentStatusFailed:
		failed := &models.PaymentFailedEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypePaymentFailed),
			OrderID:   payment.OrderID,
			PaymentID: payment.ID,
			Reason:    reason,
		}
		if err := s.publisher.PublishPaymentFailed(ctx, failed); err != nil {
			return fmt.Errorf("failed to publish PaymentFailed event: %w", err)
		}
	}
	return nil
}
