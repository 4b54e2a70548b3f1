package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func placeCardOrder(t *testing.T, h *harness, user *models.User, variantID int64, qty int) *models.OrderPlacedEvent {
	t.Helper()
	addToCart(t, h, user, variantID, qty)
	input := h.checkoutInput(user)
	input.PaymentMethod = models.PaymentMethodCard
	_, err := h.orders.CreateOrder(context.Background(), user, input)
	require.NoError(t, err)
	require.NotEmpty(t, h.publisher.placed)
	return h.publisher.placed[len(h.publisher.placed)-1]
}

func orderState(t *testing.T, h *harness, id int64) *models.OrderWithItems {
	t.Helper()
	order, err := h.orders.GetOrder(context.Background(), adminUser(), id)
	require.NoError(t, err)
	return order
}

func TestProcessPaymentSkipsCashOnDelivery(t *testing.T) {
	h := newHarness()
	user := customer(1)
	v := h.store.addVariant("TEE-M", "500", 10)
	addToCart(t, h, user, v, 1)
	_, err := h.orders.CreateOrder(context.Background(), user, h.checkoutInput(user))
	require.NoError(t, err)

	err = h.payments.ProcessPayment(context.Background(), h.publisher.placed[0])

	require.NoError(t, err)
	assert.Zero(t, h.gateway.charges)
	assert.Empty(t, h.publisher.succeeded)
	assert.Empty(t, h.publisher.failed)
}

func TestPaymentSuccessConfirmsOrder(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	v := h.store.addVariant("TEE-M", "500", 10)
	placed := placeCardOrder(t, h, customer(1), v, 2)

	require.NoError(t, h.payments.ProcessPayment(ctx, placed))
	require.Len(t, h.publisher.succeeded, 1)
	succeeded := h.publisher.succeeded[0]
	assert.Equal(t, fmt.Sprintf("txn_%d", placed.OrderID), succeeded.TxID)
	assert.True(t, placed.Total.Equal(succeeded.Amount))

	require.NoError(t, h.saga.HandlePaymentSucceeded(ctx, succeeded))

	order := orderState(t, h, placed.OrderID)
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	require.Len(t, h.publisher.statusChanged, 1)
	assert.Equal(t, models.OrderStatusPending, h.publisher.statusChanged[0].Previous)

	// redelivery
	require.NoError(t, h.saga.HandlePaymentSucceeded(ctx, succeeded))
	assert.Len(t, h.publisher.statusChanged, 1)
}

func TestPaymentSuccessLeavesAdvancedOrderStatus(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	v := h.store.addVariant("TEE-M", "500", 10)
	placed := placeCardOrder(t, h, customer(1), v, 1)
	_, err := h.admin.UpdateOrderStatus(ctx, adminUser(), placed.OrderID, models.OrderStatusShipped)
	require.NoError(t, err)

	require.NoError(t, h.payments.ProcessPayment(ctx, placed))
	require.NoError(t, h.saga.HandlePaymentSucceeded(ctx, h.publisher.succeeded[0]))

	order := orderState(t, h, placed.OrderID)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
}

func TestPaymentForCancelledOrderIsFlaggedForRefund(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	user := customer(1)
	v := h.store.addVariant("TEE-M", "500", 10)
	placed := placeCardOrder(t, h, user, v, 1)
	_, err := h.orders.CancelOrder(ctx, user, placed.OrderID)
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	h.saga.logger = zap.New(core)

	require.NoError(t, h.payments.ProcessPayment(ctx, placed))
	require.NoError(t, h.saga.HandlePaymentSucceeded(ctx, h.publisher.succeeded[0]))

	order := orderState(t, h, placed.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Empty(t, h.publisher.statusChanged)

	flagged := logs.FilterMessage("Payment captured for a cancelled order, refund required").All()
	require.Len(t, flagged, 1)
	assert.Equal(t, placed.OrderID, flagged[0].ContextMap()["order_id"])
}

func TestPaymentFailureCancelsAndRestocks(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	v := h.store.addVariant("TEE-M", "500", 10)
	placed := placeCardOrder(t, h, customer(1), v, 3)
	require.Equal(t, 7, h.store.variant(v).Inventory)
	h.gateway.results = []error{fmt.Errorf("%w: insufficient funds", ErrPaymentDeclined)}

	require.NoError(t, h.payments.ProcessPayment(ctx, placed))
	require.Len(t, h.publisher.failed, 1)
	failed := h.publisher.failed[0]
	assert.Contains(t, failed.Reason, "insufficient funds")

	require.NoError(t, h.saga.HandlePaymentFailed(ctx, failed))

	order := orderState(t, h, placed.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, 10, h.store.variant(v).Inventory)
	require.Len(t, h.publisher.cancelled, 1)

	// redelivery must not restock twice
	require.NoError(t, h.saga.HandlePaymentFailed(ctx, failed))
	assert.Equal(t, 10, h.store.variant(v).Inventory)
	assert.Len(t, h.store.logsFor(v), 2)
	assert.Len(t, h.publisher.cancelled, 1)
}

func TestPaymentFailureAfterFulfillmentKeepsStock(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	v := h.store.addVariant("TEE-M", "500", 10)
	placed := placeCardOrder(t, h, customer(1), v, 1)
	_, err := h.admin.UpdateFulfillmentStatus(ctx, adminUser(), placed.OrderID, models.FulfillmentStatusFulfilled)
	require.NoError(t, err)
	h.gateway.results = []error{ErrPaymentDeclined}

	require.NoError(t, h.payments.ProcessPayment(ctx, placed))
	require.NoError(t, h.saga.HandlePaymentFailed(ctx, h.publisher.failed[0]))

	order := orderState(t, h, placed.OrderID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, 9, h.store.variant(v).Inventory)
	assert.Empty(t, h.publisher.cancelled)
}

func TestProcessPaymentDoesNotRechargeSettledPayment(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	v := h.store.addVariant("TEE-M", "500", 10)
	placed := placeCardOrder(t, h, customer(1), v, 1)

	require.NoError(t, h.payments.ProcessPayment(ctx, placed))
	require.NoError(t, h.payments.ProcessPayment(ctx, placed))

	assert.Equal(t, 1, h.gateway.charges)
	require.Len(t, h.publisher.succeeded, 2)
	assert.Equal(t, h.publisher.succeeded[0].TxID, h.publisher.succeeded[1].TxID)
	assert.Equal(t, h.publisher.succeeded[0].PaymentID, h.publisher.succeeded[1].PaymentID)
}

func TestDeclinedPaymentIsReportedAfterPublisherRecovers(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	v := h.store.addVariant("TEE-M", "500", 10)
	placed := placeCardOrder(t, h, customer(1), v, 3)
	h.gateway.results = []error{ErrPaymentDeclined}

	h.publisher.err = errors.New("broker unavailable")
	require.Error(t, h.payments.ProcessPayment(ctx, placed))
	payment, err := h.store.GetPaymentByOrderID(ctx, placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)

	h.publisher.err = nil
	require.NoError(t, h.payments.ProcessPayment(ctx, placed))
	assert.Equal(t, 1, h.gateway.charges)
	require.Len(t, h.publisher.failed, 1)
	assert.Equal(t, placed.OrderID, h.publisher.failed[0].OrderID)

	require.NoError(t, h.saga.HandlePaymentFailed(ctx, h.publisher.failed[0]))

	order := orderState(t, h, placed.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, 10, h.store.variant(v).Inventory)
}

func TestRepublishedFailureDoesNotRestockTwice(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	v := h.store.addVariant("TEE-M", "500", 10)
	placed := placeCardOrder(t, h, customer(1), v, 3)
	h.gateway.results = []error{ErrPaymentDeclined}

	require.NoError(t, h.payments.ProcessPayment(ctx, placed))
	require.NoError(t, h.payments.ProcessPayment(ctx, placed))
	require.Len(t, h.publisher.failed, 2)

	for _, failed := range h.publisher.failed {
		require.NoError(t, h.saga.HandlePaymentFailed(ctx, failed))
	}

	assert.Equal(t, 10, h.store.variant(v).Inventory)
	assert.Len(t, h.store.logsFor(v), 2)
	assert.Len(t, h.publisher.cancelled, 1)
}

func TestProcessPaymentRetriesPendingPayment(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	v := h.store.addVariant("TEE-M", "500", 10)
	placed := placeCardOrder(t, h, customer(1), v, 1)
	h.gateway.results = []error{context.DeadlineExceeded}

	err := h.payments.ProcessPayment(ctx, placed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.publisher.succeeded)

	require.NoError(t, h.payments.ProcessPayment(ctx, placed))

	assert.Equal(t, 2, h.gateway.charges)
	assert.Len(t, h.store.st.payments, 1)
	payment, err := h.store.GetPaymentByOrderID(ctx, placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, payment.Status)
}

func TestMockGateway(t *testing.T) {
	ctx := context.Background()

	txID, err := NewMockGateway(1, 0, 1).Charge(ctx, 1, dec("100"), models.PaymentMethodCard)
	require.NoError(t, err)
	assert.Regexp(t, `^txn_[0-9a-f-]{36}$`, txID)

	_, err = NewMockGateway(0, 0, 1).Charge(ctx, 1, dec("100"), models.PaymentMethodGCash)
	assert.True(t, errors.Is(err, ErrPaymentDeclined))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewMockGateway(1, time.Hour, 1).Charge(cancelled, 1, dec("100"), models.PaymentMethodCard)
	assert.ErrorIs(t, err, context.Canceled)
}
