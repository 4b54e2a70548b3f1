package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxOrderNumberAttempts = 3

// OrderService handles checkout and the customer side of orders
type OrderService struct {
	store        OrderRepository
	inventory    *InventoryService
	publisher    Publisher
	locker       Locker
	pricing      PricingRules
	prefix       string
	lockTTL      time.Duration
	now          func() time.Time
	orderNumbers func(prefix string, now time.Time) string
	logger       *zap.Logger
}

// OrderOptions configures checkout
type OrderOptions struct {
	Pricing           PricingRules
	OrderNumberPrefix string
	CheckoutLockTTL   time.Duration
}

// NewOrderService creates a new order service
func NewOrderService(
	store OrderRepository,
	inventory *InventoryService,
	publisher Publisher,
	locker Locker,
	opts OrderOptions,
) *OrderService {
	if opts.OrderNumberPrefix == "" {
		opts.OrderNumberPrefix = "ORD"
	}
	if opts.CheckoutLockTTL <= 0 {
		opts.CheckoutLockTTL = 30 * time.Second
	}
	return &OrderService{
		store:        store,
		inventory:    inventory,
		publisher:    publisher,
		locker:       locker,
		pricing:      opts.Pricing,
		prefix:       opts.OrderNumberPrefix,
		lockTTL:      opts.CheckoutLockTTL,
		now:          time.Now,
		orderNumbers: NewOrderNumber,
		logger:       util.Named("orders"),
	}
}

// CreateOrderInput is the checkout request
type CreateOrderInput struct {
	ShippingAddressID int64  `json:"shipping_address_id" validate:"required,gt=0"`
	BillingAddressID  int64  `json:"billing_address_id" validate:"required,gt=0"`
	ShippingMethod    string `json:"shipping_method" validate:"required,oneof=STANDARD EXPRESS"`
	PaymentMethod     string `json:"payment_method" validate:"required,oneof=COD CARD GCASH BANK_TRANSFER"`
	IdempotencyKey    string `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

// CreateOrderResult is the placed order. Duplicate is set when an earlier request
// with the same idempotency key already placed it.
type CreateOrderResult struct {
	Order     *models.OrderWithItems `json:"order"`
	Duplicate bool                   `json:"duplicate"`
}

// placement is what one committed checkout transaction produced
type placement struct {
	order   *models.OrderWithItems
	entries []*models.InventoryLog
}

// CreateOrder turns the user's cart into an order. Pricing, order rows, cart
// clearing and stock decrements share one transaction: either all of it commits
// or none of it does.
func (s *OrderService) CreateOrder(ctx context.Context, user *models.User, input CreateOrderInput) (result *CreateOrderResult, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer func() { util.EndSpan(span, err) }()

	if user == nil {
		return nil, apperr.Unauthenticated()
	}
	span.SetAttributes(attribute.Int64("user_id", user.ID))

	if err := validateStruct(input); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	if input.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, user.ID, input.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", input.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return &CreateOrderResult{Order: existing, Duplicate: true}, nil
		}
	}

	release, err := s.acquireCheckoutLock(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	var placed *placement
	for attempt := 1; ; attempt++ {
		placed, err = s.placeOrder(ctx, user, input)
		if errors.Is(err, store.ErrDuplicateOrderNumber) && attempt < maxOrderNumberAttempts {
			util.CheckoutRetriesTotal.Inc()
			s.logger.Warn("Order number collision, retrying", zap.Int("attempt", attempt))
			continue
		}
		break
	}

	if err != nil {
		return s.checkoutFailed(ctx, user, input, err)
	}

	util.CheckoutLatency.Observe(time.Since(start).Seconds())
	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", placed.order.ID),
		zap.String("order_number", placed.order.OrderNumber),
		zap.String("total", placed.order.Total.StringFixed(2)))

	s.inventory.recordAdjustments(ctx, placed.entries)
	s.publishOrderPlaced(ctx, placed.order)
	s.revalidate(ctx, "/cart", "/orders", "/admin/orders")

	return &CreateOrderResult{Order: placed.order}, nil
}

// checkoutFailed converts a failed transaction into the error the caller sees
func (s *OrderService) checkoutFailed(ctx context.Context, user *models.User, input CreateOrderInput, err error) (*CreateOrderResult, error) {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		util.OrdersFailedTotal.WithLabelValues(string(appErr.Kind)).Inc()
		if appErr.Kind == apperr.KindOutOfStock {
			util.StockConflictsTotal.Inc()
		}
		return nil, appErr

	case errors.Is(err, store.ErrDuplicateIdempotencyKey):
		// A concurrent request with the same key committed first
		existing, lookupErr := s.findByIdempotencyKey(ctx, user.ID, input.IdempotencyKey)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			return &CreateOrderResult{Order: existing, Duplicate: true}, nil
		}
	}

	util.OrdersFailedTotal.WithLabelValues("internal").Inc()
	s.logger.Error("Failed to create order", zap.Int64("user_id", user.ID), zap.Error(err))
	return nil, apperr.Internal("create order", err)
}

// placeOrder runs one checkout transaction
func (s *OrderService) placeOrder(ctx context.Context, user *models.User, input CreateOrderInput) (*placement, error) {
	placed := &placement{}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		placed.entries = nil

		if _, err := tx.GetAddressForUser(ctx, user.ID, input.ShippingAddressID); err != nil {
			return addressError(err, "shipping_address_id")
		}
		if _, err := tx.GetAddressForUser(ctx, user.ID, input.BillingAddressID); err != nil {
			return addressError(err, "billing_address_id")
		}

		lines, err := tx.LockCartLines(ctx, user.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperr.New(apperr.KindEmptyCart, "Cart is empty")
		}
		for _, l := range lines {
			if !l.IsActive {
				return apperr.Newf(apperr.KindConflict, "%s is no longer available", l.SKU)
			}
		}

		quote := QuoteLines(lines, input.ShippingMethod, s.pricing)
		order := &models.Order{
			OrderNumber:       s.orderNumbers(s.prefix, s.now()),
			UserID:            user.ID,
			Status:            models.OrderStatusPending,
			PaymentStatus:     models.PaymentStatusPending,
			FulfillmentStatus: models.FulfillmentStatusUnfulfilled,
			PaymentMethod:     input.PaymentMethod,
			ShippingMethod:    input.ShippingMethod,
			Subtotal:          quote.Subtotal,
			Tax:               quote.Tax,
			Shipping:          quote.Shipping,
			Discount:          quote.Discount,
			Total:             quote.Total,
			ShippingAddressID: input.ShippingAddressID,
			BillingAddressID:  input.BillingAddressID,
		}
		if input.IdempotencyKey != "" {
			key := input.IdempotencyKey
			order.IdempotencyKey = &key
		}

		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(lines))
		cartIDs := make([]int64, 0, len(lines))
		for _, l := range lines {
			item := models.OrderItem{
				OrderID:      order.ID,
				VariantID:    l.VariantID,
				ProductName:  l.ProductName,
				SKU:          l.SKU,
				VariantLabel: models.VariantLabel(l.Size, l.Color),
				Quantity:     l.Quantity,
				UnitPrice:    l.UnitPrice,
				TotalPrice:   l.LineTotal(),
			}
			if err := tx.CreateOrderItem(ctx, &item); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
			items = append(items, item)
			cartIDs = append(cartIDs, l.CartItemID)
		}

		// Only the rows that were priced; rows added since then stay in the cart
		if _, err := tx.DeleteCartItems(ctx, user.ID, cartIDs); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		for _, l := range lines {
			entry, err := tx.AdjustStock(ctx, saleAdjustment(order.OrderNumber, order.ID, l.VariantID, l.Quantity))
			if errors.Is(err, store.ErrInsufficientStock) {
				return apperr.Wrap(apperr.KindOutOfStock, fmt.Sprintf("%s is out of stock", l.SKU), err)
			}
			if errors.Is(err, store.ErrNotFound) {
				return apperr.Newf(apperr.KindConflict, "%s is no longer available", l.SKU)
			}
			if err != nil {
				return err
			}
			placed.entries = append(placed.entries, entry)
		}

		placed.order = &models.OrderWithItems{Order: *order, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func addressError(err error, field string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &apperr.Error{
			Kind:    apperr.KindNotFound,
			Message: "Address not found",
			Fields:  map[string]string{field: "does not belong to this account"},
		}
	}
	return err
}

// acquireCheckoutLock keeps one user from running two checkouts at once. When the
// lock store is unreachable checkout proceeds; the transaction still guards stock.
func (s *OrderService) acquireCheckoutLock(ctx context.Context, userID int64) (func(), error) {
	key := fmt.Sprintf("checkout:%d", userID)
	token, ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Warn("Checkout lock unavailable, continuing without it",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		util.OrdersFailedTotal.WithLabelValues("checkout_in_progress").Inc()
		return nil, apperr.New(apperr.KindConflict, "A checkout is already in progress")
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.ReleaseLock(releaseCtx, key, token); err != nil {
			s.logger.Warn("Failed to release checkout lock", zap.Int64("user_id", userID), zap.Error(err))
		}
	}, nil
}

func (s *OrderService) findByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.OrderWithItems, error) {
	order, err := s.store.GetOrderByIdempotencyKey(ctx, userID, key)
	if err != nil {
		s.logger.Error("Failed to check idempotency", zap.String("idempotency_key", key), zap.Error(err))
		return nil, apperr.Internal("create order", err)
	}
	if order == nil {
		return nil, nil
	}
	items, err := s.store.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, apperr.Internal("create order", err)
	}
	return &models.OrderWithItems{Order: *order, Items: items}, nil
}

func (s *OrderService) publishOrderPlaced(ctx context.Context, order *models.OrderWithItems) {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		Total:         order.Total,
		Items:         items,
	}
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

// GetOrder returns an order with its lines. Orders of other users are reported
// as missing unless the caller is an admin.
func (s *OrderService) GetOrder(ctx context.Context, user *models.User, orderID int64) (*models.OrderWithItems, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	if user == nil {
		return nil, apperr.Unauthenticated()
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "Order not found")
	}
	if err != nil {
		s.logger.Error("Failed to load order", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, apperr.Internal("load order", err)
	}
	if order.UserID != user.ID && !user.IsAdmin() {
		return nil, apperr.New(apperr.KindNotFound, "Order not found")
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to load order items", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, apperr.Internal("load order", err)
	}

	return &models.OrderWithItems{Order: *order, Items: items}, nil
}

// ListOrders returns the user's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, user *models.User) ([]models.Order, error) {
	if user == nil {
		return nil, apperr.Unauthenticated()
	}

	orders, err := s.store.GetOrdersByUserID(ctx, user.ID)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil, apperr.Internal("load orders", err)
	}
	return orders, nil
}

// CancelOrder lets a customer cancel their own order before it is fulfilled.
// Every line is returned to stock through the ledger.
func (s *OrderService) CancelOrder(ctx context.Context, user *models.User, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.Int64("order_id", orderID))
	defer span.End()

	if user == nil {
		return nil, apperr.Unauthenticated()
	}

	return s.cancel(ctx, cancelRequest{
		orderID: orderID,
		reason:  "cancelled by customer",
		source:  "customer",
		strict:  true,
		authorize: func(order *models.Order) error {
			if order.UserID != user.ID {
				return apperr.New(apperr.KindNotFound, "Order not found")
			}
			return nil
		},
	})
}

type cancelRequest struct {
	orderID int64
	reason  string
	source  string
	// strict turns a non-cancellable order into CONFLICT instead of a no-op
	strict        bool
	authorize     func(*models.Order) error
	paymentStatus string
	event         *models.BaseEvent
}

func cancellable(order *models.Order) bool {
	return (order.Status == models.OrderStatusPending || order.Status == models.OrderStatusConfirmed) &&
		order.FulfillmentStatus == models.FulfillmentStatusUnfulfilled
}

// cancel sets an order CANCELLED and restocks its lines in one transaction. An
// order that is already cancelled, or past the point of cancelling, is not restocked.
func (s *OrderService) cancel(ctx context.Context, req cancelRequest) (*models.Order, error) {
	var (
		order     *models.Order
		entries   []*models.InventoryLog
		cancelled bool
	)

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		entries = nil
		cancelled = false

		var err error
		order, err = tx.LockOrder(ctx, req.orderID)
		if err != nil {
			return err
		}
		if req.authorize != nil {
			if err := req.authorize(order); err != nil {
				return err
			}
		}

		if cancellable(order) {
			if err := restockOnce(ctx, tx, order, &entries); err != nil {
				return err
			}
			if err := tx.SetOrderStatus(ctx, order.ID, models.OrderStatusCancelled); err != nil {
				return err
			}
			order.Status = models.OrderStatusCancelled
			cancelled = true
		} else if req.strict {
			return apperr.Newf(apperr.KindConflict, "Order cannot be cancelled while %s/%s",
				order.Status, order.FulfillmentStatus)
		}

		if req.paymentStatus != "" {
			if err := tx.SetOrderPaymentStatus(ctx, order.ID, req.paymentStatus); err != nil {
				return err
			}
			order.PaymentStatus = req.paymentStatus
		}
		if req.event != nil {
			if err := tx.MarkEventProcessed(ctx, req.event.EventID, req.event.EventType); err != nil {
				return err
			}
		}
		return nil
	})

	var appErr *apperr.Error
	switch {
	case err == nil:
	case errors.As(err, &appErr):
		return nil, appErr
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.New(apperr.KindNotFound, "Order not found")
	default:
		s.logger.Error("Failed to cancel order", zap.Int64("order_id", req.orderID), zap.Error(err))
		return nil, apperr.Internal("cancel order", err)
	}

	if !cancelled {
		return order, nil
	}

	util.OrdersCancelledTotal.WithLabelValues(req.source).Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", order.ID),
		zap.String("reason", req.reason),
		zap.Int("restocked_lines", len(entries)))

	s.inventory.recordAdjustments(ctx, entries)

	event := &models.OrderCancelledEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   order.ID,
		Reason:    req.reason,
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
	s.revalidate(ctx, "/orders", fmt.Sprintf("/orders/%d", order.ID), "/admin/orders")

	return order, nil
}

// restockOnce returns an order's lines to stock unless the ledger already holds a
// restock for it. An order moved back out of CANCELLED by an admin keeps its
// earlier restock.
func restockOnce(ctx context.Context, tx store.Tx, order *models.Order, entries *[]*models.InventoryLog) error {
	reference := strconv.FormatInt(order.ID, 10)
	restocked, err := tx.HasLedgerEntries(ctx, models.InventoryLogRestock, reference)
	if err != nil {
		return err
	}
	if restocked {
		return nil
	}

	items, err := tx.GetOrderItems(ctx, order.ID)
	if err != nil {
		return err
	}
	for _, item := range items {
		entry, err := tx.AdjustStock(ctx, restockAdjustment(order.OrderNumber, order.ID, item.VariantID, item.Quantity))
		if err != nil {
			return fmt.Errorf("failed to restock variant %d: %w", item.VariantID, err)
		}
		*entries = append(*entries, entry)
	}
	return nil
}

func (s *OrderService) revalidate(ctx context.Context, paths ...string) {
	if err := s.publisher.Revalidate(ctx, paths...); err != nil {
		s.logger.Warn("Failed to signal revalidation", zap.Strings("paths", paths), zap.Error(err))
	}
}
