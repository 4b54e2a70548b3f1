package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_number, user_id, status, payment_status, fulfillment_status,
	payment_method, shipping_method, subtotal, tax, shipping, discount, total,
	shipping_address_id, billing_address_id, idempotency_key, created_at, updated_at`

const orderItemColumns = `id, order_id, variant_id, product_name, sku, variant_label,
	quantity, unit_price, total_price, created_at`

func createOrder(ctx context.Context, q queryer, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, user_id, status, payment_status, fulfillment_status,
			payment_method, shipping_method, subtotal, tax, shipping, discount, total,
			shipping_address_id, billing_address_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`

	err := q.GetContext(ctx, order, query,
		order.OrderNumber, order.UserID, order.Status, order.PaymentStatus, order.FulfillmentStatus,
		order.PaymentMethod, order.ShippingMethod, order.Subtotal, order.Tax, order.Shipping,
		order.Discount, order.Total, order.ShippingAddressID, order.BillingAddressID, order.IdempotencyKey)
	if err != nil {
		return classifyWriteError(err)
	}
	return nil
}

func createOrderItem(ctx context.Context, q queryer, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, variant_id, product_name, sku, variant_label,
			quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return q.GetContext(ctx, item, query,
		item.OrderID, item.VariantID, item.ProductName, item.SKU, item.VariantLabel,
		item.Quantity, item.UnitPrice, item.TotalPrice)
}

func getOrder(ctx context.Context, q queryer, query string, args ...interface{}) (*models.Order, error) {
	var order models.Order
	err := q.GetContext(ctx, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func getOrderItems(ctx context.Context, q queryer, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := q.SelectContext(ctx, &items,
		"SELECT "+orderItemColumns+" FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// updateOrderColumn overwrites one status column and returns its previous value.
// column is always one of the fixed status column names, never user input.
func updateOrderColumn(ctx context.Context, q queryer, column string, orderID int64, value string) (string, error) {
	query := fmt.Sprintf(`
		UPDATE orders o SET %[1]s = $1, updated_at = NOW()
		FROM (SELECT id, %[1]s FROM orders WHERE id = $2 FOR UPDATE) old
		WHERE o.id = old.id
		RETURNING old.%[1]s`, column)

	var previous string
	err := q.GetContext(ctx, &previous, query, value, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	return previous, err
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return getOrder(ctx, s.db, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

// GetOrderByIdempotencyKey retrieves a user's order by idempotency key, nil when absent
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	order, err := getOrder(ctx, s.db,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 AND idempotency_key = $2", userID, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return order, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return getOrderItems(ctx, s.db, orderID)
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	return orders, err
}

// ListOrders retrieves orders for the admin list, newest first
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders"
	args := []interface{}{}
	if filter.Status != "" {
		query += " WHERE status = $1"
		args = append(args, filter.Status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// UpdateOrderStatus overwrites the order status and returns the previous one
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (string, error) {
	return updateOrderColumn(ctx, s.db, "status", orderID, status)
}

// UpdateOrderPaymentStatus overwrites the order payment status and returns the previous one
func (s *Store) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, status string) (string, error) {
	return updateOrderColumn(ctx, s.db, "payment_status", orderID, status)
}

// UpdateOrderFulfillmentStatus overwrites the fulfillment status and returns the previous one
func (s *Store) UpdateOrderFulfillmentStatus(ctx context.Context, orderID int64, status string) (string, error) {
	return updateOrderColumn(ctx, s.db, "fulfillment_status", orderID, status)
}

// CountOrdersByStatus groups all orders by status
func (s *Store) CountOrdersByStatus(ctx context.Context) ([]models.StatusCount, error) {
	counts := []models.StatusCount{}
	err := s.db.SelectContext(ctx, &counts,
		"SELECT status, COUNT(*) AS count FROM orders GROUP BY status ORDER BY status")
	return counts, err
}

// Revenue sums order totals excluding cancelled and refunded orders
func (s *Store) Revenue(ctx context.Context) (decimal.Decimal, error) {
	var revenue decimal.Decimal
	err := s.db.GetContext(ctx, &revenue,
		"SELECT COALESCE(SUM(total), 0) FROM orders WHERE status NOT IN ($1, $2)",
		models.OrderStatusCancelled, models.OrderStatusRefunded)
	return revenue, err
}

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, status, provider_tx_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, payment, query,
		payment.OrderID, payment.Status, payment.ProviderTxID, payment.Amount)
}

// GetPaymentByOrderID retrieves the latest payment for an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, `
		SELECT id, order_id, status, provider_tx_id, amount, created_at, updated_at
		FROM payments WHERE order_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment for order %d", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentResult records the gateway outcome on a payment row
func (s *Store) UpdatePaymentResult(ctx context.Context, paymentID int64, status, providerTxID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1, provider_tx_id = $2, updated_at = NOW() WHERE id = $3",
		status, providerTxID, paymentID)
	return err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	return markEventProcessed(ctx, s.db, eventID, eventType)
}

func markEventProcessed(ctx context.Context, q queryer, eventID, eventType string) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
