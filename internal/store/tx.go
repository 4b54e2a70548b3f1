package store

import (
	"context"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// Tx is the set of writes that must share one database transaction.
// Stock is only ever changed through AdjustStock, which appends a ledger row.
type Tx interface {
	GetAddressForUser(ctx context.Context, userID, addressID int64) (*models.Address, error)
	LockCartLines(ctx context.Context, userID int64) ([]models.CartLine, error)
	DeleteCartItems(ctx context.Context, userID int64, itemIDs []int64) (int64, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	LockOrder(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	SetOrderStatus(ctx context.Context, orderID int64, status string) error
	SetOrderPaymentStatus(ctx context.Context, orderID int64, status string) error
	LockVariantStock(ctx context.Context, variantID int64) (int, error)
	AdjustStock(ctx context.Context, adj models.StockAdjustment) (*models.InventoryLog, error)
	HasLedgerEntries(ctx context.Context, kind, reference string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) GetAddressForUser(ctx context.Context, userID, addressID int64) (*models.Address, error) {
	return getAddressForUser(ctx, t.tx, userID, addressID)
}

func (t *sqlTx) LockCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	return lockCartLines(ctx, t.tx, userID)
}

func (t *sqlTx) DeleteCartItems(ctx context.Context, userID int64, itemIDs []int64) (int64, error) {
	return deleteCartItems(ctx, t.tx, userID, itemIDs)
}

func (t *sqlTx) CreateOrder(ctx context.Context, order *models.Order) error {
	return createOrder(ctx, t.tx, order)
}

func (t *sqlTx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	return createOrderItem(ctx, t.tx, item)
}

func (t *sqlTx) LockOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return getOrder(ctx, t.tx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", orderID)
}

func (t *sqlTx) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return getOrderItems(ctx, t.tx, orderID)
}

func (t *sqlTx) SetOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := updateOrderColumn(ctx, t.tx, "status", orderID, status)
	return err
}

func (t *sqlTx) SetOrderPaymentStatus(ctx context.Context, orderID int64, status string) error {
	_, err := updateOrderColumn(ctx, t.tx, "payment_status", orderID, status)
	return err
}

func (t *sqlTx) LockVariantStock(ctx context.Context, variantID int64) (int, error) {
	return lockVariantStock(ctx, t.tx, variantID)
}

func (t *sqlTx) AdjustStock(ctx context.Context, adj models.StockAdjustment) (*models.InventoryLog, error) {
	return adjustStock(ctx, t.tx, adj)
}

func (t *sqlTx) HasLedgerEntries(ctx context.Context, kind, reference string) (bool, error) {
	return hasLedgerEntries(ctx, t.tx, kind, reference)
}

func (t *sqlTx) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	return markEventProcessed(ctx, t.tx, eventID, eventType)
}
