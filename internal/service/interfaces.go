package service

import (
	"context"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
)

// TxRunner runs fn in one database transaction
type TxRunner interface {
	InTx(ctx context.Context, fn func(store.Tx) error) error
}

// CartRepository is the cart part of *store.Store
type CartRepository interface {
	AddCartItem(ctx context.Context, userID, variantID int64, quantity int) (*models.CartItem, error)
	UpdateCartItemQuantity(ctx context.Context, userID, itemID int64, quantity int) (*models.CartItem, error)
	DeleteCartItem(ctx context.Context, userID, itemID int64) error
	ListCartItems(ctx context.Context, userID int64) ([]models.CartItemWithDetails, error)
	IsVariantPurchasable(ctx context.Context, id int64) (bool, error)
}

// OrderRepository is the order part of *store.Store
type OrderRepository interface {
	TxRunner
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
}

// InventoryRepository is the stock part of *store.Store
type InventoryRepository interface {
	TxRunner
	GetVariantByID(ctx context.Context, id int64) (*models.ProductVariant, error)
	ListInventoryLogs(ctx context.Context, variantID int64, limit int) ([]models.InventoryLog, error)
	ListStockLevels(ctx context.Context) ([]models.StockLevel, error)
	FindStockDiscrepancies(ctx context.Context) ([]models.StockDiscrepancy, error)
}

// AdminRepository is the back-office part of *store.Store
type AdminRepository interface {
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) (string, error)
	UpdateOrderPaymentStatus(ctx context.Context, orderID int64, status string) (string, error)
	UpdateOrderFulfillmentStatus(ctx context.Context, orderID int64, status string) (string, error)
	CountOrdersByStatus(ctx context.Context) ([]models.StatusCount, error)
	Revenue(ctx context.Context) (decimal.Decimal, error)
	ListLowStockVariants(ctx context.Context, threshold int) ([]models.LowStockVariant, error)
}

// PaymentRepository is the payment part of *store.Store
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	UpdatePaymentResult(ctx context.Context, paymentID int64, status, providerTxID string) error
}

// Publisher is satisfied by *broker.EventPublisher
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishInventoryAdjusted(ctx context.Context, event *models.InventoryAdjustedEvent) error
	PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	Revalidate(ctx context.Context, paths ...string) error
}

// StockCache is satisfied by *redisclient.Client
type StockCache interface {
	SetStock(ctx context.Context, variantID int64, stock int, version int64) (bool, error)
	GetStock(ctx context.Context, variantID int64) (int, bool, error)
}

// Locker is satisfied by *redisclient.Client
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}
