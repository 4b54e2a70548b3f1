package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the authenticated caller resolved for a single request
type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Name      string    `db:"name" json:"name"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsAdmin reports whether the user may use admin overrides
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Address is a shipping or billing address owned by a user
type Address struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Label      string    `db:"label" json:"label"`
	Line1      string    `db:"line1" json:"line1"`
	Line2      string    `db:"line2" json:"line2"`
	City       string    `db:"city" json:"city"`
	Province   string    `db:"province" json:"province"`
	PostalCode string    `db:"postal_code" json:"postal_code"`
	Country    string    `db:"country" json:"country"`
	Phone      string    `db:"phone" json:"phone"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ProductVariant is a purchasable SKU with its own price and stock counter
type ProductVariant struct {
	ID             int64               `db:"id" json:"id"`
	ProductID      int64               `db:"product_id" json:"product_id"`
	SKU            string              `db:"sku" json:"sku"`
	Price          decimal.Decimal     `db:"price" json:"price"`
	CompareAtPrice decimal.NullDecimal `db:"compare_at_price" json:"compare_at_price"`
	Inventory      int                 `db:"inventory" json:"inventory"`
	Size           string              `db:"size" json:"size"`
	Color          string              `db:"color" json:"color"`
	IsActive       bool                `db:"is_active" json:"is_active"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

// Label renders the size/color pair shown on order lines
func (v *ProductVariant) Label() string {
	return VariantLabel(v.Size, v.Color)
}

// VariantLabel joins the non-empty size and color of a variant
func VariantLabel(size, color string) string {
	switch {
	case size != "" && color != "":
		return size + " / " + color
	case size != "":
		return size
	default:
		return color
	}
}

// CartItem is a (user, variant, quantity) row
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	VariantID int64     `db:"variant_id" json:"variant_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItemWithDetails is a cart row joined with its variant, product, brand and first image
type CartItemWithDetails struct {
	ID             int64               `db:"id" json:"id"`
	VariantID      int64               `db:"variant_id" json:"variant_id"`
	Quantity       int                 `db:"quantity" json:"quantity"`
	SKU            string              `db:"sku" json:"sku"`
	Price          decimal.Decimal     `db:"price" json:"price"`
	CompareAtPrice decimal.NullDecimal `db:"compare_at_price" json:"compare_at_price"`
	Inventory      int                 `db:"inventory" json:"inventory"`
	Size           string              `db:"size" json:"size"`
	Color          string              `db:"color" json:"color"`
	ProductID      int64               `db:"product_id" json:"product_id"`
	ProductName    string              `db:"product_name" json:"product_name"`
	ProductSlug    string              `db:"product_slug" json:"product_slug"`
	BrandName      string              `db:"brand_name" json:"brand_name"`
	ImageURL       string              `db:"image_url" json:"image_url"`
}

// CartLine is a cart row locked for checkout together with the live variant data used for pricing
type CartLine struct {
	CartItemID  int64           `db:"cart_item_id"`
	VariantID   int64           `db:"variant_id"`
	Quantity    int             `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"price"`
	SKU         string          `db:"sku"`
	Size        string          `db:"size"`
	Color       string          `db:"color"`
	IsActive    bool            `db:"is_active"`
	ProductName string          `db:"product_name"`
}

// LineTotal is the unit price multiplied by the quantity
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartSummary is the header badge data for a cart
type CartSummary struct {
	ItemCount int             `json:"item_count"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Order represents a customer order
type Order struct {
	ID                int64           `db:"id" json:"id"`
	OrderNumber       string          `db:"order_number" json:"order_number"`
	UserID            int64           `db:"user_id" json:"user_id"`
	Status            string          `db:"status" json:"status"`
	PaymentStatus     string          `db:"payment_status" json:"payment_status"`
	FulfillmentStatus string          `db:"fulfillment_status" json:"fulfillment_status"`
	PaymentMethod     string          `db:"payment_method" json:"payment_method"`
	ShippingMethod    string          `db:"shipping_method" json:"shipping_method"`
	Subtotal          decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax               decimal.Decimal `db:"tax" json:"tax"`
	Shipping          decimal.Decimal `db:"shipping" json:"shipping"`
	Discount          decimal.Decimal `db:"discount" json:"discount"`
	Total             decimal.Decimal `db:"total" json:"total"`
	ShippingAddressID int64           `db:"shipping_address_id" json:"shipping_address_id"`
	BillingAddressID  int64           `db:"billing_address_id" json:"billing_address_id"`
	IdempotencyKey    *string         `db:"idempotency_key" json:"-"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is an immutable order line. Prices are copied at order time.
type OrderItem struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      int64           `db:"order_id" json:"order_id"`
	VariantID    int64           `db:"variant_id" json:"variant_id"`
	ProductName  string          `db:"product_name" json:"product_name"`
	SKU          string          `db:"sku" json:"sku"`
	VariantLabel string          `db:"variant_label" json:"variant_label"`
	Quantity     int             `db:"quantity" json:"quantity"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice   decimal.Decimal `db:"total_price" json:"total_price"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// OrderWithItems is an order together with its lines
type OrderWithItems struct {
	Order
	Items []OrderItem `json:"items"`
}

// OrderFilter narrows the admin order list
type OrderFilter struct {
	Status string
	Limit  int
	Offset int
}

// InventoryLog is an append-only record of one stock change
type InventoryLog struct {
	ID            int64     `db:"id" json:"id"`
	VariantID     int64     `db:"variant_id" json:"variant_id"`
	Kind          string    `db:"kind" json:"kind"`
	Delta         int       `db:"delta" json:"delta"`
	PreviousStock int       `db:"previous_stock" json:"previous_stock"`
	NewStock      int       `db:"new_stock" json:"new_stock"`
	Reason        string    `db:"reason" json:"reason"`
	Reference     string    `db:"reference" json:"reference"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// StockAdjustment describes a single change to a variant's stock counter
type StockAdjustment struct {
	VariantID int64
	Delta     int
	Kind      string
	Reason    string
	Reference string
}

// StockLevel is a variant counter together with the id of its latest ledger row
type StockLevel struct {
	VariantID int64 `db:"variant_id" json:"variant_id"`
	Inventory int   `db:"inventory" json:"inventory"`
	Version   int64 `db:"version" json:"version"`
}

// StockDiscrepancy is a variant whose live counter disagrees with its ledger
type StockDiscrepancy struct {
	VariantID   int64  `db:"variant_id" json:"variant_id"`
	SKU         string `db:"sku" json:"sku"`
	Inventory   int    `db:"inventory" json:"inventory"`
	LedgerStock int    `db:"ledger_stock" json:"ledger_stock"`
	LastLogID   int64  `db:"last_log_id" json:"last_log_id"`
}

// LowStockVariant is listed on the admin dashboard
type LowStockVariant struct {
	VariantID   int64  `db:"variant_id" json:"variant_id"`
	SKU         string `db:"sku" json:"sku"`
	ProductName string `db:"product_name" json:"product_name"`
	Inventory   int    `db:"inventory" json:"inventory"`
}

// StatusCount is an order count for one status
type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int64  `db:"count" json:"count"`
}

// Dashboard aggregates the admin overview
type Dashboard struct {
	OrdersByStatus []StatusCount     `json:"orders_by_status"`
	Revenue        decimal.Decimal   `json:"revenue"`
	LowStock       []LowStockVariant `json:"low_stock"`
}

// Payment represents a payment transaction
type Payment struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      int64           `db:"order_id" json:"order_id"`
	Status       string          `db:"status" json:"status"`
	ProviderTxID string          `db:"provider_tx_id" json:"provider_tx_id,omitempty"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// User roles
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// Order statuses
const (
	OrderStatusPending    = "PENDING"
	OrderStatusConfirmed  = "CONFIRMED"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
	OrderStatusRefunded   = "REFUNDED"
)

// Payment statuses
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusFailed   = "FAILED"
	PaymentStatusRefunded = "REFUNDED"
)

// Fulfillment statuses
const (
	FulfillmentStatusUnfulfilled        = "UNFULFILLED"
	FulfillmentStatusPartiallyFulfilled = "PARTIALLY_FULFILLED"
	FulfillmentStatusFulfilled          = "FULFILLED"
	FulfillmentStatusReturned           = "RETURNED"
)

// Shipping methods
const (
	ShippingMethodStandard = "STANDARD"
	ShippingMethodExpress  = "EXPRESS"
)

// Payment methods
const (
	PaymentMethodCOD          = "COD"
	PaymentMethodCard         = "CARD"
	PaymentMethodGCash        = "GCASH"
	PaymentMethodBankTransfer = "BANK_TRANSFER"
)

// Inventory log kinds
const (
	InventoryLogSale       = "SALE"
	InventoryLogAdjustment = "ADJUSTMENT"
	InventoryLogRestock    = "RESTOCK"
)

var (
	OrderStatuses       = []string{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded}
	PaymentStatuses     = []string{PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded}
	FulfillmentStatuses = []string{FulfillmentStatusUnfulfilled, FulfillmentStatusPartiallyFulfilled, FulfillmentStatusFulfilled, FulfillmentStatusReturned}
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
