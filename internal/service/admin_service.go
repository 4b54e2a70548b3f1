package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultOrderPageSize = 50
	maxOrderPageSize     = 200
)

// AdminService holds the back-office overrides
type AdminService struct {
	store             AdminRepository
	inventory         *InventoryService
	publisher         Publisher
	lowStockThreshold int
	logger            *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(store AdminRepository, inventory *InventoryService, publisher Publisher, lowStockThreshold int) *AdminService {
	return &AdminService{
		store:             store,
		inventory:         inventory,
		publisher:         publisher,
		lowStockThreshold: lowStockThreshold,
		logger:            util.Named("admin"),
	}
}

// StatusChange is the result of overwriting one of an order's status fields
type StatusChange struct {
	OrderID  int64  `json:"order_id"`
	Field    string `json:"field"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

func requireAdmin(user *models.User) error {
	if user == nil {
		return apperr.Unauthenticated()
	}
	if !user.IsAdmin() {
		return apperr.New(apperr.KindForbidden, "Admin access required")
	}
	return nil
}

// UpdateProductStock sets a variant's stock to an absolute value. The change is
// written through the ledger like any other stock movement.
func (s *AdminService) UpdateProductStock(ctx context.Context, admin *models.User, variantID int64, newValue int) (*StockUpdate, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	return s.inventory.SetStock(ctx, variantID, newValue, "admin stock override", strconv.FormatInt(admin.ID, 10))
}

// UpdateOrderStatus overwrites the order status. Any status may follow any other.
func (s *AdminService) UpdateOrderStatus(ctx context.Context, admin *models.User, orderID int64, status string) (*StatusChange, error) {
	return s.overwrite(ctx, admin, orderID, "status", status, models.OrderStatuses, s.store.UpdateOrderStatus)
}

// UpdatePaymentStatus overwrites the order payment status
func (s *AdminService) UpdatePaymentStatus(ctx context.Context, admin *models.User, orderID int64, status string) (*StatusChange, error) {
	return s.overwrite(ctx, admin, orderID, "payment_status", status, models.PaymentStatuses, s.store.UpdateOrderPaymentStatus)
}

// UpdateFulfillmentStatus overwrites the order fulfillment status
func (s *AdminService) UpdateFulfillmentStatus(ctx context.Context, admin *models.User, orderID int64, status string) (*StatusChange, error) {
	return s.overwrite(ctx, admin, orderID, "fulfillment_status", status, models.FulfillmentStatuses, s.store.UpdateOrderFulfillmentStatus)
}

func (s *AdminService) overwrite(
	ctx context.Context,
	admin *models.User,
	orderID int64,
	field, value string,
	allowed []string,
	update func(context.Context, int64, string) (string, error),
) (*StatusChange, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.UpdateOrder",
		attribute.Int64("order_id", orderID),
		attribute.String("field", field))
	defer span.End()

	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	if err := validateEnum(field, value, allowed); err != nil {
		return nil, err
	}

	previous, err := update(ctx, orderID, value)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "Order not found")
	}
	if err != nil {
		s.logger.Error("Failed to update order", zap.Int64("order_id", orderID), zap.String("field", field), zap.Error(err))
		return nil, apperr.Internal("update order", err)
	}

	s.logger.Info("Order overridden",
		zap.Int64("order_id", orderID),
		zap.String("field", field),
		zap.String("previous", previous),
		zap.String("current", value),
		zap.Int64("admin_id", admin.ID))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   orderID,
		Field:     field,
		Previous:  previous,
		Current:   value,
		ActorID:   admin.ID,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Int64("order_id", orderID), zap.Error(err))
	}
	if err := s.publisher.Revalidate(ctx, "/admin/orders", "/orders", fmt.Sprintf("/orders/%d", orderID)); err != nil {
		s.logger.Warn("Failed to signal revalidation", zap.Error(err))
	}

	return &StatusChange{OrderID: orderID, Field: field, Previous: previous, Current: value}, nil
}

// ListOrders pages through all orders, newest first
func (s *AdminService) ListOrders(ctx context.Context, admin *models.User, filter models.OrderFilter) ([]models.Order, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	if filter.Status != "" {
		if err := validateEnum("status", filter.Status, models.OrderStatuses); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultOrderPageSize
	}
	if filter.Limit > maxOrderPageSize {
		filter.Limit = maxOrderPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Error(err))
		return nil, apperr.Internal("load orders", err)
	}
	return orders, nil
}

// Dashboard returns order counts by status, revenue and low stock variants
func (s *AdminService) Dashboard(ctx context.Context, admin *models.User) (*models.Dashboard, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.Dashboard")
	defer span.End()

	if err := requireAdmin(admin); err != nil {
		return nil, err
	}

	counts, err := s.store.CountOrdersByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to count orders", zap.Error(err))
		return nil, apperr.Internal("load dashboard", err)
	}
	revenue, err := s.store.Revenue(ctx)
	if err != nil {
		s.logger.Error("Failed to sum revenue", zap.Error(err))
		return nil, apperr.Internal("load dashboard", err)
	}
	lowStock, err := s.store.ListLowStockVariants(ctx, s.lowStockThreshold)
	if err != nil {
		s.logger.Error("Failed to list low stock", zap.Error(err))
		return nil, apperr.Internal("load dashboard", err)
	}

	return &models.Dashboard{
		OrdersByStatus: counts,
		Revenue:        revenue,
		LowStock:       lowStock,
	}, nil
}

// InventoryLogs returns a variant's newest ledger rows
func (s *AdminService) InventoryLogs(ctx context.Context, admin *models.User, variantID int64, limit int) ([]models.InventoryLog, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	return s.inventory.InventoryLogs(ctx, variantID, limit)
}

// Reconcile lists variants whose counter disagrees with the ledger
func (s *AdminService) Reconcile(ctx context.Context, admin *models.User) ([]models.StockDiscrepancy, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	return s.inventory.Reconcile(ctx)
}
