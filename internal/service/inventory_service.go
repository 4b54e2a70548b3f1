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
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// InventoryService owns every change to a variant's stock counter
type InventoryService struct {
	store     InventoryRepository
	cache     StockCache
	publisher Publisher
	logger    *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store InventoryRepository, cache StockCache, publisher Publisher) *InventoryService {
	return &InventoryService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		logger:    util.Named("inventory"),
	}
}

// StockUpdate is the result of an absolute stock set
type StockUpdate struct {
	VariantID int64                `json:"variant_id"`
	Previous  int                  `json:"previous_stock"`
	Current   int                  `json:"new_stock"`
	Log       *models.InventoryLog `json:"log,omitempty"`
}

// SetStock sets a variant's counter to an absolute value by writing the difference
// through the ledger. Setting the current value writes no row.
func (s *InventoryService) SetStock(ctx context.Context, variantID int64, newValue int, reason, reference string) (*StockUpdate, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.SetStock", attribute.Int64("variant_id", variantID))
	defer span.End()

	if newValue < 0 {
		return nil, apperr.Validation(map[string]string{"stock": "must be at least 0"})
	}

	update := &StockUpdate{VariantID: variantID}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		current, err := tx.LockVariantStock(ctx, variantID)
		if err != nil {
			return err
		}
		update.Previous = current
		update.Current = current

		delta := newValue - current
		if delta == 0 {
			return nil
		}

		entry, err := tx.AdjustStock(ctx, models.StockAdjustment{
			VariantID: variantID,
			Delta:     delta,
			Kind:      models.InventoryLogAdjustment,
			Reason:    reason,
			Reference: reference,
		})
		if err != nil {
			return err
		}
		update.Current = entry.NewStock
		update.Log = entry
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "Product variant not found")
	}
	if err != nil {
		s.logger.Error("Failed to set stock", zap.Int64("variant_id", variantID), zap.Error(err))
		return nil, apperr.Internal("update stock", err)
	}

	if update.Log != nil {
		s.recordAdjustments(ctx, []*models.InventoryLog{update.Log})
		s.logger.Info("Stock set",
			zap.Int64("variant_id", variantID),
			zap.Int("previous", update.Previous),
			zap.Int("current", update.Current),
			zap.String("reference", reference))
	}

	return update, nil
}

// recordAdjustments runs after the ledger rows have committed. It refreshes the
// cache and publishes one event per row; failures are logged, never returned.
func (s *InventoryService) recordAdjustments(ctx context.Context, entries []*models.InventoryLog) {
	for _, entry := range entries {
		util.InventoryAdjustmentsTotal.WithLabelValues(entry.Kind).Inc()

		if _, err := s.cache.SetStock(ctx, entry.VariantID, entry.NewStock, entry.ID); err != nil {
			s.logger.Warn("Failed to update stock cache",
				zap.Int64("variant_id", entry.VariantID),
				zap.Error(err))
		}

		event := &models.InventoryAdjustedEvent{
			BaseEvent:     models.NewBaseEvent(models.EventTypeInventoryAdjusted),
			LogID:         entry.ID,
			VariantID:     entry.VariantID,
			Kind:          entry.Kind,
			Delta:         entry.Delta,
			PreviousStock: entry.PreviousStock,
			NewStock:      entry.NewStock,
		}
		if err := s.publisher.PublishInventoryAdjusted(ctx, event); err != nil {
			s.logger.Error("Failed to publish InventoryAdjusted event",
				zap.Int64("log_id", entry.ID),
				zap.Error(err))
		}
	}

	if len(entries) > 0 {
		s.revalidate(ctx, "/products", "/admin/products")
	}
}

// ApplyAdjustment moves the cached counter forward to the state an event describes
func (s *InventoryService) ApplyAdjustment(ctx context.Context, event *models.InventoryAdjustedEvent) error {
	applied, err := s.cache.SetStock(ctx, event.VariantID, event.NewStock, event.LogID)
	if err != nil {
		return fmt.Errorf("failed to apply stock event %s: %w", event.EventID, err)
	}
	if !applied {
		s.logger.Debug("Stale stock event ignored",
			zap.Int64("variant_id", event.VariantID),
			zap.Int64("log_id", event.LogID))
	}
	return nil
}

// GetStock reads the cached counter, falling back to the database
func (s *InventoryService) GetStock(ctx context.Context, variantID int64) (int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetStock", attribute.Int64("variant_id", variantID))
	defer span.End()

	stock, found, err := s.cache.GetStock(ctx, variantID)
	if err != nil {
		s.logger.Warn("Stock cache read failed, falling back to database",
			zap.Int64("variant_id", variantID),
			zap.Error(err))
	}
	if err == nil && found {
		return stock, nil
	}

	util.StockCacheMissesTotal.Inc()
	variant, err := s.store.GetVariantByID(ctx, variantID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, apperr.New(apperr.KindNotFound, "Product variant not found")
	}
	if err != nil {
		s.logger.Error("Failed to read stock", zap.Int64("variant_id", variantID), zap.Error(err))
		return 0, apperr.Internal("read stock", err)
	}
	return variant.Inventory, nil
}

// WarmStockCache loads every variant counter into the cache
func (s *InventoryService) WarmStockCache(ctx context.Context) (int, error) {
	levels, err := s.store.ListStockLevels(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stock levels: %w", err)
	}

	warmed := 0
	for _, level := range levels {
		if _, err := s.cache.SetStock(ctx, level.VariantID, level.Inventory, level.Version); err != nil {
			s.logger.Error("Failed to warm stock cache",
				zap.Int64("variant_id", level.VariantID),
				zap.Error(err))
			continue
		}
		warmed++
	}

	s.logger.Info("Stock cache warmed", zap.Int("variants", warmed), zap.Int("total", len(levels)))
	return warmed, nil
}

// InventoryLogs returns the newest ledger rows for a variant
func (s *InventoryService) InventoryLogs(ctx context.Context, variantID int64, limit int) ([]models.InventoryLog, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	logs, err := s.store.ListInventoryLogs(ctx, variantID, limit)
	if err != nil {
		s.logger.Error("Failed to list inventory logs", zap.Int64("variant_id", variantID), zap.Error(err))
		return nil, apperr.Internal("load inventory logs", err)
	}
	return logs, nil
}

// Reconcile reports variants whose counter disagrees with the new_stock of their
// latest ledger row. Variants without any ledger row are not checked.
func (s *InventoryService) Reconcile(ctx context.Context) ([]models.StockDiscrepancy, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Reconcile")
	defer span.End()

	out, err := s.store.FindStockDiscrepancies(ctx)
	if err != nil {
		s.logger.Error("Failed to reconcile stock", zap.Error(err))
		return nil, apperr.Internal("reconcile stock", err)
	}

	util.StockDiscrepancies.Set(float64(len(out)))
	for _, d := range out {
		s.logger.Warn("Stock counter disagrees with ledger",
			zap.Int64("variant_id", d.VariantID),
			zap.String("sku", d.SKU),
			zap.Int("inventory", d.Inventory),
			zap.Int("ledger_stock", d.LedgerStock),
			zap.Int64("last_log_id", d.LastLogID))
	}
	return out, nil
}

func (s *InventoryService) revalidate(ctx context.Context, paths ...string) {
	if err := s.publisher.Revalidate(ctx, paths...); err != nil {
		s.logger.Warn("Failed to signal revalidation", zap.Strings("paths", paths), zap.Error(err))
	}
}

// saleAdjustment is the ledger entry for one sold order line
func saleAdjustment(orderNumber string, orderID int64, variantID int64, quantity int) models.StockAdjustment {
	return models.StockAdjustment{
		VariantID: variantID,
		Delta:     -quantity,
		Kind:      models.InventoryLogSale,
		Reason:    orderNumber,
		Reference: strconv.FormatInt(orderID, 10),
	}
}

// restockAdjustment returns a cancelled order line to stock
func restockAdjustment(orderNumber string, orderID int64, variantID int64, quantity int) models.StockAdjustment {
	return models.StockAdjustment{
		VariantID: variantID,
		Delta:     quantity,
		Kind:      models.InventoryLogRestock,
		Reason:    "cancelled " + orderNumber,
		Reference: strconv.FormatInt(orderID, 10),
	}
}
