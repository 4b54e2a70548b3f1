package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
)

// adjustStock applies a delta only when the result stays non-negative, then appends the
// ledger row. previous_stock is derived from the value the update returned, so the row
// is exact even under concurrent writers.
func adjustStock(ctx context.Context, q queryer, adj models.StockAdjustment) (*models.InventoryLog, error) {
	var newStock int
	err := q.GetContext(ctx, &newStock, `
		UPDATE product_variants
		SET inventory = inventory + $1, updated_at = NOW()
		WHERE id = $2 AND inventory + $1 >= 0
		RETURNING inventory`, adj.Delta, adj.VariantID)
	if errors.Is(err, sql.ErrNoRows) {
		var current int
		err = q.GetContext(ctx, &current, "SELECT inventory FROM product_variants WHERE id = $1", adj.VariantID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: variant %d", ErrNotFound, adj.VariantID)
		}
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: variant %d has %d, requested %d",
			ErrInsufficientStock, adj.VariantID, current, -adj.Delta)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to adjust stock: %w", err)
	}

	entry := &models.InventoryLog{
		VariantID:     adj.VariantID,
		Kind:          adj.Kind,
		Delta:         adj.Delta,
		PreviousStock: newStock - adj.Delta,
		NewStock:      newStock,
		Reason:        adj.Reason,
		Reference:     adj.Reference,
	}

	err = q.GetContext(ctx, entry, `
		INSERT INTO inventory_logs (variant_id, kind, delta, previous_stock, new_stock, reason, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		entry.VariantID, entry.Kind, entry.Delta, entry.PreviousStock, entry.NewStock, entry.Reason, entry.Reference)
	if err != nil {
		return nil, fmt.Errorf("failed to append inventory log: %w", err)
	}

	return entry, nil
}

// hasLedgerEntries reports whether any ledger row of the kind points at reference
func hasLedgerEntries(ctx context.Context, q queryer, kind, reference string) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM inventory_logs WHERE reference = $1 AND kind = $2)", reference, kind)
	if err != nil {
		return false, fmt.Errorf("failed to check inventory logs: %w", err)
	}
	return exists, nil
}

func lockVariantStock(ctx context.Context, q queryer, variantID int64) (int, error) {
	var inventory int
	err := q.GetContext(ctx, &inventory,
		"SELECT inventory FROM product_variants WHERE id = $1 FOR UPDATE", variantID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: variant %d", ErrNotFound, variantID)
	}
	return inventory, err
}

// ListInventoryLogs returns the newest ledger rows for a variant
func (s *Store) ListInventoryLogs(ctx context.Context, variantID int64, limit int) ([]models.InventoryLog, error) {
	logs := []models.InventoryLog{}
	err := s.db.SelectContext(ctx, &logs, `
		SELECT id, variant_id, kind, delta, previous_stock, new_stock, reason, reference, created_at
		FROM inventory_logs
		WHERE variant_id = $1
		ORDER BY id DESC
		LIMIT $2`, variantID, limit)
	return logs, err
}

// ListStockLevels returns every variant counter with the id of its latest ledger row
func (s *Store) ListStockLevels(ctx context.Context) ([]models.StockLevel, error) {
	levels := []models.StockLevel{}
	err := s.db.SelectContext(ctx, &levels, `
		SELECT v.id AS variant_id, v.inventory, COALESCE(MAX(l.id), 0) AS version
		FROM product_variants v
		LEFT JOIN inventory_logs l ON l.variant_id = v.id
		GROUP BY v.id
		ORDER BY v.id`)
	return levels, err
}

// FindStockDiscrepancies lists variants whose counter differs from their latest ledger row
func (s *Store) FindStockDiscrepancies(ctx context.Context) ([]models.StockDiscrepancy, error) {
	out := []models.StockDiscrepancy{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT v.id AS variant_id, v.sku, v.inventory, l.new_stock AS ledger_stock, l.id AS last_log_id
		FROM product_variants v
		JOIN LATERAL (
			SELECT id, new_stock FROM inventory_logs
			WHERE variant_id = v.id
			ORDER BY id DESC
			LIMIT 1
		) l ON TRUE
		WHERE v.inventory <> l.new_stock
		ORDER BY v.id`)
	return out, err
}

// ListLowStockVariants returns active variants at or below the threshold
func (s *Store) ListLowStockVariants(ctx context.Context, threshold int) ([]models.LowStockVariant, error) {
	out := []models.LowStockVariant{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT v.id AS variant_id, v.sku, p.name AS product_name, v.inventory
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.is_active AND v.inventory <= $1
		ORDER BY v.inventory, v.id
		LIMIT 50`, threshold)
	return out, err
}
