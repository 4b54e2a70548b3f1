package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/lib/pq"
)

// AddCartItem inserts a cart row or increments the quantity of the existing (user, variant) row
func (s *Store) AddCartItem(ctx context.Context, userID, variantID int64, quantity int) (*models.CartItem, error) {
	query := `
		INSERT INTO cart_items (user_id, variant_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, variant_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING id, user_id, variant_id, quantity, created_at, updated_at`

	var item models.CartItem
	if err := s.db.GetContext(ctx, &item, query, userID, variantID, quantity); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateCartItemQuantity overwrites the quantity of a cart row owned by the user
func (s *Store) UpdateCartItemQuantity(ctx context.Context, userID, itemID int64, quantity int) (*models.CartItem, error) {
	query := `
		UPDATE cart_items SET quantity = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING id, user_id, variant_id, quantity, created_at, updated_at`

	var item models.CartItem
	err := s.db.GetContext(ctx, &item, query, quantity, itemID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cart item %d", ErrNotFound, itemID)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteCartItem deletes a cart row owned by the user
func (s *Store) DeleteCartItem(ctx context.Context, userID, itemID int64) error {
	n, err := deleteCartItems(ctx, s.db, userID, []int64{itemID})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: cart item %d", ErrNotFound, itemID)
	}
	return nil
}

// ListCartItems returns the user's cart joined with variant, product, brand and first image
func (s *Store) ListCartItems(ctx context.Context, userID int64) ([]models.CartItemWithDetails, error) {
	query := `
		SELECT ci.id, ci.variant_id, ci.quantity,
		       v.sku, v.price, v.compare_at_price, v.inventory, v.size, v.color,
		       p.id AS product_id, p.name AS product_name, p.slug AS product_slug,
		       COALESCE(b.name, '') AS brand_name,
		       COALESCE((
		           SELECT pi.url FROM product_images pi
		           WHERE pi.product_id = p.id
		           ORDER BY pi.position, pi.id
		           LIMIT 1
		       ), '') AS image_url
		FROM cart_items ci
		JOIN product_variants v ON v.id = ci.variant_id
		JOIN products p ON p.id = v.product_id
		LEFT JOIN brands b ON b.id = p.brand_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at, ci.id`

	items := []models.CartItemWithDetails{}
	if err := s.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, err
	}
	return items, nil
}

// lockCartLines reads the cart with live variant prices and locks the cart rows.
// Rows are ordered by variant so concurrent checkouts touch variants in the same order.
func lockCartLines(ctx context.Context, q queryer, userID int64) ([]models.CartLine, error) {
	query := `
		SELECT ci.id AS cart_item_id, ci.variant_id, ci.quantity,
		       v.price, v.sku, v.size, v.color,
		       (v.is_active AND p.is_active) AS is_active,
		       p.name AS product_name
		FROM cart_items ci
		JOIN product_variants v ON v.id = ci.variant_id
		JOIN products p ON p.id = v.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.variant_id
		FOR UPDATE OF ci`

	var lines []models.CartLine
	if err := q.SelectContext(ctx, &lines, query, userID); err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	return lines, nil
}

func deleteCartItems(ctx context.Context, q queryer, userID int64, itemIDs []int64) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	res, err := q.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND id = ANY($2)",
		userID, pq.Array(itemIDs))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
