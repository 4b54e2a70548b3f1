package service

import (
	"context"
	"errors"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const cartPath = "/cart"

// CartService handles a user's cart
type CartService struct {
	store     CartRepository
	publisher Publisher
	logger    *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store CartRepository, publisher Publisher) *CartService {
	return &CartService{
		store:     store,
		publisher: publisher,
		logger:    util.Named("cart"),
	}
}

// AddToCartInput is the add-to-cart request body
type AddToCartInput struct {
	VariantID int64 `json:"variant_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1"`
}

// AddToCart adds quantity to the user's row for the variant, creating it if needed.
// Stock is not checked here; checkout is the only place stock is enforced.
func (s *CartService) AddToCart(ctx context.Context, user *models.User, input AddToCartInput) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart", attribute.Int64("variant_id", input.VariantID))
	defer span.End()

	if user == nil {
		return nil, apperr.Unauthenticated()
	}
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	ok, err := s.store.IsVariantPurchasable(ctx, input.VariantID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !ok) {
		return nil, apperr.New(apperr.KindNotFound, "Product variant not found")
	}
	if err != nil {
		s.logger.Error("Failed to look up variant", zap.Int64("variant_id", input.VariantID), zap.Error(err))
		return nil, apperr.Internal("add item to cart", err)
	}

	item, err := s.store.AddCartItem(ctx, user.ID, input.VariantID, input.Quantity)
	if err != nil {
		s.logger.Error("Failed to add cart item",
			zap.Int64("user_id", user.ID),
			zap.Int64("variant_id", input.VariantID),
			zap.Error(err))
		return nil, apperr.Internal("add item to cart", err)
	}

	util.CartOperationsTotal.WithLabelValues("add").Inc()
	s.revalidate(ctx)
	return item, nil
}

// UpdateCartQuantity overwrites a row's quantity. Zero or negative removes the row
// and returns a nil item.
func (s *CartService) UpdateCartQuantity(ctx context.Context, user *models.User, itemID int64, quantity int) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateCartQuantity", attribute.Int64("cart_item_id", itemID))
	defer span.End()

	if user == nil {
		return nil, apperr.Unauthenticated()
	}
	if quantity <= 0 {
		return nil, s.RemoveFromCart(ctx, user, itemID)
	}

	item, err := s.store.UpdateCartItemQuantity(ctx, user.ID, itemID, quantity)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "Cart item not found")
	}
	if err != nil {
		s.logger.Error("Failed to update cart item", zap.Int64("cart_item_id", itemID), zap.Error(err))
		return nil, apperr.Internal("update cart", err)
	}

	util.CartOperationsTotal.WithLabelValues("update").Inc()
	s.revalidate(ctx)
	return item, nil
}

// RemoveFromCart deletes a row owned by the user. Another user's row is reported as missing.
func (s *CartService) RemoveFromCart(ctx context.Context, user *models.User, itemID int64) error {
	if user == nil {
		return apperr.Unauthenticated()
	}

	err := s.store.DeleteCartItem(ctx, user.ID, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.KindNotFound, "Cart item not found")
	}
	if err != nil {
		s.logger.Error("Failed to remove cart item", zap.Int64("cart_item_id", itemID), zap.Error(err))
		return apperr.Internal("remove item from cart", err)
	}

	util.CartOperationsTotal.WithLabelValues("remove").Inc()
	s.revalidate(ctx)
	return nil
}

// GetCartItems returns the cart with display details. An anonymous caller has an empty cart.
func (s *CartService) GetCartItems(ctx context.Context, user *models.User) ([]models.CartItemWithDetails, error) {
	if user == nil {
		return []models.CartItemWithDetails{}, nil
	}

	items, err := s.store.ListCartItems(ctx, user.ID)
	if err != nil {
		s.logger.Error("Failed to load cart", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil, apperr.Internal("load cart", err)
	}
	return items, nil
}

// CartSummary returns the line count, unit count and live subtotal
func (s *CartService) CartSummary(ctx context.Context, user *models.User) (*models.CartSummary, error) {
	items, err := s.GetCartItems(ctx, user)
	if err != nil {
		return nil, err
	}

	summary := &models.CartSummary{Subtotal: decimal.Zero}
	for _, item := range items {
		summary.ItemCount++
		summary.Quantity += item.Quantity
		summary.Subtotal = summary.Subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return summary, nil
}

func (s *CartService) revalidate(ctx context.Context) {
	if err := s.publisher.Revalidate(ctx, cartPath); err != nil {
		s.logger.Warn("Failed to signal revalidation", zap.String("path", cartPath), zap.Error(err))
	}
}
