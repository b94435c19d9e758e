package adapter

import (
	"context"

	"storefront/internal/model"
)

// Mock implements Remote for testing.
// Each method can be configured via function fields.
type Mock struct {
	FetchCartFunc          func(ctx context.Context) (*model.Cart, error)
	AddToCartFunc          func(ctx context.Context, productID string, quantity int) (*model.Cart, error)
	UpdateCartItemFunc     func(ctx context.Context, productID string, quantity int) (*model.Cart, error)
	RemoveFromCartFunc     func(ctx context.Context, productID string) (*model.Cart, error)
	GetWishlistFunc        func(ctx context.Context) (model.Wishlist, error)
	AddWishlistItemFunc    func(ctx context.Context, item model.WishlistItem) error
	RemoveWishlistItemFunc func(ctx context.Context, productID string) error
	ClearWishlistFunc      func(ctx context.Context) error
	GetProductFunc         func(ctx context.Context, productID string) (*model.ProductSummary, error)
}

// FetchCart calls the configured FetchCartFunc or returns no cart.
func (m *Mock) FetchCart(ctx context.Context) (*model.Cart, error) {
	if m.FetchCartFunc != nil {
		return m.FetchCartFunc(ctx)
	}
	return nil, nil
}

// AddToCart calls the configured AddToCartFunc or returns an error.
func (m *Mock) AddToCart(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
	if m.AddToCartFunc != nil {
		return m.AddToCartFunc(ctx, productID, quantity)
	}
	return nil, model.NewInternalError(nil)
}

// UpdateCartItemQuantity calls the configured UpdateCartItemFunc or returns an error.
func (m *Mock) UpdateCartItemQuantity(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
	if m.UpdateCartItemFunc != nil {
		return m.UpdateCartItemFunc(ctx, productID, quantity)
	}
	return nil, model.NewNotFoundError("cart item")
}

// RemoveFromCart calls the configured RemoveFromCartFunc or returns an error.
func (m *Mock) RemoveFromCart(ctx context.Context, productID string) (*model.Cart, error) {
	if m.RemoveFromCartFunc != nil {
		return m.RemoveFromCartFunc(ctx, productID)
	}
	return nil, model.NewNotFoundError("cart item")
}

// GetWishlist calls the configured GetWishlistFunc or returns an error.
func (m *Mock) GetWishlist(ctx context.Context) (model.Wishlist, error) {
	if m.GetWishlistFunc != nil {
		return m.GetWishlistFunc(ctx)
	}
	return nil, model.NewInternalError(nil)
}

// AddWishlistItem calls the configured AddWishlistItemFunc or succeeds.
func (m *Mock) AddWishlistItem(ctx context.Context, item model.WishlistItem) error {
	if m.AddWishlistItemFunc != nil {
		return m.AddWishlistItemFunc(ctx, item)
	}
	return nil
}

// RemoveWishlistItem calls the configured RemoveWishlistItemFunc or succeeds.
func (m *Mock) RemoveWishlistItem(ctx context.Context, productID string) error {
	if m.RemoveWishlistItemFunc != nil {
		return m.RemoveWishlistItemFunc(ctx, productID)
	}
	return nil
}

// ClearWishlist calls the configured ClearWishlistFunc or succeeds.
func (m *Mock) ClearWishlist(ctx context.Context) error {
	if m.ClearWishlistFunc != nil {
		return m.ClearWishlistFunc(ctx)
	}
	return nil
}

// GetProduct calls the configured GetProductFunc or returns an error.
func (m *Mock) GetProduct(ctx context.Context, productID string) (*model.ProductSummary, error) {
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, productID)
	}
	return nil, model.NewNotFoundError("product")
}

// Verify Mock implements Remote interface at compile time.
var _ Remote = (*Mock)(nil)
