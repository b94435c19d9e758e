// Package adapter defines the remote storefront API surface the client
// services depend on. internal/api provides the HTTP implementation; Mock
// stands in for it in tests.
package adapter

import (
	"context"

	"storefront/internal/model"
)

// CartAPI is the server side of the device-scoped cart.
//
// Every method returns a nil cart with a nil error when the server answered
// successfully but without a usable cart (HTTP 204 or an unexpected body).
// Connectivity failures satisfy errors.Is(err, model.ErrNetwork).
type CartAPI interface {
	// FetchCart returns the current cart. Rejected responses also yield
	// nil, nil; only connectivity failures are errors.
	FetchCart(ctx context.Context) (*model.Cart, error)

	// AddToCart adds quantity of productID. Repeated calls increment the
	// server-side quantity.
	AddToCart(ctx context.Context, productID string, quantity int) (*model.Cart, error)

	// UpdateCartItemQuantity sets the quantity of an existing line.
	UpdateCartItemQuantity(ctx context.Context, productID string, quantity int) (*model.Cart, error)

	// RemoveFromCart deletes a line.
	RemoveFromCart(ctx context.Context, productID string) (*model.Cart, error)
}

// WishlistAPI is the server mirror of the wishlist.
type WishlistAPI interface {
	// GetWishlist returns the server copy. A nil list with a nil error means
	// the body was unusable; callers treat that like a failure.
	GetWishlist(ctx context.Context) (model.Wishlist, error)
	AddWishlistItem(ctx context.Context, item model.WishlistItem) error
	RemoveWishlistItem(ctx context.Context, productID string) error
	ClearWishlist(ctx context.Context) error
}

// ProductAPI looks up product data for denormalized copies.
type ProductAPI interface {
	GetProduct(ctx context.Context, productID string) (*model.ProductSummary, error)
}

// Remote is the full server API.
type Remote interface {
	CartAPI
	WishlistAPI
	ProductAPI
}
