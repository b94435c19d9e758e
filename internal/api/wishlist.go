package api

import (
	"context"
	"net/http"
	"net/url"

	"storefront/internal/model"
)

type wishlistItemRequest struct {
	ProductID string `json:"productId"`
	Title     string `json:"title,omitempty"`
	Price     string `json:"price,omitempty"`
	Image     string `json:"image,omitempty"`
}

// GetWishlist returns the server copy of the wishlist.
// Unlike FetchCart, rejections are errors: the caller falls back to its
// local copy on any failure. An unusable body is nil, nil.
func (c *Client) GetWishlist(ctx context.Context) (model.Wishlist, error) {
	if _, err := c.identity(); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, http.MethodGet, pathWishlist, nil, "get wishlist")
	if err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	payload, err := unwrap(resp.status, resp.body, "wishlist")
	if err != nil {
		return nil, err
	}
	return normalizeWishlist(payload, c.currencySymbol), nil
}

// AddWishlistItem pushes one item to the server mirror.
func (c *Client) AddWishlistItem(ctx context.Context, item model.WishlistItem) error {
	body := &wishlistItemRequest{
		ProductID: item.ProductID,
		Title:     item.Title,
		Price:     item.Price,
		Image:     item.Image,
	}
	return c.mutateWishlist(ctx, http.MethodPost, pathWishlist, body, "add wishlist item")
}

// RemoveWishlistItem deletes one item from the server mirror.
func (c *Client) RemoveWishlistItem(ctx context.Context, productID string) error {
	return c.mutateWishlist(ctx, http.MethodDelete, pathWishlist+"/"+url.PathEscape(productID), nil, "remove wishlist item")
}

// ClearWishlist deletes every item from the server mirror.
func (c *Client) ClearWishlist(ctx context.Context) error {
	return c.mutateWishlist(ctx, http.MethodDelete, pathWishlist, nil, "clear wishlist")
}

func (c *Client) mutateWishlist(ctx context.Context, method, path string, body any, op string) error {
	if _, err := c.identity(); err != nil {
		return err
	}
	resp, err := c.send(ctx, method, path, body, op)
	if err != nil {
		return err
	}
	if err := resp.err(); err != nil {
		return err
	}
	if resp.status == http.StatusNoContent {
		return nil
	}
	_, err = unwrap(resp.status, resp.body, "wishlist")
	return err
}
