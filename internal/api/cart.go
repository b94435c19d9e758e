package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"storefront/internal/model"
)

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// FetchCart returns the cart for this device.
// Any non-2xx answer or unusable body yields nil, nil; only connectivity
// failures (model.ErrNetwork) and a missing identity are errors.
func (c *Client) FetchCart(ctx context.Context) (*model.Cart, error) {
	deviceID, err := c.identity()
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, http.MethodGet, pathCartByDevice+url.PathEscape(deviceID), nil, "fetch cart")
	if err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		c.logger.Debug("cart fetch rejected", slog.Int("status", resp.status), slog.String("error", err.Error()))
		return nil, nil
	}

	payload, err := unwrap(resp.status, resp.body, "cart")
	if err != nil {
		c.logger.Debug("cart fetch rejected", slog.String("error", err.Error()))
		return nil, nil
	}
	return normalizeCart(payload), nil
}

// AddToCart adds quantity of productID to the device cart.
func (c *Client) AddToCart(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
	if _, err := c.identity(); err != nil {
		return nil, err
	}
	body := &addItemRequest{ProductID: productID, Quantity: quantity}
	return c.mutateCart(ctx, http.MethodPost, pathCartItems, body, "add to cart")
}

// UpdateCartItemQuantity sets the quantity of an existing line.
func (c *Client) UpdateCartItemQuantity(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
	if _, err := c.identity(); err != nil {
		return nil, err
	}
	body := &updateItemRequest{Quantity: quantity}
	return c.mutateCart(ctx, http.MethodPut, pathCartItems+"/"+url.PathEscape(productID), body, "update cart item")
}

// RemoveFromCart deletes a line. HTTP 204 is success with no cart.
func (c *Client) RemoveFromCart(ctx context.Context, productID string) (*model.Cart, error) {
	if _, err := c.identity(); err != nil {
		return nil, err
	}
	return c.mutateCart(ctx, http.MethodDelete, pathCartItems+"/"+url.PathEscape(productID), nil, "remove from cart")
}

// mutateCart runs a cart mutation. Rejections are errors so the caller can
// roll back; an empty or unusable 2xx body is nil, nil.
func (c *Client) mutateCart(ctx context.Context, method, path string, body any, op string) (*model.Cart, error) {
	resp, err := c.send(ctx, method, path, body, op)
	if err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	if resp.status == http.StatusNoContent {
		return nil, nil
	}

	payload, err := unwrap(resp.status, resp.body, "cart")
	if err != nil {
		return nil, err
	}
	return normalizeCart(payload), nil
}

// IsNoIdentity reports whether err means the client had nothing to key the
// request on.
func IsNoIdentity(err error) bool {
	return errors.Is(err, ErrNoIdentity)
}
