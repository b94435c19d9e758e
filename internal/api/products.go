package api

import (
	"context"
	"net/http"
	"net/url"

	"storefront/internal/model"
)

// GetProduct looks up the summary used for denormalized wishlist copies.
// Products are public; no identity is required.
func (c *Client) GetProduct(ctx context.Context, productID string) (*model.ProductSummary, error) {
	if productID == "" {
		return nil, model.NewValidationError("product_id", "required")
	}

	resp, err := c.send(ctx, http.MethodGet, pathProducts+url.PathEscape(productID), nil, "get product")
	if err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	payload, err := unwrap(resp.status, resp.body, "product")
	if err != nil {
		return nil, err
	}
	return normalizeProduct(payload), nil
}
