package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dunglas/httpsfv"

	"storefront/internal/model"
)

// cacheName identifies this cache in Cache-Status (RFC 9211).
const cacheName = "storefrontd"

// cartItemRequest is the body of POST /cart/items and POST /local-cart/items.
// Name, image and price fill the optimistic line; when name is missing the
// product is looked up first.
type cartItemRequest struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Name      string  `json:"name,omitempty"`
	Image     string  `json:"image,omitempty"`
	Price     float64 `json:"price,omitempty"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// cartResponse wraps a cart so a missing cart serializes as null rather
// than as a 204.
type cartResponse struct {
	Cart *model.Cart `json:"cart"`
}

// handleGetCart returns the device cart.
// GET /cart[?refresh=true]
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	refresh := r.URL.Query().Get("refresh") == "true"

	// Decide the Cache-Status outcome before the read changes it.
	fwd := ""
	switch {
	case refresh:
		fwd = "request"
	case h.Cart.Fresh():
	default:
		fwd = "miss"
		if _, ok := h.Cart.Cached(); ok {
			fwd = "stale"
		}
	}

	var (
		c   *model.Cart
		err error
	)
	if refresh {
		c, err = h.Cart.Refresh(ctx)
	} else {
		c, err = h.Cart.Get(ctx)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	setCacheStatus(w, fwd)
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// handleAddToCart adds a product to the cart.
// POST /cart/items
func (h *Handler) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	product := h.productSummary(ctx, req)
	h.logger.InfoContext(ctx, "adding to cart",
		slog.String("product_id", req.ProductID),
		slog.Int("quantity", req.Quantity),
	)

	c, err := h.Cart.Add(ctx, product, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// handleUpdateCartItem sets a line's quantity.
// PUT /cart/items/{id}
func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	c, err := h.Cart.UpdateQuantity(ctx, r.PathValue("id"), req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// handleRemoveFromCart deletes a line.
// DELETE /cart/items/{id}
func (h *Handler) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.Cart.Remove(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// === Local cart ===

// GET /local-cart
func (h *Handler) handleGetLocalCart(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: h.LocalCart.Get()})
}

// POST /local-cart/items
func (h *Handler) handleAddToLocalCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	c, err := h.LocalCart.Add(h.productSummary(r.Context(), req), req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// PUT /local-cart/items/{id}
func (h *Handler) handleUpdateLocalCartItem(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.LocalCart.UpdateQuantity(r.PathValue("id"), req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

// DELETE /local-cart/items/{id}
func (h *Handler) handleRemoveFromLocalCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.LocalCart.Remove(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: c})
}

type adjustmentsRequest struct {
	Discount float64 `json:"discount"`
	Shipping float64 `json:"shipping"`
}

// PUT /local-cart/adjustments
func (h *Handler) handleSetLocalAdjustments(w http.ResponseWriter, r *http.Request) {
	var req adjustmentsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Discount < 0 || req.Shipping < 0 {
		h.writeError(w, model.NewValidationError("adjustments", "must not be negative"))
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: h.LocalCart.SetAdjustments(req.Discount, req.Shipping)})
}

// DELETE /local-cart
func (h *Handler) handleClearLocalCart(w http.ResponseWriter, r *http.Request) {
	h.LocalCart.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// productSummary builds the optimistic line data for req, looking the
// product up when the caller sent no name. Lookup failures are not fatal:
// the line shows the id until the server cart arrives.
func (h *Handler) productSummary(ctx context.Context, req cartItemRequest) model.ProductSummary {
	p := model.ProductSummary{ID: req.ProductID, Name: req.Name, Image: req.Image, Price: req.Price}
	if p.Name != "" || p.ID == "" || h.Products == nil {
		return p
	}
	found, err := h.Products.GetProduct(ctx, p.ID)
	if err != nil || found == nil {
		if err != nil {
			h.logger.DebugContext(ctx, "product lookup failed", slog.String("product_id", p.ID), slog.String("error", err.Error()))
		}
		return p
	}
	if p.Price == 0 {
		p.Price = found.Price
	}
	if p.Image == "" {
		p.Image = found.Image
	}
	p.Name = found.Name
	return p
}

// setCacheStatus writes the RFC 9211 Cache-Status header for a cart read.
// An empty fwd reason means the cart was served from memory.
func setCacheStatus(w http.ResponseWriter, fwd string) {
	item := httpsfv.NewItem(httpsfv.Token(cacheName))
	if fwd == "" {
		item.Params.Add("hit", true)
	} else {
		item.Params.Add("fwd", httpsfv.Token(fwd))
	}
	if v, err := httpsfv.Marshal(httpsfv.List{item}); err == nil {
		w.Header().Set("Cache-Status", v)
	}
}
