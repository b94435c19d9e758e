package handler

import (
	"log/slog"
	"net/http"

	"storefront/internal/model"
	"storefront/internal/session"
	"storefront/internal/syncqueue"
)

type wishlistResponse struct {
	Items model.Wishlist `json:"items"`
}

func nonNil(w model.Wishlist) model.Wishlist {
	if w == nil {
		return model.Wishlist{}
	}
	return w
}

// handleGetWishlist returns the wishlist, server copy first.
// GET /wishlist[?local=true]
func (h *Handler) handleGetWishlist(w http.ResponseWriter, r *http.Request) {
	var items model.Wishlist
	if r.URL.Query().Get("local") == "true" {
		items = h.Wishlist.Local()
	} else {
		items = h.Wishlist.Items(r.Context())
	}
	h.writeJSON(w, http.StatusOK, wishlistResponse{Items: nonNil(items)})
}

// handleAddToWishlist adds an item. The server push happens in the
// background; its failure never reaches this response.
// POST /wishlist
func (h *Handler) handleAddToWishlist(w http.ResponseWriter, r *http.Request) {
	var item model.WishlistItem
	if err := decodeJSON(r, &item); err != nil {
		h.writeError(w, err)
		return
	}
	items, err := h.Wishlist.Add(r.Context(), item)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, wishlistResponse{Items: nonNil(items)})
}

// DELETE /wishlist/{id}
func (h *Handler) handleRemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	items := h.Wishlist.Remove(r.Context(), r.PathValue("id"))
	h.writeJSON(w, http.StatusOK, wishlistResponse{Items: nonNil(items)})
}

// DELETE /wishlist
func (h *Handler) handleClearWishlist(w http.ResponseWriter, r *http.Request) {
	h.Wishlist.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleSyncWishlist pushes the local wishlist and reads back the merge.
// POST /wishlist/sync
func (h *Handler) handleSyncWishlist(w http.ResponseWriter, r *http.Request) {
	items := h.Wishlist.SyncOnLogin(r.Context())
	h.writeJSON(w, http.StatusOK, wishlistResponse{Items: nonNil(items)})
}

// === Session ===

type loginRequest struct {
	Token string `json:"token"`
	// Sync replays the local wishlist after signing in. Defaults to true.
	Sync *bool `json:"sync,omitempty"`
}

type loginResponse struct {
	Session  session.Status `json:"session"`
	Wishlist model.Wishlist `json:"wishlist,omitempty"`
}

// GET /session
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Session.Status())
}

// handleLogin stores the credential and, unless told not to, merges the
// local wishlist into the account.
// POST /session
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	st, err := h.Session.Login(req.Token)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := loginResponse{Session: st}
	if req.Sync == nil || *req.Sync {
		resp.Wishlist = nonNil(h.Wishlist.SyncOnLogin(ctx))
		h.logger.InfoContext(ctx, "wishlist merged after login", slog.Int("items", len(resp.Wishlist)))
	}
	if h.Cart != nil {
		// The server may now key the cart on the account.
		if _, err := h.Cart.Refresh(ctx); err != nil {
			h.logger.DebugContext(ctx, "cart refresh after login failed", slog.String("error", err.Error()))
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// DELETE /session
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.Session.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// === Products and history ===

// handleGetProduct looks a product up and records the view.
// GET /products/{id}
func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	if h.Products == nil {
		h.notConfigured(w, "products")
		return
	}
	p, err := h.Products.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if p == nil {
		h.writeError(w, model.NewNotFoundError("product"))
		return
	}
	if h.History != nil {
		h.History.Record(*p)
	}
	h.writeJSON(w, http.StatusOK, p)
}

// GET /history
func (h *Handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		h.notConfigured(w, "history")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": h.History.List()})
}

// DELETE /history
func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		h.notConfigured(w, "history")
		return
	}
	h.History.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// === Sync queue ===

type deadLettersResponse struct {
	Items []syncqueue.DeadLetter `json:"items"`
}

// GET /sync/dead-letters
func (h *Handler) handleGetDeadLetters(w http.ResponseWriter, r *http.Request) {
	if h.Queue == nil {
		h.notConfigured(w, "sync queue")
		return
	}
	h.writeJSON(w, http.StatusOK, deadLettersResponse{Items: h.Queue.DeadLetters()})
}

// DELETE /sync/dead-letters
func (h *Handler) handleClearDeadLetters(w http.ResponseWriter, r *http.Request) {
	if h.Queue == nil {
		h.notConfigured(w, "sync queue")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"cleared": h.Queue.ClearDeadLetters()})
}
