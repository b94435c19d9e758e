// Package handler provides the local HTTP API of storefrontd.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/adapter"
	"storefront/internal/api"
	"storefront/internal/cart"
	"storefront/internal/history"
	"storefront/internal/localcart"
	"storefront/internal/model"
	"storefront/internal/session"
	"storefront/internal/syncqueue"
	"storefront/internal/wishlist"
)

// DeviceSource supplies the device identifier (device.Provider).
type DeviceSource interface {
	ID() string
}

// Deps are the services behind the handlers. Products, History and Queue
// may be nil; their routes then answer 404.
type Deps struct {
	Device    DeviceSource
	Cart      *cart.Service
	LocalCart *localcart.Cart
	Wishlist  *wishlist.Service
	Session   *session.Manager
	History   *history.Recent
	Products  adapter.ProductAPI
	Queue     *syncqueue.Queue
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Deps
	logger *slog.Logger
}

// New creates a Handler.
func New(deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Deps: deps, logger: logger}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /device", h.handleDevice)

	// Remote cart, optimistic
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/items", h.handleAddToCart)
	mux.HandleFunc("PUT /cart/items/{id}", h.handleUpdateCartItem)
	mux.HandleFunc("DELETE /cart/items/{id}", h.handleRemoveFromCart)

	// Local-only cart
	mux.HandleFunc("GET /local-cart", h.handleGetLocalCart)
	mux.HandleFunc("POST /local-cart/items", h.handleAddToLocalCart)
	mux.HandleFunc("PUT /local-cart/items/{id}", h.handleUpdateLocalCartItem)
	mux.HandleFunc("DELETE /local-cart/items/{id}", h.handleRemoveFromLocalCart)
	mux.HandleFunc("PUT /local-cart/adjustments", h.handleSetLocalAdjustments)
	mux.HandleFunc("DELETE /local-cart", h.handleClearLocalCart)

	// Wishlist
	mux.HandleFunc("GET /wishlist", h.handleGetWishlist)
	mux.HandleFunc("POST /wishlist", h.handleAddToWishlist)
	mux.HandleFunc("DELETE /wishlist/{id}", h.handleRemoveFromWishlist)
	mux.HandleFunc("DELETE /wishlist", h.handleClearWishlist)
	mux.HandleFunc("POST /wishlist/sync", h.handleSyncWishlist)

	// Session
	mux.HandleFunc("GET /session", h.handleGetSession)
	mux.HandleFunc("POST /session", h.handleLogin)
	mux.HandleFunc("DELETE /session", h.handleLogout)

	// Products and recently viewed
	mux.HandleFunc("GET /products/{id}", h.handleGetProduct)
	mux.HandleFunc("GET /history", h.handleGetHistory)
	mux.HandleFunc("DELETE /history", h.handleClearHistory)

	// Background sync failures
	mux.HandleFunc("GET /sync/dead-letters", h.handleGetDeadLetters)
	mux.HandleFunc("DELETE /sync/dead-letters", h.handleClearDeadLetters)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response. Connectivity failures become 503 with
// a message telling the shopper to check the connection; rejections keep the
// server's status and message.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError && apiErr.Code == "INTERNAL_ERROR" {
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:      apiErr.Code,
			Message:   apiErr.Message,
			Retryable: retryable(apiErr),
		},
	})
}

// toAPIError maps any error to the APIError the handlers report.
func toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	switch {
	case errors.Is(err, model.ErrNetwork):
		return &model.APIError{
			Code:       "NETWORK_UNAVAILABLE",
			Message:    model.UserMessage(err),
			StatusCode: http.StatusServiceUnavailable,
		}
	case errors.Is(err, api.ErrNoIdentity):
		return &model.APIError{
			Code:       "LOGIN_REQUIRED",
			Message:    "sign in or enable the device identifier",
			StatusCode: http.StatusUnauthorized,
		}
	case errors.As(err, &apiErr):
		return apiErr
	default:
		return &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
	}
}

// retryable reports whether the caller may repeat the request as is.
// Connectivity failures are excluded: the shopper has to fix those first.
func retryable(apiErr *model.APIError) bool {
	if apiErr.Code == "NETWORK_UNAVAILABLE" {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// notConfigured answers routes whose service was not wired.
func (h *Handler) notConfigured(w http.ResponseWriter, what string) {
	h.writeError(w, model.NewNotFoundError(what))
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: h.Version})
}

type deviceResponse struct {
	DeviceID string `json:"device_id"`
}

// handleDevice returns the device identifier.
// GET /device
func (h *Handler) handleDevice(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, deviceResponse{DeviceID: h.deviceID()})
}

func (h *Handler) deviceID() string {
	if h.Device == nil {
		return ""
	}
	return h.Device.ID()
}
