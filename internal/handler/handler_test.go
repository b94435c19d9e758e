package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"storefront/internal/adapter"
	"storefront/internal/api"
	"storefront/internal/cart"
	"storefront/internal/history"
	"storefront/internal/localcart"
	"storefront/internal/model"
	"storefront/internal/querycache"
	"storefront/internal/session"
	"storefront/internal/storage"
	"storefront/internal/syncqueue"
	"storefront/internal/wishlist"
)

type stubDevice string

func (d stubDevice) ID() string { return string(d) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testDeps wires real services over mock and an in-memory store. The
// wishlist has no queue, so its pushes run inline.
func testDeps(t *testing.T, mock *adapter.Mock) Deps {
	t.Helper()
	logger := testLogger()
	store := storage.NewMemory()
	cache := querycache.New[*model.Cart](querycache.Options{})
	t.Cleanup(cache.Close)

	return Deps{
		Device:    stubDevice("dev-1"),
		Cart:      cart.NewService(mock, cache, cart.Config{MaxItemQuantity: cart.DefaultMaxItemQuantity}, logger),
		LocalCart: localcart.New(store, cart.DefaultMaxItemQuantity),
		Wishlist:  wishlist.NewService(mock, mock, store, nil, wishlist.Config{DeviceID: func() string { return "dev-1" }}, logger),
		Session:   session.New(store, nil, logger),
		History:   history.New(store),
		Products:  mock,
		Version:   "test",
	}
}

func testHandler(t *testing.T, mock *adapter.Mock) (*Handler, *http.ServeMux) {
	t.Helper()
	h := New(testDeps(t, mock), testLogger())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux
}

func serve(mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func serverCart(items ...model.LineItem) *model.Cart {
	c := &model.Cart{ID: "c1", Items: items}
	c.Recalculate()
	return c
}

var mugLine = model.LineItem{ProductID: "p1", Name: "Mug", UnitPrice: 500, Quantity: 1}

func TestHandleHealth(t *testing.T) {
	_, mux := testHandler(t, &adapter.Mock{})

	w := serve(mux, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[healthResponse](t, w)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
}

func TestHandleDevice(t *testing.T) {
	_, mux := testHandler(t, &adapter.Mock{})

	w := serve(mux, "GET", "/device", nil)
	if got := decode[deviceResponse](t, w).DeviceID; got != "dev-1" {
		t.Errorf("device_id = %q, want dev-1", got)
	}
}

func TestGetCartCacheStatus(t *testing.T) {
	var fetches atomic.Int32
	mock := &adapter.Mock{
		FetchCartFunc: func(ctx context.Context) (*model.Cart, error) {
			fetches.Add(1)
			return serverCart(mugLine), nil
		},
	}
	_, mux := testHandler(t, mock)

	tests := []struct {
		name        string
		path        string
		wantStatus  string
		wantFetches int32
	}{
		{"first read misses", "/cart", "storefrontd;fwd=miss", 1},
		{"second read hits", "/cart", "storefrontd;hit", 1},
		{"refresh forwards", "/cart?refresh=true", "storefrontd;fwd=request", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(mux, "GET", tt.path, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
			}
			if got := w.Header().Get("Cache-Status"); got != tt.wantStatus {
				t.Errorf("Cache-Status = %q, want %q", got, tt.wantStatus)
			}
			if got := fetches.Load(); got != tt.wantFetches {
				t.Errorf("fetches = %d, want %d", got, tt.wantFetches)
			}
			resp := decode[cartResponse](t, w)
			if resp.Cart == nil || resp.Cart.Total != 500 {
				t.Errorf("cart = %+v", resp.Cart)
			}
		})
	}
}

func TestGetCartNoCart(t *testing.T) {
	_, mux := testHandler(t, &adapter.Mock{})

	w := serve(mux, "GET", "/cart", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if resp := decode[cartResponse](t, w); resp.Cart != nil {
		t.Errorf("cart = %+v, want null", resp.Cart)
	}
}

func TestAddToCart(t *testing.T) {
	var gotID string
	var gotQty int
	mock := &adapter.Mock{
		AddToCartFunc: func(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
			gotID, gotQty = productID, quantity
			line := mugLine
			line.Quantity = quantity
			return serverCart(line), nil
		},
	}
	h, mux := testHandler(t, mock)

	w := serve(mux, "POST", "/cart/items", cartItemRequest{ProductID: "p1", Name: "Mug", Price: 500})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}
	if gotID != "p1" || gotQty != 1 {
		t.Errorf("AddToCart(%q, %d), want (p1, 1)", gotID, gotQty)
	}
	resp := decode[cartResponse](t, w)
	if resp.Cart == nil || resp.Cart.Total != 500 {
		t.Errorf("cart = %+v", resp.Cart)
	}
	if c, ok := h.Cart.Cached(); !ok || c.ID != "c1" {
		t.Errorf("cached cart = %+v, want the server cart", c)
	}
}

func TestCartErrors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      string
		wantMessage   string
		wantRetryable bool
	}{
		{
			name:        "network",
			err:         model.NewNetworkError("cart.add", errors.New("dial tcp: refused")),
			wantStatus:  http.StatusServiceUnavailable,
			wantCode:    "NETWORK_UNAVAILABLE",
			wantMessage: "Check your internet connection and try again.",
		},
		{
			name:        "rejected",
			err:         model.NewRejectedError(http.StatusConflict, "Out of stock"),
			wantStatus:  http.StatusConflict,
			wantCode:    "REJECTED",
			wantMessage: "Out of stock",
		},
		{
			name:          "upstream",
			err:           model.NewUpstreamError("cart", errors.New("bad gateway")),
			wantStatus:    http.StatusBadGateway,
			wantCode:      "UPSTREAM_ERROR",
			wantMessage:   "cart request failed",
			wantRetryable: true,
		},
		{
			name:       "no identity",
			err:        fmt.Errorf("cart.add: %w", api.ErrNoIdentity),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "LOGIN_REQUIRED",
		},
		{
			name:          "unexpected",
			err:           errors.New("boom"),
			wantStatus:    http.StatusInternalServerError,
			wantCode:      "INTERNAL_ERROR",
			wantMessage:   "an internal error occurred",
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &adapter.Mock{
				AddToCartFunc: func(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
					return nil, tt.err
				},
			}
			h, mux := testHandler(t, mock)

			w := serve(mux, "POST", "/cart/items", cartItemRequest{ProductID: "p1", Name: "Mug", Price: 500})
			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decode[errorResponse](t, w)
			if resp.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
			if tt.wantMessage != "" && resp.Error.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", resp.Error.Message, tt.wantMessage)
			}
			if resp.Error.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", resp.Error.Retryable, tt.wantRetryable)
			}
			// The optimistic line must not survive the failure.
			if c, _ := h.Cart.Cached(); c.Find("p1") >= 0 {
				t.Errorf("cached cart after failure = %+v", c)
			}
		})
	}
}

func TestAddToCartOverCap(t *testing.T) {
	var calls atomic.Int32
	mock := &adapter.Mock{
		AddToCartFunc: func(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
			calls.Add(1)
			return serverCart(), nil
		},
	}
	_, mux := testHandler(t, mock)

	w := serve(mux, "POST", "/cart/items", cartItemRequest{ProductID: "p1", Quantity: 11, Name: "Mug"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if calls.Load() != 0 {
		t.Error("request sent for a quantity over the cap")
	}
}

func TestUpdateAndRemoveCartItem(t *testing.T) {
	mock := &adapter.Mock{
		FetchCartFunc: func(ctx context.Context) (*model.Cart, error) {
			return serverCart(mugLine), nil
		},
		UpdateCartItemFunc: func(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
			line := mugLine
			line.Quantity = quantity
			return serverCart(line), nil
		},
		RemoveFromCartFunc: func(ctx context.Context, productID string) (*model.Cart, error) {
			return serverCart(), nil
		},
	}
	_, mux := testHandler(t, mock)
	serve(mux, "GET", "/cart", nil)

	w := serve(mux, "PUT", "/cart/items/p1", quantityRequest{Quantity: 3})
	if w.Code != http.StatusOK {
		t.Fatalf("PUT Status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decode[cartResponse](t, w).Cart.Total; got != 1500 {
		t.Errorf("total after update = %v, want 1500", got)
	}

	w = serve(mux, "DELETE", "/cart/items/p1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE Status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decode[cartResponse](t, w).Cart; len(got.Items) != 0 || got.Total != 0 {
		t.Errorf("cart after remove = %+v", got)
	}
}

func TestLocalCart(t *testing.T) {
	mock := &adapter.Mock{
		GetProductFunc: func(ctx context.Context, productID string) (*model.ProductSummary, error) {
			return &model.ProductSummary{ID: productID, Name: "Mug", Price: 500}, nil
		},
	}
	_, mux := testHandler(t, mock)

	// No name in the request: the product is looked up.
	w := serve(mux, "POST", "/local-cart/items", cartItemRequest{ProductID: "p1", Quantity: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}
	want := []model.LineItem{{ProductID: "p1", Name: "Mug", UnitPrice: 500, Quantity: 2}}
	if diff := cmp.Diff(want, decode[cartResponse](t, w).Cart.Items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	w = serve(mux, "PUT", "/local-cart/adjustments", adjustmentsRequest{Discount: 100, Shipping: 50})
	if got := decode[cartResponse](t, w).Cart.Total; got != 950 {
		t.Errorf("total = %v, want 950", got)
	}

	w = serve(mux, "PUT", "/local-cart/adjustments", adjustmentsRequest{Discount: -1})
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative adjustment Status = %d, want 400", w.Code)
	}

	w = serve(mux, "PUT", "/local-cart/items/p1", quantityRequest{Quantity: 0})
	if got := decode[cartResponse](t, w).Cart.Items; len(got) != 0 {
		t.Errorf("items after quantity 0 = %+v", got)
	}

	w = serve(mux, "PUT", "/local-cart/items/nope", quantityRequest{Quantity: 1})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown line Status = %d, want 404", w.Code)
	}

	w = serve(mux, "DELETE", "/local-cart", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("clear Status = %d, want 204", w.Code)
	}
}

func TestWishlist(t *testing.T) {
	var pushed []string
	mock := &adapter.Mock{
		AddWishlistItemFunc: func(ctx context.Context, item model.WishlistItem) error {
			pushed = append(pushed, item.ProductID)
			return model.NewNetworkError("wishlist.add", errors.New("offline"))
		},
		GetWishlistFunc: func(ctx context.Context) (model.Wishlist, error) {
			return nil, model.NewNetworkError("wishlist.get", errors.New("offline"))
		},
	}
	_, mux := testHandler(t, mock)

	item := model.WishlistItem{ProductID: "p1", Title: "Mug", Price: "₹500"}
	for range 2 {
		w := serve(mux, "POST", "/wishlist", item)
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
		}
	}

	// The server is unreachable, so the local copy is served.
	w := serve(mux, "GET", "/wishlist", nil)
	got := decode[wishlistResponse](t, w).Items
	if diff := cmp.Diff(model.Wishlist{item}, got); diff != "" {
		t.Errorf("wishlist mismatch (-want +got):\n%s", diff)
	}
	// The repeated add was a no-op and pushed nothing.
	if diff := cmp.Diff([]string{"p1"}, pushed); diff != "" {
		t.Errorf("pushes mismatch (-want +got):\n%s", diff)
	}

	w = serve(mux, "DELETE", "/wishlist/p1", nil)
	if got := decode[wishlistResponse](t, w).Items; len(got) != 0 {
		t.Errorf("wishlist after remove = %+v", got)
	}

	w = serve(mux, "GET", "/wishlist?local=true", nil)
	if body := w.Body.String(); body != "{\"items\":[]}\n" {
		t.Errorf("empty wishlist body = %q", body)
	}
}

func TestSession(t *testing.T) {
	var refreshed atomic.Int32
	mock := &adapter.Mock{
		FetchCartFunc: func(ctx context.Context) (*model.Cart, error) {
			refreshed.Add(1)
			return nil, nil
		},
		GetWishlistFunc: func(ctx context.Context) (model.Wishlist, error) {
			return model.Wishlist{{ProductID: "p9", Title: "Lamp"}}, nil
		},
	}
	h, mux := testHandler(t, mock)

	w := serve(mux, "POST", "/session", loginRequest{Token: "Bearer opaque-token"})
	if w.Code != http.StatusOK {
		t.Fatalf("login Status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[loginResponse](t, w)
	if !resp.Session.LoggedIn {
		t.Error("session not logged in")
	}
	if len(resp.Wishlist) != 1 || resp.Wishlist[0].ProductID != "p9" {
		t.Errorf("merged wishlist = %+v", resp.Wishlist)
	}
	if h.Session.Token() != "opaque-token" {
		t.Errorf("token = %q", h.Session.Token())
	}
	if refreshed.Load() != 1 {
		t.Errorf("cart fetched %d times after login, want 1", refreshed.Load())
	}

	w = serve(mux, "GET", "/session", nil)
	if !decode[session.Status](t, w).LoggedIn {
		t.Error("GET /session not logged in")
	}

	w = serve(mux, "DELETE", "/session", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("logout Status = %d", w.Code)
	}
	if h.Session.Token() != "" {
		t.Error("token kept after logout")
	}

	w = serve(mux, "POST", "/session", loginRequest{Token: "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty token Status = %d, want 400", w.Code)
	}
}

func TestProductsAndHistory(t *testing.T) {
	mock := &adapter.Mock{
		GetProductFunc: func(ctx context.Context, productID string) (*model.ProductSummary, error) {
			if productID != "p1" {
				return nil, model.NewNotFoundError("product")
			}
			return &model.ProductSummary{ID: "p1", Name: "Mug", Price: 500}, nil
		},
	}
	_, mux := testHandler(t, mock)

	w := serve(mux, "GET", "/products/p1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if got := decode[model.ProductSummary](t, w); got.Name != "Mug" {
		t.Errorf("product = %+v", got)
	}

	w = serve(mux, "GET", "/products/p2", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown product Status = %d, want 404", w.Code)
	}

	w = serve(mux, "GET", "/history", nil)
	entries := decode[struct {
		Items []history.Entry `json:"items"`
	}](t, w).Items
	if len(entries) != 1 || entries[0].Product.ID != "p1" {
		t.Errorf("history = %+v", entries)
	}

	w = serve(mux, "DELETE", "/history", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("clear history Status = %d", w.Code)
	}
}

func TestDeadLetters(t *testing.T) {
	deps := testDeps(t, &adapter.Mock{})
	mux := http.NewServeMux()
	New(deps, testLogger()).RegisterRoutes(mux)

	if w := serve(mux, "GET", "/sync/dead-letters", nil); w.Code != http.StatusNotFound {
		t.Errorf("without queue Status = %d, want 404", w.Code)
	}

	q := syncqueue.New(storage.NewMemory(), syncqueue.Config{
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
	}, testLogger())
	t.Cleanup(func() { q.Close(context.Background()) })
	q.Enqueue("wishlist.add", "p1", func(ctx context.Context) error {
		return model.NewUpstreamError("wishlist", errors.New("bad gateway"))
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	deps.Queue = q
	mux = http.NewServeMux()
	New(deps, testLogger()).RegisterRoutes(mux)

	w := serve(mux, "GET", "/sync/dead-letters", nil)
	items := decode[deadLettersResponse](t, w).Items
	if len(items) != 1 || items[0].Kind != "wishlist.add" || items[0].Subject != "p1" {
		t.Errorf("dead letters = %+v", items)
	}

	w = serve(mux, "DELETE", "/sync/dead-letters", nil)
	if got := decode[map[string]int](t, w)["cleared"]; got != 1 {
		t.Errorf("cleared = %d, want 1", got)
	}
}

func TestInvalidJSON(t *testing.T) {
	_, mux := testHandler(t, &adapter.Mock{})

	for _, path := range []string{"/cart/items", "/local-cart/items", "/wishlist", "/session"} {
		w := serve(mux, "POST", path, "{not json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("POST %s Status = %d, want 400", path, w.Code)
		}
		if code := decode[errorResponse](t, w).Error.Code; code != "VALIDATION_ERROR" {
			t.Errorf("POST %s code = %q", path, code)
		}
	}
}
