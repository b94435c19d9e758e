// MCP transport for storefrontd using the official MCP Go SDK.
// Exposes the cart, wishlist and device identity as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront/internal/model"
)

// === MCP Tool Input/Output Types ===

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// AddToCartInput is the input schema for add_to_cart.
type AddToCartInput struct {
	ProductID string  `json:"product_id" jsonschema:"product ID"`
	Quantity  int     `json:"quantity,omitempty" jsonschema:"quantity to add, default 1"`
	Name      string  `json:"name,omitempty" jsonschema:"product name shown until the server answers"`
	Image     string  `json:"image,omitempty" jsonschema:"product image URL"`
	Price     float64 `json:"price,omitempty" jsonschema:"unit price"`
}

// UpdateCartItemInput is the input schema for update_cart_item.
type UpdateCartItemInput struct {
	ProductID string `json:"product_id" jsonschema:"product ID of the line"`
	Quantity  int    `json:"quantity" jsonschema:"new quantity; 0 removes the line"`
}

// ProductInput is the input of tools that act on one product.
type ProductInput struct {
	ProductID string `json:"product_id" jsonschema:"product ID"`
}

// AddToWishlistInput is the input schema for add_to_wishlist.
type AddToWishlistInput struct {
	ProductID string `json:"product_id" jsonschema:"product ID"`
	Title     string `json:"title,omitempty" jsonschema:"product title; looked up when omitted"`
	Price     string `json:"price,omitempty" jsonschema:"display price, e.g. ₹500"`
	Image     string `json:"image,omitempty" jsonschema:"product image URL"`
}

// GetWishlistInput is the input schema for get_wishlist.
type GetWishlistInput struct {
	Local bool `json:"local,omitempty" jsonschema:"return the local copy without contacting the server"`
}

// CartOutput is the result of the cart tools. Found is false when the
// server holds no cart for this device.
type CartOutput struct {
	Cart  model.Cart `json:"cart"`
	Found bool       `json:"found"`
}

// WishlistOutput is the result of the wishlist tools.
type WishlistOutput struct {
	Items model.Wishlist `json:"items"`
}

// DeviceOutput is the result of get_device_id.
type DeviceOutput struct {
	DeviceID string `json:"device_id"`
}

// NewMCPServer creates an MCP server with the storefront tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	version := h.Version
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefrontd",
			Version: version,
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart and wishlist for this device. " +
				"Cart changes are applied optimistically and confirmed by the server; " +
				"wishlist changes are saved locally and synced in the background.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the device cart with line items and totals.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add a product to the cart. Adding a product already in the cart increases its quantity.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_cart_item",
		Description: "Set the quantity of a cart line. A quantity of 0 removes it.",
	}, h.mcpUpdateCartItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_cart",
		Description: "Remove a product from the cart.",
	}, h.mcpRemoveFromCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_wishlist",
		Description: "List wishlist items. Uses the server copy when reachable, otherwise the local copy.",
	}, h.mcpGetWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_wishlist",
		Description: "Add a product to the wishlist. Adding a product twice has no effect.",
	}, h.mcpAddToWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_wishlist",
		Description: "Remove a product from the wishlist.",
	}, h.mcpRemoveFromWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_wishlist",
		Description: "Remove every item from the wishlist.",
	}, h.mcpClearWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_device_id",
		Description: "Get the anonymous device identifier the server keys guest carts on.",
	}, h.mcpGetDeviceID)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, CartOutput, error) {
	c, err := h.Cart.Get(ctx)
	if err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, cartOutput(c), nil
}

func (h *Handler) mcpAddToCart(ctx context.Context, req *mcp.CallToolRequest, input AddToCartInput) (*mcp.CallToolResult, CartOutput, error) {
	if input.ProductID == "" {
		return nil, CartOutput{}, fmt.Errorf("product_id is required")
	}
	if input.Quantity == 0 {
		input.Quantity = 1
	}
	product := h.productSummary(ctx, cartItemRequest{
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		Name:      input.Name,
		Image:     input.Image,
		Price:     input.Price,
	})

	c, err := h.Cart.Add(ctx, product, input.Quantity)
	if err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, cartOutput(c), nil
}

func (h *Handler) mcpUpdateCartItem(ctx context.Context, req *mcp.CallToolRequest, input UpdateCartItemInput) (*mcp.CallToolResult, CartOutput, error) {
	if input.ProductID == "" {
		return nil, CartOutput{}, fmt.Errorf("product_id is required")
	}
	c, err := h.Cart.UpdateQuantity(ctx, input.ProductID, input.Quantity)
	if err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, cartOutput(c), nil
}

func (h *Handler) mcpRemoveFromCart(ctx context.Context, req *mcp.CallToolRequest, input ProductInput) (*mcp.CallToolResult, CartOutput, error) {
	if input.ProductID == "" {
		return nil, CartOutput{}, fmt.Errorf("product_id is required")
	}
	c, err := h.Cart.Remove(ctx, input.ProductID)
	if err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, cartOutput(c), nil
}

func (h *Handler) mcpGetWishlist(ctx context.Context, req *mcp.CallToolRequest, input GetWishlistInput) (*mcp.CallToolResult, WishlistOutput, error) {
	if input.Local {
		return nil, WishlistOutput{Items: nonNil(h.Wishlist.Local())}, nil
	}
	return nil, WishlistOutput{Items: nonNil(h.Wishlist.Items(ctx))}, nil
}

func (h *Handler) mcpAddToWishlist(ctx context.Context, req *mcp.CallToolRequest, input AddToWishlistInput) (*mcp.CallToolResult, WishlistOutput, error) {
	items, err := h.Wishlist.Add(ctx, model.WishlistItem{
		ProductID: input.ProductID,
		Title:     input.Title,
		Price:     input.Price,
		Image:     input.Image,
	})
	if err != nil {
		return nil, WishlistOutput{}, h.mcpError(err)
	}
	return nil, WishlistOutput{Items: nonNil(items)}, nil
}

func (h *Handler) mcpRemoveFromWishlist(ctx context.Context, req *mcp.CallToolRequest, input ProductInput) (*mcp.CallToolResult, WishlistOutput, error) {
	if input.ProductID == "" {
		return nil, WishlistOutput{}, fmt.Errorf("product_id is required")
	}
	return nil, WishlistOutput{Items: nonNil(h.Wishlist.Remove(ctx, input.ProductID))}, nil
}

func (h *Handler) mcpClearWishlist(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, WishlistOutput, error) {
	h.Wishlist.Clear(ctx)
	return nil, WishlistOutput{Items: model.Wishlist{}}, nil
}

func (h *Handler) mcpGetDeviceID(ctx context.Context, req *mcp.CallToolRequest, input EmptyInput) (*mcp.CallToolResult, DeviceOutput, error) {
	return nil, DeviceOutput{DeviceID: h.deviceID()}, nil
}

// cartOutput flattens a possibly missing cart into the tool result.
func cartOutput(c *model.Cart) CartOutput {
	if c == nil {
		return CartOutput{Cart: model.Cart{Items: []model.LineItem{}}}
	}
	out := CartOutput{Cart: *c, Found: true}
	if out.Cart.Items == nil {
		out.Cart.Items = []model.LineItem{}
	}
	return out
}

// mcpError converts service errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	apiErr := toAPIError(err)
	if apiErr.Code == "INTERNAL_ERROR" && !errors.As(err, new(*model.APIError)) {
		// Don't leak internal error details
		h.logger.Error("mcp internal error", "error", err.Error())
	}
	return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
}
