// Package model defines the canonical cart, wishlist and product shapes shared by
// the sync client, the optimistic cache and the local stores.
package model

// Cart is the canonical client-side cart.
// Total is always Subtotal - Discount + Shipping; see Recalculate.
type Cart struct {
	ID       string     `json:"id"`
	Items    []LineItem `json:"items"`
	Subtotal float64    `json:"subtotal"`
	Discount float64    `json:"discount"`
	Shipping float64    `json:"shipping"`
	Total    float64    `json:"total"`
}

// LineItem is one product row in a cart.
type LineItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Image     string  `json:"image,omitempty"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// LineTotal returns UnitPrice * Quantity.
func (li LineItem) LineTotal() float64 {
	return li.UnitPrice * float64(li.Quantity)
}

// Recalculate recomputes Subtotal from the line items and Total from
// Subtotal, Discount and Shipping. The server applies the same formula, so
// every optimistic mutation must go through here to avoid drift.
func (c *Cart) Recalculate() {
	if c == nil {
		return
	}
	var subtotal float64
	for _, item := range c.Items {
		subtotal += item.LineTotal()
	}
	c.Subtotal = subtotal
	c.Total = subtotal - c.Discount + c.Shipping
}

// Clone returns a deep copy. Nil-safe: cloning a nil cart returns nil.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	if c.Items != nil {
		out.Items = make([]LineItem, len(c.Items))
		copy(out.Items, c.Items)
	}
	return &out
}

// Find returns the index of the line item for productID, or -1.
func (c *Cart) Find(productID string) int {
	if c == nil {
		return -1
	}
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// ItemCount returns the sum of quantities across all line items.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// ProductSummary is the denormalized product data a client knows at the time
// it adds something to a cart or wishlist.
type ProductSummary struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Image string  `json:"image,omitempty"`
	Price float64 `json:"price"`
}
