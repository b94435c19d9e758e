package model

// WishlistItem is a denormalized copy of a product taken when it was added.
// Title and Price may drift from live product data.
type WishlistItem struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Price     string `json:"price"` // display string, e.g. "₹500"
	Image     string `json:"image,omitempty"`
}

// Wishlist is an ordered list of items with at most one entry per product.
type Wishlist []WishlistItem

// Contains reports whether productID is already present.
func (w Wishlist) Contains(productID string) bool {
	for _, item := range w {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// Without returns a copy of w with productID removed.
func (w Wishlist) Without(productID string) Wishlist {
	out := make(Wishlist, 0, len(w))
	for _, item := range w {
		if item.ProductID != productID {
			out = append(out, item)
		}
	}
	return out
}

// Dedupe drops later duplicates, keeping the first entry per product.
func (w Wishlist) Dedupe() Wishlist {
	seen := make(map[string]bool, len(w))
	out := make(Wishlist, 0, len(w))
	for _, item := range w {
		if item.ProductID == "" || seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		out = append(out, item)
	}
	return out
}
