// Package reconcile computes the difference between two views of a cart.
// The cart service uses it to report drift between the optimistic cart it
// showed the shopper and the cart the server actually holds.
package reconcile

import (
	"storefront/internal/model"
)

// LineItemDiff describes how the desired lines differ from the current ones.
// Applying it in order Remove → Update → Add turns current into desired.
type LineItemDiff struct {
	ToAdd    []ItemToAdd    // Products in desired but not current
	ToRemove []ItemToRemove // Products in current but not desired
	ToUpdate []ItemToUpdate // Products in both with different quantities
	Repriced []PriceChange  // Products in both with different unit prices
}

// ItemToAdd is a line present only in the desired cart.
type ItemToAdd struct {
	ProductID string
	Quantity  int
}

// ItemToRemove is a line present only in the current cart.
type ItemToRemove struct {
	ProductID string
	Quantity  int
}

// ItemToUpdate is a quantity change for a line present in both.
type ItemToUpdate struct {
	ProductID   string
	OldQuantity int
	NewQuantity int
}

// PriceChange is a unit price that moved between the two views.
type PriceChange struct {
	ProductID string
	OldPrice  float64
	NewPrice  float64
}

// IsEmpty returns true if no line item changes are needed.
func (d *LineItemDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0 && len(d.Repriced) == 0
}

// DiffLineItems computes the delta between current and desired line items.
// Matching is by ProductID. Results follow the order of the input slices.
func DiffLineItems(current, desired []model.LineItem) *LineItemDiff {
	diff := &LineItemDiff{}

	currentByID := make(map[string]model.LineItem, len(current))
	for _, item := range current {
		currentByID[item.ProductID] = item
	}
	desiredByID := make(map[string]model.LineItem, len(desired))
	for _, item := range desired {
		desiredByID[item.ProductID] = item
	}

	for _, want := range desired {
		have, exists := currentByID[want.ProductID]
		if !exists {
			diff.ToAdd = append(diff.ToAdd, ItemToAdd{ProductID: want.ProductID, Quantity: want.Quantity})
			continue
		}
		if have.Quantity != want.Quantity {
			diff.ToUpdate = append(diff.ToUpdate, ItemToUpdate{
				ProductID:   want.ProductID,
				OldQuantity: have.Quantity,
				NewQuantity: want.Quantity,
			})
		}
		if model.RoundAmount(have.UnitPrice) != model.RoundAmount(want.UnitPrice) {
			diff.Repriced = append(diff.Repriced, PriceChange{
				ProductID: want.ProductID,
				OldPrice:  have.UnitPrice,
				NewPrice:  want.UnitPrice,
			})
		}
	}

	for _, have := range current {
		if _, exists := desiredByID[have.ProductID]; !exists {
			diff.ToRemove = append(diff.ToRemove, ItemToRemove{ProductID: have.ProductID, Quantity: have.Quantity})
		}
	}

	return diff
}

// TotalsDrift lists the money fields that disagree, rounded to cents.
type TotalsDrift struct {
	Subtotal bool
	Discount bool
	Shipping bool
	Total    bool
}

// Any reports whether any total disagrees.
func (d TotalsDrift) Any() bool {
	return d.Subtotal || d.Discount || d.Shipping || d.Total
}

// CartDiff is the full difference between two carts.
type CartDiff struct {
	Lines  *LineItemDiff
	Totals TotalsDrift
}

// IsEmpty returns true when the two carts agree.
func (d *CartDiff) IsEmpty() bool {
	return d.Lines.IsEmpty() && !d.Totals.Any()
}

// DiffCarts compares current (what the client believes) with desired (what
// the server returned). A nil cart is treated as empty.
func DiffCarts(current, desired *model.Cart) *CartDiff {
	if current == nil {
		current = &model.Cart{}
	}
	if desired == nil {
		desired = &model.Cart{}
	}
	return &CartDiff{
		Lines: DiffLineItems(current.Items, desired.Items),
		Totals: TotalsDrift{
			Subtotal: amountChanged(current.Subtotal, desired.Subtotal),
			Discount: amountChanged(current.Discount, desired.Discount),
			Shipping: amountChanged(current.Shipping, desired.Shipping),
			Total:    amountChanged(current.Total, desired.Total),
		},
	}
}

func amountChanged(a, b float64) bool {
	return model.RoundAmount(a) != model.RoundAmount(b)
}
