// Package localcart is a cart that lives only in the client store.
// It is never synced to the server.
package localcart

import (
	"fmt"
	"sync"

	"storefront/internal/model"
	"storefront/internal/storage"
)

// Cart reads and writes the local cart under storage.KeyLocalCart.
//
// The mutex serializes read-modify-write cycles within one process. Other
// processes sharing the store are not coordinated; the last write wins.
type Cart struct {
	mu     sync.Mutex
	store  storage.Store
	maxQty int
}

// New creates a local cart over store. maxQty caps a single line; 0 disables
// the cap.
func New(store storage.Store, maxQty int) *Cart {
	return &Cart{store: store, maxQty: maxQty}
}

// Get returns the stored cart, or an empty one.
func (c *Cart) Get() *model.Cart {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// Add puts quantity of product into the cart, incrementing an existing line.
func (c *Cart) Add(product model.ProductSummary, quantity int) (*model.Cart, error) {
	if product.ID == "" {
		return nil, model.NewValidationError("product_id", "required")
	}
	if quantity < 1 {
		return nil, model.NewValidationError("quantity", "must be at least 1")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cart := c.load()
	if i := cart.Find(product.ID); i >= 0 {
		if err := c.checkQuantity(cart.Items[i].Quantity + quantity); err != nil {
			return nil, err
		}
		cart.Items[i].Quantity += quantity
	} else {
		if err := c.checkQuantity(quantity); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, model.LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.Image,
			UnitPrice: product.Price,
			Quantity:  quantity,
		})
	}
	return c.save(cart), nil
}

// UpdateQuantity sets a line's quantity; below 1 removes it.
// Updating a product that is not in the cart is a not-found error.
func (c *Cart) UpdateQuantity(productID string, quantity int) (*model.Cart, error) {
	if quantity < 1 {
		return c.Remove(productID)
	}
	if err := c.checkQuantity(quantity); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cart := c.load()
	i := cart.Find(productID)
	if i < 0 {
		return nil, model.NewNotFoundError("cart item")
	}
	cart.Items[i].Quantity = quantity
	return c.save(cart), nil
}

// Remove deletes a line. Removing a missing product is a no-op.
func (c *Cart) Remove(productID string) (*model.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cart := c.load()
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	return c.save(cart), nil
}

// SetAdjustments sets the discount and shipping amounts, which the local
// cart cannot derive itself.
func (c *Cart) SetAdjustments(discount, shipping float64) *model.Cart {
	c.mu.Lock()
	defer c.mu.Unlock()

	cart := c.load()
	cart.Discount = discount
	cart.Shipping = shipping
	return c.save(cart)
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	storage.Remove(c.store, storage.KeyLocalCart)
}

func (c *Cart) load() *model.Cart {
	cart := storage.Get[*model.Cart](c.store, storage.KeyLocalCart, nil)
	if cart == nil {
		cart = &model.Cart{}
	}
	if cart.Items == nil {
		cart.Items = []model.LineItem{}
	}
	return cart
}

func (c *Cart) save(cart *model.Cart) *model.Cart {
	cart.Recalculate()
	storage.Set(c.store, storage.KeyLocalCart, cart)
	return cart
}

func (c *Cart) checkQuantity(quantity int) error {
	if c.maxQty > 0 && quantity > c.maxQty {
		return model.NewValidationError("quantity", fmt.Sprintf("at most %d per item", c.maxQty))
	}
	return nil
}
