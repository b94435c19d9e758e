// Package history keeps the shopper's recently viewed products.
package history

import (
	"sync"
	"time"

	"storefront/internal/model"
	"storefront/internal/storage"
)

// MaxEntries bounds the list. The store itself has no size limit.
const MaxEntries = 10

// Entry is one viewed product.
type Entry struct {
	Product  model.ProductSummary `json:"product"`
	ViewedAt time.Time            `json:"viewed_at"`
}

// Recent is the recently viewed list under storage.KeyRecentlyViewed,
// most recent first.
type Recent struct {
	mu    sync.Mutex
	store storage.Store
	now   func() time.Time
}

// New creates a list over store.
func New(store storage.Store) *Recent {
	return &Recent{store: store, now: time.Now}
}

// Record moves product to the front, dropping an older view of the same
// product and anything past MaxEntries.
func (r *Recent) Record(product model.ProductSummary) []Entry {
	if product.ID == "" {
		return r.List()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []Entry{{Product: product, ViewedAt: r.now().UTC()}}
	for _, e := range storage.Get(r.store, storage.KeyRecentlyViewed, []Entry{}) {
		if e.Product.ID == product.ID {
			continue
		}
		entries = append(entries, e)
		if len(entries) == MaxEntries {
			break
		}
	}
	storage.Set(r.store, storage.KeyRecentlyViewed, entries)
	return entries
}

// List returns the stored entries.
func (r *Recent) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return storage.Get(r.store, storage.KeyRecentlyViewed, []Entry{})
}

// Clear forgets every entry.
func (r *Recent) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	storage.Remove(r.store, storage.KeyRecentlyViewed)
}
