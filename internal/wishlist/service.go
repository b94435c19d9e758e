// Package wishlist is the client-truth-first wishlist.
//
// The local copy in the client store is authoritative for the shopper's own
// actions: Add, Remove and Clear change it synchronously and return, and the
// matching server call is pushed through the background sync queue. Reads go
// to the server first and let the server copy win; any failure falls back to
// the local copy. Wishlist operations never surface server errors.
package wishlist

import (
	"context"
	"log/slog"
	"sync"

	"storefront/internal/adapter"
	"storefront/internal/model"
	"storefront/internal/storage"
	"storefront/internal/syncqueue"
)

// Task kinds recorded in the sync queue's dead-letter log.
const (
	TaskAdd    = "wishlist.add"
	TaskRemove = "wishlist.remove"
	TaskClear  = "wishlist.clear"
)

// Config configures the service.
type Config struct {
	// DeviceID keys the local copy. Required.
	DeviceID func() string
	// CurrencySymbol prefixes prices copied from product lookups.
	CurrencySymbol string
}

// Service owns the wishlist for one device.
type Service struct {
	api      adapter.WishlistAPI
	products adapter.ProductAPI
	store    storage.Store
	queue    *syncqueue.Queue
	deviceID func() string
	symbol   string
	logger   *slog.Logger

	mu sync.Mutex // serializes local read-modify-write
}

// NewService creates a wishlist service. products may be nil, which turns
// off add-time product lookups. queue may be nil, in which case pushes run
// inline and their errors are only logged.
func NewService(api adapter.WishlistAPI, products adapter.ProductAPI, store storage.Store, queue *syncqueue.Queue, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	deviceID := cfg.DeviceID
	if deviceID == nil {
		deviceID = func() string { return "" }
	}
	symbol := cfg.CurrencySymbol
	if symbol == "" {
		symbol = "₹"
	}
	return &Service{
		api:      api,
		products: products,
		store:    store,
		queue:    queue,
		deviceID: deviceID,
		symbol:   symbol,
		logger:   logger,
	}
}

// Local returns the local copy without contacting the server.
func (s *Service) Local() model.Wishlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add puts item in the local copy and schedules the server push.
// Adding a product that is already present changes nothing.
//
// An item without a title is stored as given; the push looks the product
// up first and fills in title, price and image locally and remotely.
func (s *Service) Add(ctx context.Context, item model.WishlistItem) (model.Wishlist, error) {
	if item.ProductID == "" {
		return nil, model.NewValidationError("product_id", "required")
	}

	s.mu.Lock()
	list := s.load()
	if list.Contains(item.ProductID) {
		s.mu.Unlock()
		return list, nil
	}
	list = append(list, item)
	s.save(list)
	s.mu.Unlock()

	s.push(ctx, TaskAdd, item.ProductID, func(ctx context.Context) error {
		pushed := item
		if pushed.Title == "" {
			pushed = s.denormalize(ctx, pushed)
		}
		return s.api.AddWishlistItem(ctx, pushed)
	})
	return list, nil
}

// Remove drops productID from the local copy and schedules the server push.
func (s *Service) Remove(ctx context.Context, productID string) model.Wishlist {
	s.mu.Lock()
	list := s.load().Without(productID)
	s.save(list)
	s.mu.Unlock()

	s.push(ctx, TaskRemove, productID, func(ctx context.Context) error {
		return s.api.RemoveWishlistItem(ctx, productID)
	})
	return list
}

// Clear empties the local copy and schedules the server delete.
func (s *Service) Clear(ctx context.Context) {
	s.mu.Lock()
	s.save(model.Wishlist{})
	s.mu.Unlock()

	s.push(ctx, TaskClear, "", s.api.ClearWishlist)
}

// Items returns the server copy, which also replaces the local copy. When
// the server cannot be used for any reason the local copy is returned.
func (s *Service) Items(ctx context.Context) model.Wishlist {
	remote, err := s.api.GetWishlist(ctx)
	if err != nil || remote == nil {
		if err != nil {
			s.logger.Debug("wishlist fetch failed, using local copy", slog.String("error", err.Error()))
		}
		return s.Local()
	}

	remote = remote.Dedupe()
	s.mu.Lock()
	s.save(remote)
	s.mu.Unlock()
	return remote
}

// SyncOnLogin pushes every local item to the server one at a time, then
// reads the wishlist back so the server's merged copy wins. Per-item
// failures are logged and skipped.
func (s *Service) SyncOnLogin(ctx context.Context) model.Wishlist {
	if s.queue != nil {
		// Let queued pushes land before the replay.
		if err := s.queue.Flush(ctx); err != nil {
			s.logger.Debug("sync queue flush interrupted", slog.String("error", err.Error()))
		}
	}

	local := s.Local()
	pushed := 0
	for _, item := range local {
		if ctx.Err() != nil {
			break
		}
		if err := s.api.AddWishlistItem(ctx, item); err != nil {
			s.logger.Warn("wishlist replay failed",
				slog.String("product_id", item.ProductID),
				slog.String("error", err.Error()),
			)
			continue
		}
		pushed++
	}
	s.logger.Info("wishlist replayed", slog.Int("items", len(local)), slog.Int("pushed", pushed))

	return s.Items(ctx)
}

// push hands fn to the sync queue, or runs it inline without one. The
// caller's context only carries values here; cancellation is the queue's.
func (s *Service) push(ctx context.Context, kind, subject string, fn syncqueue.Func) {
	if s.queue == nil {
		if err := fn(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("wishlist sync failed",
				slog.String("kind", kind),
				slog.String("subject", subject),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if _, err := s.queue.Enqueue(kind, subject, fn); err != nil {
		s.logger.Warn("wishlist sync not queued", slog.String("kind", kind), slog.String("error", err.Error()))
	}
}

// denormalize copies product data onto item and into the local copy.
// Lookup failures leave item as it was.
func (s *Service) denormalize(ctx context.Context, item model.WishlistItem) model.WishlistItem {
	if s.products == nil {
		return item
	}
	p, err := s.products.GetProduct(ctx, item.ProductID)
	if err != nil || p == nil {
		if err != nil {
			s.logger.Debug("product lookup failed", slog.String("product_id", item.ProductID), slog.String("error", err.Error()))
		}
		return item
	}

	item.Title = p.Name
	if item.Price == "" && p.Price > 0 {
		item.Price = model.FormatPrice(s.symbol, p.Price)
	}
	if item.Image == "" {
		item.Image = p.Image
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.load()
	for i := range list {
		if list[i].ProductID == item.ProductID {
			list[i] = item
			s.save(list)
			break
		}
	}
	return item
}

func (s *Service) key() string {
	return storage.WishlistKey(s.deviceID())
}

func (s *Service) load() model.Wishlist {
	return storage.Get(s.store, s.key(), model.Wishlist{})
}

func (s *Service) save(list model.Wishlist) {
	storage.Set(s.store, s.key(), list)
}
