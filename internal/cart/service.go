// Package cart is the remote-backed cart with optimistic updates.
//
// Every mutation follows the same contract:
//
//  1. Begin a cache transaction, which stops in-flight reads of the cart
//     from landing on top of the optimistic value.
//  2. The transaction snapshots the current cart.
//  3. Apply the speculative change, recomputing totals with the same formula
//     the server uses.
//  4. On success, commit the server's cart verbatim.
//  5. On failure, roll back to the snapshot and return the error; callers
//     turn it into text with model.UserMessage.
//  6. Either way, revalidate the cart in the background.
//
// Concurrent mutations are not serialized. Each applies its own optimistic
// change and the last server response to settle wins.
package cart

import (
	"context"
	"fmt"
	"log/slog"

	"storefront/internal/adapter"
	"storefront/internal/model"
	"storefront/internal/querycache"
	"storefront/internal/reconcile"
)

// CacheKey is the resource key of the cart in the query cache.
const CacheKey = "cart"

// DefaultMaxItemQuantity is the per-line cap used when none is configured.
const DefaultMaxItemQuantity = 10

// Config configures the service.
type Config struct {
	// MaxItemQuantity caps the quantity of a single line. 0 disables the cap.
	MaxItemQuantity int
}

// Service owns the cached cart for one device.
type Service struct {
	api    adapter.CartAPI
	cache  *querycache.Cache[*model.Cart]
	maxQty int
	logger *slog.Logger
}

// NewService creates a cart service. The cache is shared with whoever else
// reads the cart and is closed by its owner.
func NewService(api adapter.CartAPI, cache *querycache.Cache[*model.Cart], cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:    api,
		cache:  cache,
		maxQty: cfg.MaxItemQuantity,
		logger: logger,
	}
}

// MaxItemQuantity returns the configured per-line cap (0 means none).
func (s *Service) MaxItemQuantity() int { return s.maxQty }

// Get returns the cart, served from the cache when fresh.
// A nil cart with a nil error means the server has no cart for this device.
func (s *Service) Get(ctx context.Context) (*model.Cart, error) {
	return s.cache.Fetch(ctx, CacheKey, s.api.FetchCart)
}

// Refresh discards the cached cart and fetches it again.
func (s *Service) Refresh(ctx context.Context) (*model.Cart, error) {
	s.cache.Invalidate(CacheKey)
	return s.Get(ctx)
}

// Cached returns the cart currently held in memory without fetching.
func (s *Service) Cached() (*model.Cart, bool) {
	return s.cache.Get(CacheKey)
}

// Fresh reports whether Get would be answered from memory.
func (s *Service) Fresh() bool { return s.cache.Fresh(CacheKey) }

// Add puts quantity of product into the cart. An existing line is
// incremented, matching the server's behaviour for repeated adds.
func (s *Service) Add(ctx context.Context, product model.ProductSummary, quantity int) (*model.Cart, error) {
	if product.ID == "" {
		return nil, model.NewValidationError("product_id", "required")
	}
	if quantity < 1 {
		return nil, model.NewValidationError("quantity", "must be at least 1")
	}
	current, _ := s.cache.Get(CacheKey)
	existing := 0
	if i := current.Find(product.ID); i >= 0 {
		existing = current.Items[i].Quantity
	}
	if err := s.checkQuantity(existing + quantity); err != nil {
		return nil, err
	}

	return s.mutate(ctx, "add", func(c *model.Cart) *model.Cart {
		if c == nil {
			c = &model.Cart{}
		}
		if i := c.Find(product.ID); i >= 0 {
			c.Items[i].Quantity += quantity
		} else {
			c.Items = append(c.Items, model.LineItem{
				ProductID: product.ID,
				Name:      product.Name,
				Image:     product.Image,
				UnitPrice: product.Price,
				Quantity:  quantity,
			})
		}
		c.Recalculate()
		return c
	}, func(ctx context.Context) (*model.Cart, error) {
		return s.api.AddToCart(ctx, product.ID, quantity)
	})
}

// UpdateQuantity sets the quantity of an existing line. A quantity below 1
// removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
	if productID == "" {
		return nil, model.NewValidationError("product_id", "required")
	}
	if quantity < 1 {
		return s.Remove(ctx, productID)
	}
	if err := s.checkQuantity(quantity); err != nil {
		return nil, err
	}

	return s.mutate(ctx, "update", func(c *model.Cart) *model.Cart {
		if i := c.Find(productID); i >= 0 {
			c.Items[i].Quantity = quantity
			c.Recalculate()
		}
		return c
	}, func(ctx context.Context) (*model.Cart, error) {
		return s.api.UpdateCartItemQuantity(ctx, productID, quantity)
	})
}

// Remove deletes a line. The server may answer 204, in which case the
// cached cart becomes nil until the revalidation brings it back.
func (s *Service) Remove(ctx context.Context, productID string) (*model.Cart, error) {
	if productID == "" {
		return nil, model.NewValidationError("product_id", "required")
	}

	return s.mutate(ctx, "remove", func(c *model.Cart) *model.Cart {
		if c == nil {
			return nil
		}
		kept := c.Items[:0]
		for _, item := range c.Items {
			if item.ProductID != productID {
				kept = append(kept, item)
			}
		}
		c.Items = kept
		c.Recalculate()
		return c
	}, func(ctx context.Context) (*model.Cart, error) {
		return s.api.RemoveFromCart(ctx, productID)
	})
}

// mutate runs one optimistic mutation.
func (s *Service) mutate(ctx context.Context, op string, speculate func(*model.Cart) *model.Cart, call func(context.Context) (*model.Cart, error)) (*model.Cart, error) {
	txn := s.cache.Begin(CacheKey)
	defer s.revalidate(op)

	optimistic, err := txn.Apply(speculate)
	if err != nil {
		return nil, fmt.Errorf("cart %s: %w", op, err)
	}

	server, err := call(ctx)
	if err != nil {
		superseded := txn.Superseded()
		if rerr := txn.Rollback(); rerr != nil {
			s.logger.Debug("cart rollback skipped", slog.String("op", op), slog.String("error", rerr.Error()))
		}
		s.logger.Warn("cart mutation rolled back",
			slog.String("op", op),
			slog.String("error", err.Error()),
			slog.Bool("superseded", superseded),
		)
		return nil, fmt.Errorf("cart %s: %w", op, err)
	}

	if cerr := txn.Commit(server); cerr != nil {
		s.logger.Debug("cart commit skipped", slog.String("op", op), slog.String("error", cerr.Error()))
	}
	if server != nil {
		s.logDrift(op, "optimistic", optimistic, server)
	}
	return server, nil
}

// revalidate schedules the background refetch that heals any divergence.
func (s *Service) revalidate(op string) {
	s.cache.Revalidate(CacheKey, s.api.FetchCart, func(prev, next *model.Cart, err error) {
		if err != nil {
			s.logger.Debug("cart revalidation failed", slog.String("op", op), slog.String("error", err.Error()))
			return
		}
		if prev != nil && next != nil {
			s.logDrift(op, "revalidated", prev, next)
		}
	})
}

func (s *Service) logDrift(op, stage string, client, server *model.Cart) {
	diff := reconcile.DiffCarts(client, server)
	if diff.IsEmpty() {
		return
	}
	s.logger.Info("cart drift",
		slog.String("op", op),
		slog.String("stage", stage),
		slog.Int("added", len(diff.Lines.ToAdd)),
		slog.Int("removed", len(diff.Lines.ToRemove)),
		slog.Int("requantified", len(diff.Lines.ToUpdate)),
		slog.Int("repriced", len(diff.Lines.Repriced)),
		slog.Bool("totals", diff.Totals.Any()),
		slog.Float64("client_total", client.Total),
		slog.Float64("server_total", server.Total),
	)
}

func (s *Service) checkQuantity(quantity int) error {
	if s.maxQty > 0 && quantity > s.maxQty {
		return model.NewValidationError("quantity", fmt.Sprintf("at most %d per item", s.maxQty))
	}
	return nil
}
