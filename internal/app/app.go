// Package app wires the storefront services from configuration. Both
// storefrontd and the storefront CLI build one App per process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storefront/internal/api"
	"storefront/internal/cart"
	"storefront/internal/config"
	"storefront/internal/device"
	"storefront/internal/events"
	"storefront/internal/handler"
	"storefront/internal/history"
	"storefront/internal/localcart"
	"storefront/internal/model"
	"storefront/internal/querycache"
	"storefront/internal/session"
	"storefront/internal/storage"
	"storefront/internal/syncqueue"
	"storefront/internal/transport"
	"storefront/internal/wishlist"
)

// App holds the process-wide services.
type App struct {
	Config    *config.Config
	Store     storage.Store
	Events    *events.Registry
	Device    *device.Provider
	Session   *session.Manager
	API       *api.Client
	Queue     *syncqueue.Queue
	CartCache *querycache.Cache[*model.Cart]
	Cart      *cart.Service
	LocalCart *localcart.Cart
	Wishlist  *wishlist.Service
	History   *history.Recent

	version     string
	logger      *slog.Logger
	unsubscribe func()
}

// New opens the store and builds every service on top of it. The caller
// must Close the App.
func New(cfg *config.Config, version string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.Open(cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &App{
		Config:  cfg,
		Store:   store,
		Events:  events.NewRegistry(logger),
		version: version,
		logger:  logger,
	}
	a.unsubscribe = a.Events.Subscribe(a.logEvent)

	host := device.NewHost(version)
	a.Device = device.NewProvider(host, store, logger)
	a.Session = session.New(store, a.Events, logger)

	rt, err := transport.New(cfg.API.Transport, cfg.API.Timeout)
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("creating transport: %w", err)
	}
	a.API, err = api.New(api.Config{
		BaseURL:          cfg.API.BaseURL,
		APIKey:           cfg.API.APIKey,
		UserAgent:        host.UserAgent(),
		Timeout:          cfg.API.Timeout,
		Transport:        rt,
		MinServerVersion: cfg.API.MinServerVersion,
		CurrencySymbol:   cfg.API.CurrencySymbol,
		DeviceID:         a.Device.ID,
		Token:            a.Session.Token,
		OnUnauthorized:   a.Session.Unauthorized,
	}, logger)
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("creating API client: %w", err)
	}

	a.Queue = syncqueue.New(store, syncqueue.Config{
		MaxAttempts:     cfg.Sync.MaxAttempts,
		InitialInterval: cfg.Sync.InitialInterval,
		OnDeadLetter: func(dl syncqueue.DeadLetter) {
			a.Events.Publish(events.Event{Kind: events.SyncFailed, Reason: dl.Kind})
		},
	}, logger)

	a.CartCache = querycache.New[*model.Cart](querycache.Options{})
	a.Cart = cart.NewService(a.API, a.CartCache, cart.Config{MaxItemQuantity: cfg.Cart.MaxItemQuantity}, logger)
	a.LocalCart = localcart.New(store, cfg.Cart.MaxItemQuantity)
	a.Wishlist = wishlist.NewService(a.API, a.API, store, a.Queue, wishlist.Config{
		DeviceID:       a.Device.ID,
		CurrencySymbol: cfg.API.CurrencySymbol,
	}, logger)
	a.History = history.New(store)

	return a, nil
}

// HandlerDeps exposes the services to the HTTP and MCP handlers.
func (a *App) HandlerDeps() handler.Deps {
	return handler.Deps{
		Device:    a.Device,
		Cart:      a.Cart,
		LocalCart: a.LocalCart,
		Wishlist:  a.Wishlist,
		Session:   a.Session,
		History:   a.History,
		Products:  a.API,
		Queue:     a.Queue,
		Version:   a.version,
	}
}

// Close drains the sync queue within ctx and releases everything else.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Queue.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing sync queue: %w", err))
	}
	a.CartCache.Close()
	a.unsubscribe()
	a.Events.Close()
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) closeStore() {
	a.unsubscribe()
	a.Events.Close()
	if err := a.Store.Close(); err != nil {
		a.logger.Warn("closing store", slog.String("error", err.Error()))
	}
}

func (a *App) logEvent(e events.Event) {
	switch e.Kind {
	case events.LoginRequired:
		a.logger.Warn("login required", slog.String("reason", e.Reason))
	case events.SyncFailed:
		a.logger.Warn("background sync gave up", slog.String("kind", e.Reason))
	default:
		a.logger.Debug("session event", slog.String("kind", string(e.Kind)))
	}
}
