// Package storage is the durable client-side key-value store.
//
// It is a thin serialization layer, not a cache: there is no expiry and no
// size bound. Callers own their data hygiene (see internal/history, which
// keeps only the most recent entries itself).
//
// Reads and writes through Get and Set never fail the caller. A read that
// cannot be served returns the fallback; a write that cannot be persisted is
// dropped. Concurrent writers to the same key race and the last write wins.
package storage

import (
	"encoding/json"
	"errors"
	"log/slog"
)

// Well-known keys.
const (
	KeyDeviceID       = "device_id"
	KeyAuthToken      = "auth_token"
	KeyLocalCart      = "local_cart"
	KeyRecentlyViewed = "recently_viewed"
	KeyDeadLetters    = "sync:dead_letters"
)

// WishlistKey namespaces the wishlist copy by device identifier.
func WishlistKey(deviceID string) string {
	return "wishlist:" + deviceID
}

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("storage: closed")

// Store is a raw byte key-value store.
// Load reports ok=false for a missing key; a missing key is not an error.
type Store interface {
	Load(key string) (data []byte, ok bool, err error)
	Save(key string, data []byte) error
	Delete(key string) error
	Close() error
}

// Get decodes the JSON value at key into T.
// Missing keys, backend failures and undecodable values all return fallback.
func Get[T any](s Store, key string, fallback T) T {
	if s == nil {
		return fallback
	}
	data, ok, err := s.Load(key)
	if err != nil {
		slog.Debug("storage read failed", slog.String("key", key), slog.String("error", err.Error()))
		return fallback
	}
	if !ok {
		return fallback
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Debug("storage value undecodable", slog.String("key", key), slog.String("error", err.Error()))
		return fallback
	}
	return v
}

// Set encodes value as JSON and writes it. Failures are swallowed.
func Set[T any](s Store, key string, value T) {
	if s == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		slog.Debug("storage value unencodable", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := s.Save(key, data); err != nil {
		slog.Debug("storage write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Remove deletes key. Failures are swallowed.
func Remove(s Store, key string) {
	if s == nil {
		return
	}
	if err := s.Delete(key); err != nil {
		slog.Debug("storage delete failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Nop is the store used outside an interactive client context.
// Every read misses and every write is discarded.
type Nop struct{}

func (Nop) Load(string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Save(string, []byte) error         { return nil }
func (Nop) Delete(string) error               { return nil }
func (Nop) Close() error                      { return nil }

var _ Store = Nop{}
