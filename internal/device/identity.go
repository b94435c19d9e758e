// Package device derives the anonymous device identifier used to key guest
// carts and wishlists on the server.
//
// The identifier is a pseudo-identity, not a credential: a 53-bit
// non-cryptographic hash of stable environment signals. The same signals on
// the same machine always produce the same identifier.
package device

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"storefront/internal/storage"
)

// ServerID is returned when there is no client environment to fingerprint.
const ServerID = "server"

// signalSeparator joins signals before hashing.
const signalSeparator = "|"

// Environment supplies the ordered fingerprint signals.
type Environment interface {
	Signals() ([]string, error)
}

// Provider computes and persists the device identifier.
type Provider struct {
	env    Environment
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewProvider creates a Provider. A nil env means a server context, in which
// case ID always returns ServerID. A nil store disables persistence.
func NewProvider(env Environment, store storage.Store, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		env:    env,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// ID returns the device identifier. It never fails and never returns "".
//
// The value is recomputed on every call. The stored copy is overwritten when
// it differs, but the computed value is what gets returned.
func (p *Provider) ID() (id string) {
	if p == nil || p.env == nil {
		return ServerID
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("device fingerprint panicked, using time-based id", slog.Any("panic", r))
			id = p.fallbackID()
		}
	}()

	signals, err := p.env.Signals()
	if err != nil {
		p.logger.Warn("device fingerprint failed, using time-based id", slog.String("error", err.Error()))
		return p.fallbackID()
	}

	id = "dev-" + strconv.FormatUint(Hash(strings.Join(signals, signalSeparator), 0), 16)

	if stored := storage.Get(p.store, storage.KeyDeviceID, ""); stored != id {
		if stored != "" {
			p.logger.Debug("device id changed", slog.String("stored", stored), slog.String("computed", id))
		}
		storage.Set(p.store, storage.KeyDeviceID, id)
	}
	return id
}

func (p *Provider) fallbackID() string {
	return fmt.Sprintf("dev-%x", p.now().UnixNano())
}

// Hash is the cyrb53 53-bit mixing hash over the UTF-16 code units of s.
// The result always fits in 53 bits.
func Hash(s string, seed uint32) uint64 {
	h1 := uint32(0xdeadbeef) ^ seed
	h2 := uint32(0x41c6ce57) ^ seed

	for _, unit := range utf16.Encode([]rune(s)) {
		ch := uint32(unit)
		h1 = (h1 ^ ch) * 2654435761
		h2 = (h2 ^ ch) * 1597334677
	}

	h1 = (h1 ^ (h1 >> 16)) * 2246822507
	h1 ^= (h2 ^ (h2 >> 13)) * 3266489909
	h2 = (h2 ^ (h2 >> 16)) * 2246822507
	h2 ^= (h1 ^ (h1 >> 13)) * 3266489909

	return 4294967296*uint64(2097151&h2) + uint64(h1)
}
