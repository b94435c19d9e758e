// Package events is the process-wide publish/subscribe registry for client
// session events. main creates one Registry at startup and closes it at
// shutdown.
package events

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Kind identifies an event.
type Kind string

const (
	// LoginRequired is published when the server rejects the credential.
	LoginRequired Kind = "login_required"
	// LoggedIn is published after a credential is stored.
	LoggedIn Kind = "logged_in"
	// LoggedOut is published after the credential is cleared.
	LoggedOut Kind = "logged_out"
	// SyncFailed is published when a background sync task is dead-lettered.
	SyncFailed Kind = "sync_failed"
)

// Event is one notification.
type Event struct {
	Kind   Kind      `json:"kind"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Listener receives events. Listeners run synchronously on the publishing
// goroutine and must not block.
type Listener func(Event)

// Registry fans events out to subscribers.
type Registry struct {
	mu     sync.RWMutex
	subs   map[uint64]Listener
	next   uint64
	closed bool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{subs: make(map[uint64]Listener), logger: logger}
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (r *Registry) Subscribe(fn Listener) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || fn == nil {
		return func() {}
	}
	id := r.next
	r.next++
	r.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}

// Publish delivers e to every subscriber in subscription order. A zero
// timestamp is filled in. A panicking listener is logged and skipped.
func (r *Registry) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	ids := make([]uint64, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]Listener, len(ids))
	for i, id := range ids {
		listeners[i] = r.subs[id]
	}
	r.mu.RUnlock()

	for _, fn := range listeners {
		r.deliver(fn, e)
	}
}

func (r *Registry) deliver(fn Listener, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event listener panicked", slog.String("kind", string(e.Kind)), slog.Any("panic", rec))
		}
	}()
	fn(e)
}

// Len returns the number of subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Close drops every subscriber. Later publishes and subscribes are no-ops.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	clear(r.subs)
}
