// Package querycache is the in-memory cache of server resources that cart
// mutations update optimistically.
//
// Values live in an arena keyed by resource name ("cart"). Reads go through
// Fetch, which serves fresh values from memory and deduplicates concurrent
// fetches. Mutations go through Begin, which returns a Txn that is either
// committed with the server's value or rolled back to the snapshot taken at
// Begin.
//
// A read that started before a mutation began is never applied: Begin bumps
// the entry's generation and results carrying an older generation are
// dropped. The HTTP request itself is not cancelled.
package querycache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultStaleAfter is how long a fetched value is served without refetching.
const DefaultStaleAfter = 30 * time.Second

// Cloner is implemented by cached values. Clone must return a deep copy and
// must accept the zero value (e.g. a nil pointer).
type Cloner[T any] interface {
	Clone() T
}

// Fetcher loads a resource from the server.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Options configures a Cache.
type Options struct {
	StaleAfter time.Duration
}

type entry[T Cloner[T]] struct {
	value     T
	has       bool
	fetchedAt time.Time
	// gen is bumped by every mutation; reads started under an older
	// generation are discarded.
	gen uint64
	// owner is the transaction whose snapshot is currently held.
	owner *Txn[T]
}

// Cache holds one value per resource key.
type Cache[T Cloner[T]] struct {
	mu         sync.Mutex
	entries    map[string]*entry[T]
	group      singleflight.Group
	staleAfter time.Duration
	now        func() time.Time

	// Background revalidations run under ctx and are tracked by wg.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New creates an empty cache.
func New[T Cloner[T]](opts Options) *Cache[T] {
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache[T]{
		entries:    make(map[string]*entry[T]),
		staleAfter: staleAfter,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// entryLocked returns the entry for key, creating it. Caller holds c.mu.
func (c *Cache[T]) entryLocked(key string) *entry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{}
		c.entries[key] = e
	}
	return e
}

// Get returns a copy of the cached value without fetching.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.has {
		var zero T
		return zero, false
	}
	return e.value.Clone(), true
}

// Set replaces the cached value and marks it fresh.
func (c *Cache[T]) Set(key string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key)
	e.value = v.Clone()
	e.has = true
	e.fetchedAt = c.now()
}

// Invalidate marks the value stale so the next Fetch goes to the server.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.fetchedAt = time.Time{}
	}
}

// Fresh reports whether Fetch would answer key from memory right now,
// either because the value is fresh or because a mutation holds it.
func (c *Cache[T]) Fresh(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	return e.owner != nil || (e.has && c.now().Sub(e.fetchedAt) < c.staleAfter)
}

// Fetch returns the value for key, loading it with fetch when the cached
// copy is missing or stale.
//
// While a mutation is in flight the optimistic value is returned as is.
// On a fetch error the cached value (possibly the zero value) is returned
// together with the error.
func (c *Cache[T]) Fetch(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if e.owner != nil || (e.has && c.now().Sub(e.fetchedAt) < c.staleAfter) {
		v := e.value.Clone()
		c.mu.Unlock()
		return v, nil
	}
	gen := e.gen
	c.mu.Unlock()

	v, err := c.load(ctx, key, gen, fetch)
	if err != nil {
		current, _ := c.Get(key)
		return current, err
	}

	if c.apply(key, gen, v) {
		return v.Clone(), nil
	}
	// A mutation began while the read was in flight; its value wins.
	current, _ := c.Get(key)
	return current, nil
}

// load runs fetch, sharing the call with concurrent loads of the same key
// and generation.
func (c *Cache[T]) load(ctx context.Context, key string, gen uint64, fetch Fetcher[T]) (T, error) {
	res, err, _ := c.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// apply stores v if no mutation began since gen was read.
func (c *Cache[T]) apply(key string, gen uint64, v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key)
	if e.gen != gen || e.owner != nil {
		return false
	}
	e.value = v.Clone()
	e.has = true
	e.fetchedAt = c.now()
	return true
}

// Revalidate refetches key in the background. If then is non-nil it is
// called with the value before and after the refetch, and the fetch error.
// The refetched value is dropped if a mutation began in the meantime.
func (c *Cache[T]) Revalidate(key string, fetch Fetcher[T], then func(prev, next T, err error)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	e := c.entryLocked(key)
	gen := e.gen
	prev := e.value.Clone()
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		next, err := c.load(c.ctx, key, gen, fetch)
		if err == nil && !c.apply(key, gen, next) {
			return
		}
		if then != nil {
			then(prev, next, err)
		}
	}()
}

// Close stops accepting revalidations, cancels running ones and waits for
// them to finish.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Wait blocks until all scheduled revalidations have finished.
func (c *Cache[T]) Wait() {
	c.wg.Wait()
}
