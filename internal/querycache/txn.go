package querycache

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of a Txn.
type State int

const (
	StateIdle State = iota
	StateOptimistic
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOptimistic:
		return "optimistic"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrTxnDone is returned when a settled transaction is used again.
var ErrTxnDone = errors.New("querycache: transaction already settled")

// Txn is one optimistic mutation of a cached resource.
//
// Only the newest transaction on a key holds a snapshot. When a second
// mutation begins before the first settles, the first is superseded: its
// Commit still applies the server value, but its Rollback leaves the cache
// alone because the state it would restore no longer exists. The
// revalidation that follows every mutation repairs the value.
type Txn[T Cloner[T]] struct {
	c        *Cache[T]
	key      string
	snapshot T
	hadValue bool
	state    State
}

// Begin starts a mutation on key: in-flight reads are invalidated and a
// deep copy of the current value is held for rollback.
func (c *Cache[T]) Begin(key string) *Txn[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	e.gen++
	if e.owner != nil {
		var zero T
		e.owner.snapshot = zero
	}
	t := &Txn[T]{
		c:        c,
		key:      key,
		snapshot: e.value.Clone(),
		hadValue: e.has,
		state:    StateOptimistic,
	}
	e.owner = t
	return t
}

// Key returns the resource key.
func (t *Txn[T]) Key() string { return t.key }

// State returns the current state.
func (t *Txn[T]) State() State {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.state
}

// Snapshot returns a copy of the value captured at Begin.
func (t *Txn[T]) Snapshot() T {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.snapshot.Clone()
}

// Apply replaces the cached value with fn applied to a copy of it, and
// returns the speculative value.
func (t *Txn[T]) Apply(fn func(T) T) (T, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()

	if t.state != StateOptimistic {
		var zero T
		return zero, ErrTxnDone
	}
	e := t.c.entryLocked(t.key)
	next := fn(e.value.Clone())
	e.value = next.Clone()
	e.has = true
	return next, nil
}

// Commit stores the server's value verbatim, discarding the speculative one.
func (t *Txn[T]) Commit(v T) error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()

	if t.state != StateOptimistic {
		return ErrTxnDone
	}
	e := t.c.entryLocked(t.key)
	e.value = v.Clone()
	e.has = true
	e.fetchedAt = t.c.now()
	e.gen++
	t.release(e)
	t.state = StateCommitted
	return nil
}

// Rollback restores the snapshot exactly. A superseded transaction settles
// without touching the cache.
func (t *Txn[T]) Rollback() error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()

	if t.state != StateOptimistic {
		return ErrTxnDone
	}
	e := t.c.entryLocked(t.key)
	if e.owner == t {
		e.value = t.snapshot.Clone()
		e.has = t.hadValue
		e.gen++
	}
	t.release(e)
	t.state = StateRolledBack
	return nil
}

// Superseded reports whether a newer transaction on the same key has begun.
func (t *Txn[T]) Superseded() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	e, ok := t.c.entries[t.key]
	return ok && e.owner != t && t.state == StateOptimistic
}

// release drops the held snapshot if this transaction owns it.
func (t *Txn[T]) release(e *entry[T]) {
	if e.owner == t {
		e.owner = nil
	}
	var zero T
	t.snapshot = zero
}
