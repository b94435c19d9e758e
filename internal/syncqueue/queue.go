// Package syncqueue runs best-effort background pushes to the server.
//
// Tasks are executed one at a time, in order, by a single worker. A failing
// task is retried with exponential backoff up to a fixed number of attempts
// and then written to a dead-letter log in the client store, so failures
// that used to be silent can be inspected. Rejections the server will never
// accept (4xx other than 429) are not retried.
package syncqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"

	"storefront/internal/model"
	"storefront/internal/storage"
)

// Defaults for Config.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 10 * time.Second
	DefaultQueueSize       = 64
	DefaultMaxDeadLetters  = 100
)

var (
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("sync queue closed")
	// ErrFull is returned by Enqueue when the backlog is at capacity.
	ErrFull = errors.New("sync queue full")
)

// Config configures a Queue. Zero values take the defaults.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	QueueSize       int
	MaxDeadLetters  int
	// OnDeadLetter is called after a task is dead-lettered.
	OnDeadLetter func(DeadLetter)
}

// Func is the work of one task.
type Func func(ctx context.Context) error

// DeadLetter records a task that exhausted its attempts.
type DeadLetter struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject,omitempty"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
	FailedAt  time.Time `json:"failed_at"`
}

type task struct {
	id        string
	kind      string
	subject   string
	fn        Func
	createdAt time.Time
}

// Queue is a single-worker background task queue.
type Queue struct {
	cfg    Config
	store  storage.Store
	logger *slog.Logger

	mu       sync.Mutex // guards closed, inflight, idle and sends on tasks
	closed   bool
	tasks    chan *task
	inflight int
	idle     chan struct{} // closed whenever inflight is zero

	dlMu sync.Mutex // serializes dead-letter read-modify-write

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a queue and starts its worker. Dead letters are persisted to
// store under storage.KeyDeadLetters.
func New(store storage.Store, cfg Config, logger *slog.Logger) *Queue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxDeadLetters <= 0 {
		cfg.MaxDeadLetters = DefaultMaxDeadLetters
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:    cfg,
		store:  store,
		logger: logger,
		tasks:  make(chan *task, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		idle:   make(chan struct{}),
	}
	close(q.idle)
	go q.run()
	return q
}

// Enqueue schedules fn and returns the task id. kind names the operation
// ("wishlist.add") and subject the thing it acts on (a product id); both
// end up in the dead-letter log.
//
// A task that cannot be queued is dead-lettered immediately.
func (q *Queue) Enqueue(kind, subject string, fn Func) (string, error) {
	t := &task{
		id:        ulid.Make().String(),
		kind:      kind,
		subject:   subject,
		fn:        fn,
		createdAt: time.Now().UTC(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.deadLetter(t, 0, ErrClosed)
		return t.id, ErrClosed
	}
	select {
	case q.tasks <- t:
		if q.inflight == 0 {
			q.idle = make(chan struct{})
		}
		q.inflight++
		q.mu.Unlock()
		return t.id, nil
	default:
		q.mu.Unlock()
		q.deadLetter(t, 0, ErrFull)
		return t.id, ErrFull
	}
}

// Flush waits until every queued task has finished or ctx is done.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for the backlog to drain. If ctx
// ends first, running and remaining tasks are cancelled (and dead-lettered)
// before Close returns.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	select {
	case <-q.done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.done
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for t := range q.tasks {
		q.execute(t)
		q.finished()
	}
}

func (q *Queue) finished() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
	if q.inflight == 0 {
		close(q.idle)
	}
}

func (q *Queue) execute(t *task) {
	attempts := 0
	_, err := backoff.Retry(q.ctx, func() (struct{}, error) {
		attempts++
		err := t.fn(q.ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if q.ctx.Err() != nil || !model.IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(q.newBackOff()),
		backoff.WithMaxTries(uint(q.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			q.logger.Debug("sync task retrying",
				slog.String("id", t.id),
				slog.String("kind", t.kind),
				slog.Int("attempt", attempts),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		q.deadLetter(t, attempts, err)
		return
	}
	q.logger.Debug("sync task done", slog.String("id", t.id), slog.String("kind", t.kind), slog.Int("attempts", attempts))
}

func (q *Queue) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.cfg.InitialInterval
	b.MaxInterval = q.cfg.MaxInterval
	return b
}

// deadLetter appends the failure to the persisted log, keeping only the
// newest MaxDeadLetters entries.
func (q *Queue) deadLetter(t *task, attempts int, cause error) {
	dl := DeadLetter{
		ID:        t.id,
		Kind:      t.kind,
		Subject:   t.subject,
		Attempts:  attempts,
		Error:     cause.Error(),
		CreatedAt: t.createdAt,
		FailedAt:  time.Now().UTC(),
	}

	q.dlMu.Lock()
	letters := storage.Get(q.store, storage.KeyDeadLetters, []DeadLetter{})
	letters = append(letters, dl)
	if over := len(letters) - q.cfg.MaxDeadLetters; over > 0 {
		letters = letters[over:]
	}
	storage.Set(q.store, storage.KeyDeadLetters, letters)
	q.dlMu.Unlock()

	q.logger.Warn("sync task dead-lettered",
		slog.String("id", dl.ID),
		slog.String("kind", dl.Kind),
		slog.String("subject", dl.Subject),
		slog.Int("attempts", dl.Attempts),
		slog.String("error", dl.Error),
	)
	if q.cfg.OnDeadLetter != nil {
		q.cfg.OnDeadLetter(dl)
	}
}

// DeadLetters returns the persisted dead-letter log, oldest first.
func (q *Queue) DeadLetters() []DeadLetter {
	q.dlMu.Lock()
	defer q.dlMu.Unlock()
	return storage.Get(q.store, storage.KeyDeadLetters, []DeadLetter{})
}

// ClearDeadLetters empties the dead-letter log and returns how many entries
// it held.
func (q *Queue) ClearDeadLetters() int {
	q.dlMu.Lock()
	defer q.dlMu.Unlock()
	n := len(storage.Get(q.store, storage.KeyDeadLetters, []DeadLetter{}))
	storage.Remove(q.store, storage.KeyDeadLetters)
	return n
}
