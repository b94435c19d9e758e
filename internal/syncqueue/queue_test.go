package syncqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"storefront/internal/model"
	"storefront/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestQueue(t *testing.T, cfg Config) (*Queue, storage.Store) {
	t.Helper()
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Millisecond
	}
	store := storage.NewMemory()
	q := New(store, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Close(ctx)
	})
	return q, store
}

func flush(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
}

func TestTasksRunInOrder(t *testing.T) {
	q, _ := newTestQueue(t, Config{})

	var order []int
	for i := range 5 {
		if _, err := q.Enqueue("test", "", func(context.Context) error {
			order = append(order, i)
			return nil
		}); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
	}
	flush(t, q)

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
	if len(order) != 5 {
		t.Errorf("ran %d tasks, want 5", len(order))
	}
	if n := len(q.DeadLetters()); n != 0 {
		t.Errorf("DeadLetters() = %d entries, want 0", n)
	}
}

func TestRetryThenSucceed(t *testing.T) {
	q, _ := newTestQueue(t, Config{MaxAttempts: 3})

	var calls atomic.Int32
	q.Enqueue("wishlist.add", "p1", func(context.Context) error {
		if calls.Add(1) < 3 {
			return &model.NetworkError{Op: "POST /wishlist", Err: errors.New("connection reset")}
		}
		return nil
	})
	flush(t, q)

	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if n := len(q.DeadLetters()); n != 0 {
		t.Errorf("DeadLetters() = %d entries, want 0", n)
	}
}

func TestDeadLetterAfterRetriesExhausted(t *testing.T) {
	var notified []DeadLetter
	q, store := newTestQueue(t, Config{
		MaxAttempts:  3,
		OnDeadLetter: func(dl DeadLetter) { notified = append(notified, dl) },
	})

	var calls atomic.Int32
	id, _ := q.Enqueue("wishlist.remove", "p9", func(context.Context) error {
		calls.Add(1)
		return model.NewUpstreamError("wishlist", errors.New("bad gateway"))
	})
	flush(t, q)

	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	letters := q.DeadLetters()
	if len(letters) != 1 {
		t.Fatalf("DeadLetters() = %d entries, want 1", len(letters))
	}
	dl := letters[0]
	if dl.ID != id || dl.Kind != "wishlist.remove" || dl.Subject != "p9" || dl.Attempts != 3 {
		t.Errorf("dead letter = %+v", dl)
	}
	if dl.Error == "" || dl.FailedAt.IsZero() {
		t.Errorf("dead letter missing error or timestamp: %+v", dl)
	}
	if len(notified) != 1 || notified[0].ID != id {
		t.Errorf("OnDeadLetter calls = %+v", notified)
	}

	// The log is in the store, not just in memory.
	persisted := storage.Get(store, storage.KeyDeadLetters, []DeadLetter{})
	if len(persisted) != 1 {
		t.Errorf("persisted dead letters = %d, want 1", len(persisted))
	}
}

func TestRejectionIsNotRetried(t *testing.T) {
	q, _ := newTestQueue(t, Config{MaxAttempts: 5})

	var calls atomic.Int32
	q.Enqueue("wishlist.add", "p1", func(context.Context) error {
		calls.Add(1)
		return model.NewRejectedError(400, "product is unavailable")
	})
	flush(t, q)

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	letters := q.DeadLetters()
	if len(letters) != 1 || letters[0].Attempts != 1 {
		t.Errorf("DeadLetters() = %+v, want one entry with 1 attempt", letters)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q, _ := newTestQueue(t, Config{})
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	ran := false
	_, err := q.Enqueue("wishlist.clear", "", func(context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue() error = %v, want ErrClosed", err)
	}
	if ran {
		t.Error("task ran after Close")
	}
	if letters := q.DeadLetters(); len(letters) != 1 || letters[0].Attempts != 0 {
		t.Errorf("DeadLetters() = %+v, want one unattempted entry", letters)
	}
}

func TestCloseDrainsBacklog(t *testing.T) {
	q, _ := newTestQueue(t, Config{})

	var calls atomic.Int32
	for range 10 {
		q.Enqueue("test", "", func(context.Context) error {
			calls.Add(1)
			return nil
		})
	}
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if got := calls.Load(); got != 10 {
		t.Errorf("calls = %d, want 10", got)
	}
}

func TestCloseTimeoutCancelsRunningTask(t *testing.T) {
	q, _ := newTestQueue(t, Config{})

	started := make(chan struct{})
	q.Enqueue("slow", "", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want DeadlineExceeded", err)
	}
	if letters := q.DeadLetters(); len(letters) != 1 || letters[0].Kind != "slow" {
		t.Errorf("DeadLetters() = %+v, want the cancelled task", letters)
	}
}

func TestDeadLetterCapAndClear(t *testing.T) {
	q, _ := newTestQueue(t, Config{MaxAttempts: 1, MaxDeadLetters: 3})

	for _, subject := range []string{"a", "b", "c", "d", "e"} {
		q.Enqueue("test", subject, func(context.Context) error {
			return model.NewRejectedError(422, "no")
		})
	}
	flush(t, q)

	letters := q.DeadLetters()
	if len(letters) != 3 {
		t.Fatalf("DeadLetters() = %d entries, want 3", len(letters))
	}
	if letters[0].Subject != "c" || letters[2].Subject != "e" {
		t.Errorf("kept subjects %q..%q, want newest c..e", letters[0].Subject, letters[2].Subject)
	}

	if n := q.ClearDeadLetters(); n != 3 {
		t.Errorf("ClearDeadLetters() = %d, want 3", n)
	}
	if n := len(q.DeadLetters()); n != 0 {
		t.Errorf("DeadLetters() after clear = %d entries", n)
	}
}
