package events

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubscribePublish(t *testing.T) {
	r := NewRegistry(testLogger())

	var got []string
	unsubA := r.Subscribe(func(e Event) { got = append(got, "a:"+string(e.Kind)) })
	r.Subscribe(func(e Event) { got = append(got, "b:"+string(e.Kind)) })

	r.Publish(Event{Kind: LoginRequired})
	unsubA()
	unsubA() // second call is harmless
	r.Publish(Event{Kind: LoggedOut})

	want := []string{"a:login_required", "b:login_required", "b:logged_out"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("deliveries mismatch (-want +got):\n%s", diff)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestPublishFillsTimestamp(t *testing.T) {
	r := NewRegistry(testLogger())
	var at time.Time
	r.Subscribe(func(e Event) { at = e.At })

	r.Publish(Event{Kind: LoginRequired})
	if at.IsZero() {
		t.Error("At not set")
	}

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.Publish(Event{Kind: LoginRequired, At: fixed})
	if !at.Equal(fixed) {
		t.Errorf("At = %v, want %v", at, fixed)
	}
}

func TestPanickingListenerIsSkipped(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Subscribe(func(Event) { panic("listener bug") })
	delivered := false
	r.Subscribe(func(Event) { delivered = true })

	r.Publish(Event{Kind: SyncFailed})
	if !delivered {
		t.Error("listener after a panicking one was not called")
	}
}

func TestListenerMayUnsubscribeDuringPublish(t *testing.T) {
	r := NewRegistry(testLogger())
	calls := 0
	var unsub func()
	unsub = r.Subscribe(func(Event) {
		calls++
		unsub()
	})

	r.Publish(Event{Kind: LoginRequired})
	r.Publish(Event{Kind: LoginRequired})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestClose(t *testing.T) {
	r := NewRegistry(testLogger())
	called := false
	r.Subscribe(func(Event) { called = true })

	r.Close()
	r.Publish(Event{Kind: LoginRequired})
	if called {
		t.Error("listener called after Close")
	}
	r.Subscribe(func(Event) { called = true })()
	if r.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", r.Len())
	}
}
