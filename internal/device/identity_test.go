package device

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedEnv []string

func (e fixedEnv) Signals() ([]string, error) { return e, nil }

type failingEnv struct{}

func (failingEnv) Signals() ([]string, error) { return nil, errors.New("no screen") }

type panickingEnv struct{}

func (panickingEnv) Signals() ([]string, error) { panic("canvas unavailable") }

// countingStore records how many writes reach the backend.
type countingStore struct {
	*storage.Memory
	saves atomic.Int32
}

func (s *countingStore) Save(key string, data []byte) error {
	s.saves.Add(1)
	return s.Memory.Save(key, data)
}

var sampleSignals = fixedEnv{
	"storefront/1.0.0 (linux; amd64)", "en-IN", "24", "120x40", "-330", "8", "0", "aG9zdAphYmM=",
}

func TestIDDeterministic(t *testing.T) {
	p := NewProvider(sampleSignals, storage.NewMemory(), testLogger())

	first := p.ID()
	if !strings.HasPrefix(first, "dev-") {
		t.Fatalf("ID() = %q, want dev- prefix", first)
	}
	for i := 0; i < 5; i++ {
		if got := p.ID(); got != first {
			t.Fatalf("ID() call %d = %q, want %q", i, got, first)
		}
	}

	other := NewProvider(sampleSignals, nil, testLogger())
	if got := other.ID(); got != first {
		t.Errorf("same signals on another provider = %q, want %q", got, first)
	}
}

func TestIDChangesWithSignals(t *testing.T) {
	a := NewProvider(fixedEnv{"ua", "en-US"}, nil, testLogger()).ID()
	b := NewProvider(fixedEnv{"ua", "en-GB"}, nil, testLogger()).ID()
	if a == b {
		t.Errorf("different signals produced the same id %q", a)
	}
}

func TestIDNeverEmpty(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		p    *Provider
		want string
	}{
		{"nil provider", nil, ServerID},
		{"no environment", NewProvider(nil, storage.NewMemory(), testLogger()), ServerID},
		{"signal error", NewProvider(failingEnv{}, nil, testLogger()), ""},
		{"signal panic", NewProvider(panickingEnv{}, nil, testLogger()), ""},
		{"empty signals", NewProvider(fixedEnv{}, nil, testLogger()), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.p != nil {
				tt.p.now = func() time.Time { return fixed }
			}
			got := tt.p.ID()
			if got == "" {
				t.Fatal("ID() returned empty string")
			}
			if tt.want != "" && got != tt.want {
				t.Errorf("ID() = %q, want %q", got, tt.want)
			}
			if tt.want == "" && !strings.HasPrefix(got, "dev-") {
				t.Errorf("ID() = %q, want dev- prefix", got)
			}
		})
	}
}

func TestIDFallbackIsTimeBased(t *testing.T) {
	p := NewProvider(failingEnv{}, nil, testLogger())
	p.now = func() time.Time { return time.Unix(0, 0x1234) }

	if got := p.ID(); got != "dev-1234" {
		t.Errorf("ID() = %q, want dev-1234", got)
	}
}

func TestIDPersistsOnlyWhenChanged(t *testing.T) {
	store := &countingStore{Memory: storage.NewMemory()}
	p := NewProvider(sampleSignals, store, testLogger())

	id := p.ID()
	if got := storage.Get(store, storage.KeyDeviceID, ""); got != id {
		t.Fatalf("stored id = %q, want %q", got, id)
	}
	if n := store.saves.Load(); n != 1 {
		t.Fatalf("saves after first ID() = %d, want 1", n)
	}

	p.ID()
	p.ID()
	if n := store.saves.Load(); n != 1 {
		t.Errorf("saves after repeated ID() = %d, want 1", n)
	}
}

func TestIDReturnsComputedOverStored(t *testing.T) {
	store := storage.NewMemory()
	storage.Set(store, storage.KeyDeviceID, "dev-stale")

	p := NewProvider(sampleSignals, store, testLogger())
	id := p.ID()

	if id == "dev-stale" {
		t.Fatal("ID() returned the stored value instead of the computed one")
	}
	if got := storage.Get(store, storage.KeyDeviceID, ""); got != id {
		t.Errorf("stored id = %q, want overwritten with %q", got, id)
	}
}

func TestHash(t *testing.T) {
	const max53 = uint64(1) << 53

	inputs := []string{"", "a", "b", "storefront|en-IN|24", "₹500 ünïcödé 🛒"}
	seen := make(map[uint64]string)
	for _, in := range inputs {
		h := Hash(in, 0)
		if h >= max53 {
			t.Errorf("Hash(%q) = %d, exceeds 53 bits", in, h)
		}
		if Hash(in, 0) != h {
			t.Errorf("Hash(%q) not deterministic", in)
		}
		if prev, dup := seen[h]; dup {
			t.Errorf("Hash(%q) collides with Hash(%q)", in, prev)
		}
		seen[h] = in
	}

	if Hash("a", 0) == Hash("a", 1) {
		t.Error("seed does not affect hash")
	}
}

func TestHostSignals(t *testing.T) {
	env := map[string]string{
		"LANG":      "en_IN.UTF-8",
		"COLORTERM": "truecolor",
		"TERM":      "xterm-256color",
	}
	h := &Host{
		Version:  "1.2.3",
		getenv:   func(k string) string { return env[k] },
		hostname: func() (string, error) { return "shop-laptop", nil },
		readFile: func(string) ([]byte, error) { return []byte("abc123\n"), nil },
		now: func() time.Time {
			return time.Date(2026, 1, 1, 12, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
		},
	}

	signals, err := h.Signals()
	if err != nil {
		t.Fatalf("Signals() error: %v", err)
	}
	if len(signals) != 8 {
		t.Fatalf("len(Signals()) = %d, want 8", len(signals))
	}

	if !strings.HasPrefix(signals[0], "storefront/1.2.3 (") {
		t.Errorf("user agent = %q", signals[0])
	}
	checks := []struct {
		idx  int
		want string
	}{
		{1, "en-IN"},
		{2, "24"},
		{3, "0x0"},
		{4, "-330"},
		{6, "0"},
		{7, "c2hvcC1sYXB0b3AKYWJjMTIz"},
	}
	for _, c := range checks {
		if signals[c.idx] != c.want {
			t.Errorf("signal[%d] = %q, want %q", c.idx, signals[c.idx], c.want)
		}
	}
}

func TestHostSignatureFailuresSwallowed(t *testing.T) {
	h := &Host{
		hostname: func() (string, error) { return "", errors.New("no hostname") },
		readFile: func(string) ([]byte, error) { return nil, os.ErrNotExist },
	}
	if got := h.hostSignature(); got != "" {
		t.Errorf("hostSignature() = %q, want empty", got)
	}
}

func TestColorDepth(t *testing.T) {
	tests := []struct {
		colorterm, term string
		want            int
	}{
		{"truecolor", "xterm", 24},
		{"24bit", "", 24},
		{"", "xterm-256color", 8},
		{"", "xterm", 4},
		{"", "dumb", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		env := map[string]string{"COLORTERM": tt.colorterm, "TERM": tt.term}
		h := &Host{getenv: func(k string) string { return env[k] }}
		if got := h.colorDepth(); got != tt.want {
			t.Errorf("colorDepth(%q, %q) = %d, want %d", tt.colorterm, tt.term, got, tt.want)
		}
	}
}

func TestLanguage(t *testing.T) {
	tests := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"LC_ALL": "de_DE.UTF-8", "LANG": "en_US.UTF-8"}, "de-DE"},
		{map[string]string{"LC_MESSAGES": "fr_FR@euro"}, "fr-FR"},
		{map[string]string{"LANG": "C"}, "en-US"},
		{map[string]string{}, "en-US"},
	}
	for _, tt := range tests {
		h := &Host{getenv: func(k string) string { return tt.env[k] }}
		if got := h.language(); got != tt.want {
			t.Errorf("language(%v) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestTimezoneOffset(t *testing.T) {
	tests := []struct {
		zone *time.Location
		want int
	}{
		{time.UTC, 0},
		{time.FixedZone("IST", 5*3600+1800), -330},
		{time.FixedZone("EST", -5*3600), 300},
	}
	for _, tt := range tests {
		if got := timezoneOffset(time.Date(2026, 1, 1, 0, 0, 0, 0, tt.zone)); got != tt.want {
			t.Errorf("timezoneOffset(%s) = %d, want %d", tt.zone, got, tt.want)
		}
	}
}
