package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/session"
	"storefront/internal/storage"
	"storefront/internal/syncqueue"
)

// testEnv is a fake storefront API plus a sqlite store shared by every
// command run in one test.
type testEnv struct {
	t      *testing.T
	server *httptest.Server
	dbPath string
}

func newTestEnv(t *testing.T, h http.HandlerFunc) *testEnv {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testEnv{t: t, server: srv, dbPath: filepath.Join(t.TempDir(), "client.db")}
}

func (e *testEnv) config() *config.Config {
	return &config.Config{
		Environment: "development",
		API: config.APIConfig{
			BaseURL:        e.server.URL,
			Timeout:        5 * time.Second,
			CurrencySymbol: "₹",
		},
		Store: config.StoreConfig{Backend: storage.BackendSQLite, Path: e.dbPath},
		Cart:  config.CartConfig{MaxItemQuantity: config.DefaultMaxItemQuantity},
		Sync:  config.SyncConfig{MaxAttempts: 2, InitialInterval: time.Millisecond},
	}
}

// run executes one CLI invocation and returns its stdout.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	c := &cli{open: func(ctx context.Context, logger *slog.Logger) (*app.App, error) {
		return app.New(e.config(), "test", logger)
	}}
	root := newRootCmd(c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	if cerr := c.close(); err == nil {
		err = cerr
	}
	return out.String(), err
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	if err != nil {
		e.t.Fatalf("storefront %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestDeviceIDIsStable(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{}`)
	})

	first := strings.TrimSpace(env.mustRun("device"))
	second := strings.TrimSpace(env.mustRun("device"))
	if first == "" || first != second {
		t.Errorf("device ids = %q, %q; want one stable id", first, second)
	}
}

func TestCartAdd(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/cart/items":
			writeJSON(w, http.StatusOK, `{"data":{"cart":{"_id":"c1","items":[{"product":{"_id":"p1","name":"Mug"},"price":500,"qty":2}]}}}`)
		default:
			writeJSON(w, http.StatusOK, `{"data":{"cart":{"_id":"c1","items":[]}}}`)
		}
	})

	out := env.mustRun("cart", "add", "p1", "--qty", "2", "--name", "Mug", "--price", "500")
	for _, want := range []string{"added 2 × p1", "Mug", "₹1000"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out = env.mustRun("--json", "cart", "add", "p1", "--name", "Mug", "--price", "500")
	var c model.Cart
	if err := json.Unmarshal([]byte(out), &c); err != nil {
		t.Fatalf("--json output is not a cart: %v\n%s", err, out)
	}
	if c.ID != "c1" || c.Total != 1000 {
		t.Errorf("cart = %+v", c)
	}
}

func TestCartOffline(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	env.server.Close()

	_, err := env.run("cart", "get")
	if err == nil {
		t.Fatal("cart get succeeded without a server")
	}
	if got := errMessage(err); got != "Check your internet connection and try again." {
		t.Errorf("message = %q", got)
	}
}

func TestCartUpdateRejectsBadQuantity(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	if _, err := env.run("cart", "update", "p1", "lots"); err == nil {
		t.Error("non-numeric quantity accepted")
	}
}

func TestWishlistOfflineIsDeadLettered(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{"message":"maintenance"}`)
	})

	env.mustRun("wishlist", "add", "p1", "--title", "Mug", "--price", "₹500")

	var items model.Wishlist
	out := env.mustRun("--json", "wishlist", "list")
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode wishlist: %v\n%s", err, out)
	}
	if len(items) != 1 || items[0].Title != "Mug" {
		t.Errorf("wishlist = %+v", items)
	}

	// The push was retried and given up on before the first run exited.
	var letters []syncqueue.DeadLetter
	out = env.mustRun("--json", "dead-letters")
	if err := json.Unmarshal([]byte(out), &letters); err != nil {
		t.Fatalf("decode dead letters: %v\n%s", err, out)
	}
	if len(letters) != 1 || letters[0].Kind != "wishlist.add" || letters[0].Attempts != 2 {
		t.Errorf("dead letters = %+v", letters)
	}

	out = env.mustRun("dead-letters", "--clear")
	if !strings.Contains(out, "cleared 1") {
		t.Errorf("clear output = %q", out)
	}
}

func TestLoginLogout(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"wishlist":[]}}`)
	})

	env.mustRun("login", "opaque-token", "--no-sync")

	var st session.Status
	out := env.mustRun("--json", "session")
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode session: %v\n%s", err, out)
	}
	if !st.LoggedIn {
		t.Error("not logged in after login")
	}

	env.mustRun("logout")
	if out := env.mustRun("session"); !strings.Contains(out, "signed out") {
		t.Errorf("session after logout = %q", out)
	}

	if _, err := env.run("login", " "); err == nil {
		t.Error("blank token accepted")
	}
}

func TestLocalCart(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{}`)
	})

	env.mustRun("local-cart", "add", "p1", "--name", "Mug", "--price", "500", "--qty", "2")
	env.mustRun("local-cart", "adjust", "--discount", "100", "--shipping", "40")

	var c model.Cart
	out := env.mustRun("--json", "local-cart", "get")
	if err := json.Unmarshal([]byte(out), &c); err != nil {
		t.Fatalf("decode cart: %v\n%s", err, out)
	}
	if c.Subtotal != 1000 || c.Total != 940 {
		t.Errorf("local cart = %+v", c)
	}

	if _, err := env.run("local-cart", "add", "p1", "--name", "Mug", "--qty", "20"); err == nil {
		t.Error("quantity over the cap accepted")
	}
}

func TestErrMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"network", model.NewNetworkError("cart", errors.New("refused")), "Check your internet connection and try again."},
		{"rejected", model.NewRejectedError(http.StatusConflict, "Out of stock"), "Out of stock"},
		{"plain", errors.New(`unknown flag: --bogus`), "unknown flag: --bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errMessage(tt.err); got != tt.want {
				t.Errorf("errMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Stoneware Mug", 20); got != "Stoneware Mug" {
		t.Errorf("short = %q", got)
	}
	if got := truncate("Stoneware Mug", 6); got != "Stone…" {
		t.Errorf("long = %q", got)
	}
}
