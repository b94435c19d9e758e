// Package session holds the shopper's bearer credential.
//
// The credential is opaque to the server contract. When it happens to be a
// JWT its expiry and subject are read (without verifying the signature) so
// callers can show a useful status; a non-JWT credential is stored and sent
// as is.
package session

import (
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/events"
	"storefront/internal/model"
	"storefront/internal/storage"
)

// Status describes the stored credential.
type Status struct {
	LoggedIn  bool       `json:"logged_in"`
	Subject   string     `json:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired"`
}

// Manager reads and writes the credential under storage.KeyAuthToken and
// publishes session events.
type Manager struct {
	store  storage.Store
	events *events.Registry
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Manager. reg may be nil.
func New(store storage.Store, reg *events.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, events: reg, logger: logger, now: time.Now}
}

// Token returns the stored credential, or "" when signed out.
// It is passed to the API client as its token source.
func (m *Manager) Token() string {
	return storage.Get(m.store, storage.KeyAuthToken, "")
}

// Login stores token and publishes events.LoggedIn. A JWT that has already
// expired is refused.
func (m *Manager) Login(token string) (Status, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Status{}, model.NewValidationError("token", "required")
	}

	st := m.inspect(token)
	if st.Expired {
		return st, model.NewValidationError("token", "expired")
	}

	storage.Set(m.store, storage.KeyAuthToken, token)
	m.logger.Info("logged in", slog.String("subject", st.Subject))
	m.publish(events.Event{Kind: events.LoggedIn})
	return st, nil
}

// Logout clears the credential and publishes events.LoggedOut.
func (m *Manager) Logout() {
	storage.Remove(m.store, storage.KeyAuthToken)
	m.logger.Info("logged out")
	m.publish(events.Event{Kind: events.LoggedOut})
}

// Status reports on the stored credential.
func (m *Manager) Status() Status {
	token := m.Token()
	if token == "" {
		return Status{}
	}
	return m.inspect(token)
}

// Unauthorized publishes events.LoginRequired. The API client calls it on
// every 401. The credential is kept; the UI decides whether to sign out.
func (m *Manager) Unauthorized() {
	m.logger.Warn("storefront API rejected the credential")
	m.publish(events.Event{Kind: events.LoginRequired, Reason: "unauthorized"})
}

func (m *Manager) inspect(token string) Status {
	st := Status{LoggedIn: true}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return st
	}
	if sub, err := claims.GetSubject(); err == nil {
		st.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time.UTC()
		st.ExpiresAt = &t
		st.Expired = !m.now().Before(t)
	}
	return st
}

func (m *Manager) publish(e events.Event) {
	if m.events != nil {
		m.events.Publish(e)
	}
}
