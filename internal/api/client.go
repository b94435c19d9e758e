// Package api is the HTTP client for the storefront REST API: the device
// cart, the wishlist mirror and product lookups.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"storefront/internal/adapter"
	"storefront/internal/model"
)

const (
	pathCartByDevice = "/api/v1/cart/device/"
	pathCartItems    = "/api/v1/cart/items"
	pathWishlist     = "/api/v1/wishlist"
	pathProducts     = "/api/v1/products/"

	// headerAPIVersion is the server's advertised API version.
	headerAPIVersion = "X-Api-Version"

	defaultTimeout = 30 * time.Second
	defaultSymbol  = "₹"
)

// ErrNoIdentity means neither a device id nor a credential is available,
// so the server has nothing to key the request on.
var ErrNoIdentity = errors.New("no client identity")

// Config holds client configuration.
type Config struct {
	BaseURL   string
	APIKey    string // sent as X-Api-Key when set
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport (see internal/transport).
	Transport http.RoundTripper
	// MinServerVersion is the lowest server API version this client was
	// built against, e.g. "v1.2.0". Older servers are logged once.
	MinServerVersion string
	// CurrencySymbol prefixes wishlist display prices the server sends as numbers.
	CurrencySymbol string

	// DeviceID returns the anonymous device identifier.
	DeviceID func() string
	// Token returns the bearer credential, or "" when signed out.
	Token func() string
	// OnUnauthorized is called whenever the server answers 401.
	OnUnauthorized func()
}

// Client talks to the storefront REST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	userAgent      string
	minVersion     string
	currencySymbol string
	deviceID       func() string
	token          func() string
	onUnauthorized func()
	logger         *slog.Logger

	versionOnce sync.Once
}

// New creates a client with the given configuration.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("API base URL is required")
	}
	if cfg.DeviceID == nil {
		return nil, fmt.Errorf("device id source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	symbol := cfg.CurrencySymbol
	if symbol == "" {
		symbol = defaultSymbol
	}
	token := cfg.Token
	if token == nil {
		token = func() string { return "" }
	}
	minVersion := cfg.MinServerVersion
	if minVersion != "" && !strings.HasPrefix(minVersion, "v") {
		minVersion = "v" + minVersion
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		userAgent:      cfg.UserAgent,
		minVersion:     minVersion,
		currencySymbol: symbol,
		deviceID:       cfg.DeviceID,
		token:          token,
		onUnauthorized: cfg.OnUnauthorized,
		logger:         logger,
	}, nil
}

// response is an HTTP answer that reached the client.
type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// err returns the rejection for a non-2xx response, nil otherwise.
func (r *response) err() error {
	if r.ok() {
		return nil
	}
	return parseErrorResponse(r.status, r.body)
}

// identity returns the device id, or ErrNoIdentity when there is neither a
// device id nor a credential.
func (c *Client) identity() (string, error) {
	id := c.deviceID()
	if (id == "" || id == "server") && c.token() == "" {
		return "", ErrNoIdentity
	}
	return id, nil
}

// newRequest creates an HTTP request with the standard headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if id := c.deviceID(); id != "" {
		req.Header.Set("X-Device-Id", id)
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	return req, nil
}

// do executes the request and reads the whole body.
// Only transport failures are errors here; status handling is left to the
// caller because each endpoint treats rejections differently.
func (c *Client) do(req *http.Request, op string) (*response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, model.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewNetworkError(op, fmt.Errorf("reading response: %w", err))
	}

	c.checkVersion(resp.Header.Get(headerAPIVersion))

	if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized()
	}

	c.logger.Debug("storefront api",
		slog.String("op", op),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", req.Header.Get("X-Request-Id")),
	)

	return &response{status: resp.StatusCode, body: body}, nil
}

// send builds and executes a request in one step.
func (c *Client) send(ctx context.Context, method, path string, body any, op string) (*response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", op, err)
	}
	return c.do(req, op)
}

// checkVersion warns once if the server is older than the client expects.
func (c *Client) checkVersion(v string) {
	if c.minVersion == "" || v == "" {
		return
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) || !semver.IsValid(c.minVersion) {
		return
	}
	if semver.Compare(v, c.minVersion) < 0 {
		c.versionOnce.Do(func() {
			c.logger.Warn("storefront API is older than expected",
				slog.String("server_version", v),
				slog.String("min_version", c.minVersion),
			)
		})
	}
}

// Verify Client implements adapter.Remote at compile time.
var _ adapter.Remote = (*Client)(nil)
