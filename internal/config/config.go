// Package config handles loading and validation of client configuration.
// Supports both development (env vars or CONFIG_FILE) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"gopkg.in/yaml.v3"

	"storefront/internal/storage"
)

// Defaults applied when a setting is absent.
const (
	DefaultPort            = "8080"
	DefaultTimeout         = 30 * time.Second
	DefaultMaxItemQuantity = 10
	DefaultSyncAttempts    = 3
	DefaultCurrencySymbol  = "₹"
)

// Upstream transports.
const (
	TransportDefault = "default"
	TransportChrome  = "chrome"
)

// Config holds all client configuration.
// Environment determines whether the API key loads from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings for storefrontd
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	ClientID   string // Secret Manager secret holding the API credentials

	API   APIConfig
	Store StoreConfig
	Cart  CartConfig
	Sync  SyncConfig
}

// APIConfig describes the storefront REST API.
type APIConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	// Transport selects the outbound HTTP stack: "default" or "chrome".
	Transport        string        `json:"transport" yaml:"transport"`
	Timeout          time.Duration `json:"-" yaml:"-"`
	MinServerVersion string        `json:"min_server_version" yaml:"min_server_version"`
	CurrencySymbol   string        `json:"currency_symbol" yaml:"currency_symbol"`
}

// StoreConfig selects the client store backend.
type StoreConfig struct {
	Backend       string `json:"backend" yaml:"backend"` // sqlite, redis, memory or none
	Path          string `json:"path" yaml:"path"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`
	RedisPrefix   string `json:"redis_prefix" yaml:"redis_prefix"`
}

// CartConfig holds cart business rules.
type CartConfig struct {
	// MaxItemQuantity caps one line. 0 disables the cap.
	MaxItemQuantity int
}

// SyncConfig is the retry budget of the background sync queue.
type SyncConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

// fileConfig mirrors the CONFIG_FILE layout. Pointers distinguish "absent"
// from an explicit zero.
type fileConfig struct {
	Port        string `json:"port" yaml:"port"`
	Environment string `json:"environment" yaml:"environment"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
	GCPProject  string `json:"gcp_project" yaml:"gcp_project"`
	ClientID    string `json:"client_id" yaml:"client_id"`

	API struct {
		APIConfig `json:",inline" yaml:",inline"`
		Timeout   string `json:"timeout" yaml:"timeout"`
	} `json:"api" yaml:"api"`
	Store StoreConfig `json:"store" yaml:"store"`
	Cart  struct {
		MaxItemQuantity *int `json:"max_item_quantity" yaml:"max_item_quantity"`
	} `json:"cart" yaml:"cart"`
	Sync struct {
		MaxAttempts     int    `json:"max_attempts" yaml:"max_attempts"`
		InitialInterval string `json:"initial_interval" yaml:"initial_interval"`
	} `json:"sync" yaml:"sync"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars, with the API key from Secret
// Manager in production.
func Load(ctx context.Context) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		cfg, err = loadFromFile(configPath)
	} else {
		cfg, err = loadFromEnv()
	}
	if err != nil {
		return nil, err
	}

	if cfg.Environment == "production" && cfg.API.APIKey == "" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.ClientID == "" {
			return nil, fmt.Errorf("CLIENT_ID required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading API credentials: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv reads configuration from individual environment variables.
func loadFromEnv() (*Config, error) {
	cfg := &Config{
		Port:        envOrDefault("PORT", DefaultPort),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		ClientID:    os.Getenv("CLIENT_ID"),
		API: APIConfig{
			BaseURL:          os.Getenv("STOREFRONT_API_URL"),
			APIKey:           os.Getenv("STOREFRONT_API_KEY"),
			Transport:        os.Getenv("UPSTREAM_TRANSPORT"),
			MinServerVersion: os.Getenv("MIN_SERVER_VERSION"),
			CurrencySymbol:   os.Getenv("CURRENCY_SYMBOL"),
		},
		Store: StoreConfig{
			Backend:       os.Getenv("STORE_BACKEND"),
			Path:          os.Getenv("STORE_PATH"),
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisPrefix:   os.Getenv("REDIS_PREFIX"),
		},
		Cart: CartConfig{MaxItemQuantity: DefaultMaxItemQuantity},
	}

	var err error
	if cfg.API.Timeout, err = envDuration("HTTP_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.Sync.InitialInterval, err = envDuration("SYNC_INITIAL_INTERVAL"); err != nil {
		return nil, err
	}
	if cfg.Store.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Cart.MaxItemQuantity, err = envInt("MAX_ITEM_QUANTITY", DefaultMaxItemQuantity); err != nil {
		return nil, err
	}
	if cfg.Sync.MaxAttempts, err = envInt("SYNC_MAX_ATTEMPTS", 0); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON or YAML file, chosen by
// extension.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fc.Port, DefaultPort),
		Environment: withDefault(fc.Environment, "development"),
		LogLevel:    withDefault(fc.LogLevel, "info"),
		GCPProject:  fc.GCPProject,
		ClientID:    fc.ClientID,
		API:         fc.API.APIConfig,
		Store:       fc.Store,
		Cart:        CartConfig{MaxItemQuantity: DefaultMaxItemQuantity},
		Sync:        SyncConfig{MaxAttempts: fc.Sync.MaxAttempts},
	}
	if fc.Cart.MaxItemQuantity != nil {
		cfg.Cart.MaxItemQuantity = *fc.Cart.MaxItemQuantity
	}
	if cfg.API.Timeout, err = parseDuration("api.timeout", fc.API.Timeout); err != nil {
		return nil, err
	}
	if cfg.Sync.InitialInterval, err = parseDuration("sync.initial_interval", fc.Sync.InitialInterval); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromSecretManager fetches the API credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{client_id}/versions/latest
// The payload is JSON: {"api_key": "...", "base_url": "..."}; base_url is
// optional and only fills an unset value.
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.ClientID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applySecret(result.Payload.Data)
}

func (c *Config) applySecret(data []byte) error {
	var secret struct {
		APIKey  string `json:"api_key"`
		BaseURL string `json:"base_url"`
	}
	if err := json.Unmarshal(data, &secret); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	c.API.APIKey = secret.APIKey
	if c.API.BaseURL == "" {
		c.API.BaseURL = secret.BaseURL
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Transport == "" {
		c.API.Transport = TransportDefault
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = DefaultTimeout
	}
	if c.API.CurrencySymbol == "" {
		c.API.CurrencySymbol = DefaultCurrencySymbol
	}
	if c.Store.Backend == "" {
		c.Store.Backend = storage.BackendSQLite
	}
	if c.Store.Backend == storage.BackendSQLite && c.Store.Path == "" {
		c.Store.Path = defaultStorePath()
	}
	if c.Sync.MaxAttempts <= 0 {
		c.Sync.MaxAttempts = DefaultSyncAttempts
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api base_url: scheme must be http or https")
	}

	switch c.API.Transport {
	case TransportDefault, TransportChrome:
	default:
		return fmt.Errorf("unknown transport %q (default or chrome)", c.API.Transport)
	}

	switch c.Store.Backend {
	case storage.BackendSQLite, storage.BackendMemory, storage.BackendNone:
	case storage.BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Cart.MaxItemQuantity < 0 {
		return fmt.Errorf("max_item_quantity must not be negative")
	}
	return nil
}

// StoreOptions converts the store settings for storage.Open.
func (c *Config) StoreOptions() storage.Options {
	return storage.Options{
		Backend: c.Store.Backend,
		Path:    c.Store.Path,
		Redis: storage.RedisConfig{
			Addr:     c.Store.RedisAddr,
			Password: c.Store.RedisPassword,
			DB:       c.Store.RedisDB,
			Prefix:   c.Store.RedisPrefix,
		},
	}
}

// defaultStorePath is <user config dir>/storefront/client.db.
func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".storefront", "client.db")
	}
	return filepath.Join(dir, "storefront", "client.db")
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string) (time.Duration, error) {
	return parseDuration(key, os.Getenv(key))
}

func parseDuration(name, val string) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return d, nil
}
