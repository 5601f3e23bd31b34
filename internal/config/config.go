package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Feature flag names understood by the client
const (
	FeatureDebugLogging      = "debug_logging"
	FeatureBackgroundRefresh = "background_refresh"
	FeatureRecommendations   = "recommendations"
)

var validate = validator.New()

// Config represents the main configuration structure
type Config struct {
	Service      ServiceConfig      `yaml:"service" validate:"required"`
	Features     map[string]bool    `yaml:"features"`
	Cache        MemoryCacheConfig  `yaml:"cache"`
	BigCache     BigCacheConfig     `yaml:"bigcache"`
	KeyDB        KeyDBConfig        `yaml:"keydb"`
	MultiCache   MultiCacheConfig   `yaml:"multi_cache"`
	Retry        RetryConfig        `yaml:"retry"`
	Auth         AuthConfig         `yaml:"auth"`
	Search       SearchConfig       `yaml:"search"`
	Interactions InteractionsConfig `yaml:"interactions"`
	Server       ServerConfig       `yaml:"server"`
}

// ServiceConfig describes the remote grants service
type ServiceConfig struct {
	BaseURL        string        `yaml:"base_url" validate:"required,url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
}

// MemoryCacheConfig configures the in-process response cache, used as the
// first level unless bigcache is enabled
type MemoryCacheConfig struct {
	Disabled        bool          `yaml:"disabled"`
	JanitorInterval time.Duration `yaml:"janitor_interval" validate:"gte=0"`
}

// BigCacheConfig configures the bigcache level
type BigCacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size" validate:"gte=0"` // MB
}

// KeyDBConfig configures the KeyDB/Redis level
type KeyDBConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Namespace  string          `yaml:"namespace"`
	Connection KeyDBConnection `yaml:"connection"`
	Keepalive  KeyDBKeepalive  `yaml:"keepalive"`
}

// KeyDBConnection holds the connection timeouts
type KeyDBConnection struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// KeyDBKeepalive holds pool settings
type KeyDBKeepalive struct {
	PoolSize       int           `yaml:"pool_size"`
	MaxIdleTimeout time.Duration `yaml:"max_idle_timeout"`
}

// MultiCacheConfig configures level composition
type MultiCacheConfig struct {
	EnablePropagation bool `yaml:"enable_propagation"`
}

// RetryConfig configures the retrying transport
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1"`
	BaseDelay   time.Duration `yaml:"base_delay" validate:"gt=0"`
	MaxDelay    time.Duration `yaml:"max_delay" validate:"gtefield=BaseDelay"`
}

// AuthConfig configures the credential token cache
type AuthConfig struct {
	CSRFPath    string        `yaml:"csrf_path" validate:"required,startswith=/"`
	RefreshSkew time.Duration `yaml:"refresh_skew" validate:"gte=0"`
}

// SearchConfig configures the search orchestrator
type SearchConfig struct {
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
	PageSize int           `yaml:"page_size" validate:"gte=1,lte=100"`
}

// InteractionsConfig configures the optimistic coordinator
type InteractionsConfig struct {
	RefreshDelay time.Duration `yaml:"refresh_delay" validate:"gte=0"`
}

// ServerConfig configures the local control API
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoadConfig loads configuration from file path
func LoadConfig(configPath string, logger *zap.Logger) (*Config, error) {
	logger.Info("Loading configuration", zap.String("path", configPath))

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return Decode(file)
}

// Decode reads YAML configuration, applies defaults and environment overrides
// and validates the result
func Decode(r io.Reader) (*Config, error) {
	var config Config
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}

	config.applyDefaults()
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns a configuration made only of defaults and environment overrides
func Default() *Config {
	config := &Config{}
	config.applyDefaults()
	config.applyEnv()
	return config
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// FeatureEnabled reports whether a feature flag is on
func (c *Config) FeatureEnabled(name string) bool {
	return c.Features[name]
}

// GetReadTimeout returns the KeyDB read timeout
func (c *Config) GetReadTimeout() time.Duration {
	return c.KeyDB.Connection.ReadTimeout
}

// GetSendTimeout returns the KeyDB send timeout
func (c *Config) GetSendTimeout() time.Duration {
	return c.KeyDB.Connection.SendTimeout
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Service.BaseURL == "" {
		c.Service.BaseURL = "http://localhost:3001/api"
	}
	if c.Service.RequestTimeout == 0 {
		c.Service.RequestTimeout = 15 * time.Second
	}
	if c.Features == nil {
		c.Features = map[string]bool{FeatureBackgroundRefresh: true}
	}
	if c.Cache.JanitorInterval == 0 {
		c.Cache.JanitorInterval = time.Minute
	}
	if c.BigCache.Size == 0 {
		c.BigCache.Size = 64
	}
	c.KeyDB.applyDefaults()
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 300 * time.Millisecond
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 5 * time.Second
	}
	if c.Auth.CSRFPath == "" {
		c.Auth.CSRFPath = "/csrf-token"
	}
	if c.Auth.RefreshSkew == 0 {
		c.Auth.RefreshSkew = 30 * time.Second
	}
	if c.Search.Debounce == 0 {
		c.Search.Debounce = 300 * time.Millisecond
	}
	if c.Search.PageSize == 0 {
		c.Search.PageSize = 6
	}
	if c.Interactions.RefreshDelay == 0 {
		c.Interactions.RefreshDelay = 750 * time.Millisecond
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:8089"
	}
}

func (k *KeyDBConfig) applyDefaults() {
	if k.Namespace == "" {
		k.Namespace = "grantify"
	}
	if k.Connection.ConnectTimeout == 0 {
		k.Connection.ConnectTimeout = 2 * time.Second
	}
	if k.Connection.SendTimeout == 0 {
		k.Connection.SendTimeout = time.Second
	}
	if k.Connection.ReadTimeout == 0 {
		k.Connection.ReadTimeout = time.Second
	}
	if k.Keepalive.PoolSize == 0 {
		k.Keepalive.PoolSize = 10
	}
	if k.Keepalive.MaxIdleTimeout == 0 {
		k.Keepalive.MaxIdleTimeout = 30 * time.Second
	}
}

// applyEnv lets the environment override the service endpoint and keys
func (c *Config) applyEnv() {
	if v := os.Getenv("GRANTIFY_BASE_URL"); v != "" {
		c.Service.BaseURL = v
	}
	if v := os.Getenv("GRANTIFY_API_KEY"); v != "" {
		c.Service.APIKey = v
	}
	if v := os.Getenv("GRANTIFY_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}
