package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func createTestConfigFile(t *testing.T, content string) string {
	tmpFile, err := os.CreateTemp("", "grantify_config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}

	if err := tmpFile.Close(); err != nil {
		t.Fatalf("Failed to close temp file: %v", err)
	}

	return tmpFile.Name()
}

func TestLoadConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)

	validConfig := `
service:
  base_url: https://api.grantify.test/v1
  api_key: public-key
  request_timeout: 10s

features:
  debug_logging: true
  background_refresh: false

bigcache:
  enabled: true
  size: 200

keydb:
  enabled: true
  namespace: grants
  connection:
    connect_timeout: 2s
    send_timeout: 500ms
    read_timeout: 750ms
  keepalive:
    pool_size: 20

retry:
  max_attempts: 5
  base_delay: 100ms
  max_delay: 2s

search:
  debounce: 500ms
  page_size: 12

interactions:
  refresh_delay: 1s
`

	configFile := createTestConfigFile(t, validConfig)
	defer os.Remove(configFile)

	config, err := LoadConfig(configFile, logger)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Service.BaseURL != "https://api.grantify.test/v1" {
		t.Errorf("LoadConfig() Service.BaseURL = %v", config.Service.BaseURL)
	}
	if config.Service.APIKey != "public-key" {
		t.Errorf("LoadConfig() Service.APIKey = %v, want public-key", config.Service.APIKey)
	}
	if !config.FeatureEnabled(FeatureDebugLogging) {
		t.Errorf("LoadConfig() debug_logging feature should be enabled")
	}
	if config.FeatureEnabled(FeatureBackgroundRefresh) {
		t.Errorf("LoadConfig() background_refresh feature should be disabled")
	}
	if !config.BigCache.Enabled || config.BigCache.Size != 200 {
		t.Errorf("LoadConfig() BigCache = %+v", config.BigCache)
	}
	if config.KeyDB.Namespace != "grants" {
		t.Errorf("LoadConfig() KeyDB.Namespace = %v, want grants", config.KeyDB.Namespace)
	}
	if config.GetSendTimeout() != 500*time.Millisecond {
		t.Errorf("LoadConfig() GetSendTimeout() = %v, want 500ms", config.GetSendTimeout())
	}
	if config.GetReadTimeout() != 750*time.Millisecond {
		t.Errorf("LoadConfig() GetReadTimeout() = %v, want 750ms", config.GetReadTimeout())
	}
	if config.KeyDB.Keepalive.PoolSize != 20 {
		t.Errorf("LoadConfig() KeyDB.Keepalive.PoolSize = %v, want 20", config.KeyDB.Keepalive.PoolSize)
	}
	if config.Retry.MaxAttempts != 5 || config.Retry.BaseDelay != 100*time.Millisecond || config.Retry.MaxDelay != 2*time.Second {
		t.Errorf("LoadConfig() Retry = %+v", config.Retry)
	}
	if config.Search.Debounce != 500*time.Millisecond || config.Search.PageSize != 12 {
		t.Errorf("LoadConfig() Search = %+v", config.Search)
	}
	if config.Interactions.RefreshDelay != time.Second {
		t.Errorf("LoadConfig() Interactions.RefreshDelay = %v, want 1s", config.Interactions.RefreshDelay)
	}
}

func TestLoadConfig_WithDefaults(t *testing.T) {
	logger := zaptest.NewLogger(t)

	minimalConfig := `
service:
  base_url: https://api.grantify.test
`

	configFile := createTestConfigFile(t, minimalConfig)
	defer os.Remove(configFile)

	config, err := LoadConfig(configFile, logger)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Retry.MaxAttempts != 3 {
		t.Errorf("LoadConfig() Retry.MaxAttempts = %v, want 3 (default)", config.Retry.MaxAttempts)
	}
	if config.Retry.BaseDelay != 300*time.Millisecond {
		t.Errorf("LoadConfig() Retry.BaseDelay = %v, want 300ms (default)", config.Retry.BaseDelay)
	}
	if config.Search.Debounce != 300*time.Millisecond {
		t.Errorf("LoadConfig() Search.Debounce = %v, want 300ms (default)", config.Search.Debounce)
	}
	if config.Auth.CSRFPath != "/csrf-token" {
		t.Errorf("LoadConfig() Auth.CSRFPath = %v, want /csrf-token (default)", config.Auth.CSRFPath)
	}
	if !config.FeatureEnabled(FeatureBackgroundRefresh) {
		t.Errorf("LoadConfig() background_refresh should default to enabled")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := LoadConfig("/nonexistent/file.yaml", logger)
	if err == nil {
		t.Fatal("LoadConfig() should return error for nonexistent file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	logger := zaptest.NewLogger(t)

	invalidConfig := `
service:
  base_url: https://api.grantify.test
  invalid yaml syntax [
`

	configFile := createTestConfigFile(t, invalidConfig)
	defer os.Remove(configFile)

	_, err := LoadConfig(configFile, logger)
	if err == nil {
		t.Fatal("LoadConfig() should return error for invalid YAML")
	}
}

func TestDecode_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "invalid base url",
			content: `
service:
  base_url: "not a url"
`,
		},
		{
			name: "max delay below base delay",
			content: `
retry:
  base_delay: 2s
  max_delay: 1s
`,
		},
		{
			name: "page size too large",
			content: `
search:
  page_size: 500
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.content))
			if err == nil {
				t.Fatalf("Decode() expected validation error")
			}
		})
	}
}

func TestDecode_EnvOverrides(t *testing.T) {
	t.Setenv("GRANTIFY_BASE_URL", "https://override.grantify.test")
	t.Setenv("GRANTIFY_API_KEY", "env-key")

	config, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if config.Service.BaseURL != "https://override.grantify.test" {
		t.Errorf("Decode() Service.BaseURL = %v, want env override", config.Service.BaseURL)
	}
	if config.Service.APIKey != "env-key" {
		t.Errorf("Decode() Service.APIKey = %v, want env-key", config.Service.APIKey)
	}
}

func TestConfig_PartialDefaults(t *testing.T) {
	config := &Config{
		KeyDB: KeyDBConfig{
			Connection: KeyDBConnection{
				ConnectTimeout: 5 * time.Second, // Custom value
			},
		},
		Search: SearchConfig{PageSize: 20},
	}

	config.applyDefaults()

	// Custom values should be preserved
	if config.KeyDB.Connection.ConnectTimeout != 5*time.Second {
		t.Errorf("applyDefaults() should preserve custom ConnectTimeout = %v", config.KeyDB.Connection.ConnectTimeout)
	}
	if config.Search.PageSize != 20 {
		t.Errorf("applyDefaults() should preserve custom PageSize = %v", config.Search.PageSize)
	}

	// Missing values should get defaults
	if config.KeyDB.Connection.SendTimeout != time.Second {
		t.Errorf("applyDefaults() KeyDB.Connection.SendTimeout = %v, want 1s (default)", config.KeyDB.Connection.SendTimeout)
	}
	if config.KeyDB.Namespace != "grantify" {
		t.Errorf("applyDefaults() KeyDB.Namespace = %v, want grantify (default)", config.KeyDB.Namespace)
	}
}
