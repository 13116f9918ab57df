package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.AppEnv != EnvDevelopment {
		t.Errorf("Expected APP_ENV 'development', got '%s'", cfg.AppEnv)
	}
	if cfg.Port != 5000 {
		t.Errorf("Expected port 5000, got %d", cfg.Port)
	}
	if cfg.TokenStore != TokenStoreMemory {
		t.Errorf("Expected memory token store in development, got '%s'", cfg.TokenStore)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", cfg.MaxRetries)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %s", cfg.RequestTimeout)
	}
	if cfg.CredentialProfile != "default" {
		t.Errorf("Expected profile 'default', got '%s'", cfg.CredentialProfile)
	}
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"APP_ENV":              "production",
		"PORT":                 "8080",
		"REQUEST_TIMEOUT":      "5s",
		"ROOT_FOLDER_ID":       "root-123",
		"CORS_ALLOWED_ORIGINS": "https://a.example,https://b.example",
		"LOG_LEVEL":            "debug",
	})
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, TokenStoreKeyring, cfg.TokenStore)
	assert.Equal(t, ":8080", cfg.ListenAddr())
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "root-123", cfg.RootFolderID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadFrom_ParseError(t *testing.T) {
	_, err := LoadFrom(map[string]string{"PORT": "not-a-number"})
	require.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"valid default config", func(*Config) {}, ""},
		{"invalid app env", func(c *Config) { c.AppEnv = "staging" }, "invalid APP_ENV"},
		{"invalid token store", func(c *Config) { c.TokenStore = "vault" }, "invalid TOKEN_STORE"},
		{"memory store in production", func(c *Config) {
			c.AppEnv = EnvProduction
			c.TokenStore = TokenStoreMemory
		}, "not allowed in production"},
		{"memory store in production with inline token", func(c *Config) {
			c.AppEnv = EnvProduction
			c.TokenStore = TokenStoreMemory
			c.OAuthTokenJSON = `{"refresh_token":"r"}`
		}, ""},
		{"file store without dir", func(c *Config) {
			c.TokenStore = TokenStorePlainFile
			c.CredentialsDir = ""
		}, "CREDENTIALS_DIR is required"},
		{"port too high", func(c *Config) { c.Port = 70000 }, "port must be between"},
		{"timeout too short", func(c *Config) { c.RequestTimeout = time.Millisecond }, "request timeout"},
		{"too many retries", func(c *Config) { c.MaxRetries = 11 }, "max retries"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max retries"},
		{"retry delay too small", func(c *Config) { c.RetryBaseDelay = time.Millisecond }, "retry base delay"},
		{"zero drive qps", func(c *Config) { c.DriveQPS = 0 }, "drive rate limit"},
		{"rate limit disabled", func(c *Config) {
			c.RateLimitRPS = 0
			c.RateLimitBurst = 0
		}, ""},
		{"rate limit without burst", func(c *Config) { c.RateLimitBurst = 0 }, "incoming rate limit"},
		{"invalid log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.CredentialsDir = t.TempDir()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestRequireClientSecrets(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.RequireClientSecrets())

	cfg.ClientSecretsJSON = `{"installed":{}}`
	assert.NoError(t, cfg.RequireClientSecrets())
}
