package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dl-alexandre/batfiles/internal/logging"
)

const (
	// ConfigDirName is the directory under the user config dir used for file token stores
	ConfigDirName = "batfiles"
)

// Environment selects development or production behavior
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// TokenStore names a refresh-token storage backend
type TokenStore string

const (
	TokenStoreMemory        TokenStore = "memory"
	TokenStoreKeyring       TokenStore = "keyring"
	TokenStoreEncryptedFile TokenStore = "encrypted-file"
	TokenStorePlainFile     TokenStore = "plain-file"
)

// Config holds service configuration, read from the environment
type Config struct {
	// ClientSecretsJSON is the OAuth client blob ("installed" or "web")
	ClientSecretsJSON string `env:"CLIENT_SECRETS_JSON"`

	AppEnv Environment `env:"APP_ENV" envDefault:"development"`

	// OAuthTokenJSON is an inline token blob; when set no token store is read
	OAuthTokenJSON string `env:"OAUTH_TOKEN_JSON"`

	// TokenStore defaults to memory in development and keyring in production
	TokenStore        TokenStore `env:"TOKEN_STORE"`
	CredentialsDir    string     `env:"CREDENTIALS_DIR"`
	CredentialProfile string     `env:"CREDENTIAL_PROFILE" envDefault:"default"`

	// RootFolderID restricts folder search to direct children of this folder
	RootFolderID string `env:"ROOT_FOLDER_ID"`

	Port            int           `env:"PORT" envDefault:"5000"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`

	DriveQPS   float64 `env:"DRIVE_QPS" envDefault:"10"`
	DriveBurst int     `env:"DRIVE_BURST" envDefault:"20"`

	// RateLimitRPS of 0 disables the incoming per-IP limiter
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// DefaultConfig returns the configuration with every default applied and no environment read
func DefaultConfig() *Config {
	cfg, err := parse(env.Options{Environment: map[string]string{}})
	if err != nil {
		panic(fmt.Sprintf("config defaults do not parse: %v", err))
	}
	return cfg
}

// Load reads configuration from the process environment and validates it
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the process environment
func LoadFrom(environ map[string]string) (*Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (*Config, error) {
	cfg, err := parse(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.applyDerivedDefaults()
	return cfg, nil
}

func (c *Config) applyDerivedDefaults() {
	if c.TokenStore == "" {
		if c.IsProduction() {
			c.TokenStore = TokenStoreKeyring
		} else {
			c.TokenStore = TokenStoreMemory
		}
	}
	if c.CredentialsDir == "" {
		if dir, err := DefaultCredentialsDir(); err == nil {
			c.CredentialsDir = dir
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.AppEnv != EnvDevelopment && c.AppEnv != EnvProduction {
		return fmt.Errorf("invalid APP_ENV: %s (must be 'development' or 'production')", c.AppEnv)
	}

	switch c.TokenStore {
	case TokenStoreMemory, TokenStoreKeyring, TokenStoreEncryptedFile, TokenStorePlainFile:
	default:
		return fmt.Errorf("invalid TOKEN_STORE: %s (must be one of: memory, keyring, encrypted-file, plain-file)", c.TokenStore)
	}
	if c.IsProduction() && c.TokenStore == TokenStoreMemory && c.OAuthTokenJSON == "" {
		return fmt.Errorf("TOKEN_STORE=memory is not allowed in production without OAUTH_TOKEN_JSON")
	}
	if (c.TokenStore == TokenStoreEncryptedFile || c.TokenStore == TokenStorePlainFile) && c.CredentialsDir == "" {
		return fmt.Errorf("CREDENTIALS_DIR is required for TOKEN_STORE=%s", c.TokenStore)
	}
	if c.CredentialProfile == "" {
		return fmt.Errorf("CREDENTIAL_PROFILE must not be empty")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", c.Port)
	}
	if c.RequestTimeout < time.Second || c.RequestTimeout > time.Hour {
		return fmt.Errorf("request timeout must be between 1s and 1h, got: %s", c.RequestTimeout)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must be non-negative, got: %s", c.ShutdownTimeout)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}
	if c.RetryBaseDelay < 100*time.Millisecond || c.RetryBaseDelay > time.Minute {
		return fmt.Errorf("retry base delay must be between 100ms and 60s, got: %s", c.RetryBaseDelay)
	}

	if c.DriveQPS <= 0 || c.DriveBurst < 1 {
		return fmt.Errorf("drive rate limit must be positive, got qps=%v burst=%d", c.DriveQPS, c.DriveBurst)
	}
	if c.RateLimitRPS < 0 || (c.RateLimitRPS > 0 && c.RateLimitBurst < 1) {
		return fmt.Errorf("invalid incoming rate limit: rps=%v burst=%d", c.RateLimitRPS, c.RateLimitBurst)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// RequireClientSecrets reports an error when no OAuth client is configured
func (c *Config) RequireClientSecrets() error {
	if c.ClientSecretsJSON == "" {
		return fmt.Errorf("CLIENT_SECRETS_JSON is not set")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// ListenAddr returns the address the HTTP server binds to
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GetLogLevel returns the parsed log level, INFO when invalid
func (c *Config) GetLogLevel() logging.LogLevel {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// DefaultCredentialsDir returns ~/.config/batfiles
func DefaultCredentialsDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", herr)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, ConfigDirName), nil
}
