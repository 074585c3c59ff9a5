// Package config provides configuration management for garnix-insights.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DefaultAPIURL is the base URL of the public Garnix API.
const DefaultAPIURL = "https://garnix.io/api"

// Config holds the application configuration. Every field is optional in the
// environment and has a documented default.
type Config struct {
	// Token is the default Garnix JWT, used when neither a flag nor the
	// request carries one.
	Token string `envconfig:"GARNIX_JWT_TOKEN"`

	// APIURL is the base URL of the Garnix API.
	APIURL string `envconfig:"GARNIX_API_URL" default:"https://garnix.io/api"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"GARNIX_LOG_LEVEL" default:"info"`

	BindAddress string `envconfig:"GARNIX_BIND_ADDRESS" default:"127.0.0.1"`
	Port        int    `envconfig:"GARNIX_PORT" default:"8080"`

	// RequestTimeout bounds a single outbound HTTP attempt.
	RequestTimeout time.Duration `envconfig:"GARNIX_REQUEST_TIMEOUT" default:"30s"`

	// MaxConcurrentRequests caps in-flight calls to the Garnix API.
	MaxConcurrentRequests int `envconfig:"GARNIX_MAX_CONCURRENT_REQUESTS" default:"16"`

	// LogExcerptLines is how many log lines the human format shows per failed package.
	LogExcerptLines int `envconfig:"GARNIX_LOG_EXCERPT_LINES" default:"20"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that envconfig cannot express.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("GARNIX_API_URL must be an absolute URL, got %q", c.APIURL)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GARNIX_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("GARNIX_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("GARNIX_MAX_CONCURRENT_REQUESTS must be positive, got %d", c.MaxConcurrentRequests)
	}
	if c.LogExcerptLines < 0 {
		return fmt.Errorf("GARNIX_LOG_EXCERPT_LINES must not be negative, got %d", c.LogExcerptLines)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}
