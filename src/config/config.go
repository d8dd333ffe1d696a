// Package config provides configuration management for the checkrelay application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultTravisAPIHost = "api.travis-ci.com"
	DefaultDomain        = "travis-ci.com"
	DefaultListenAddr    = ":8080"
	DefaultPendingLimit  = 2
	DefaultLogTimeout    = 30 * time.Second
	DefaultLogAttempts   = 10
	DefaultLogBackoff    = 3 * time.Second
)

// Config holds the application configuration.
type Config struct {
	// GitHubToken authenticates check run writes. Required for commands
	// that publish checks, see RequireGitHub.
	GitHubToken string
	// GitHubAppID narrows list-for-ref responses to runs issued by this app. Optional.
	GitHubAppID int64
	// TravisToken authenticates provider reads. Optional for public builds.
	TravisToken string
	// TravisAPIHost is the provider API host.
	TravisAPIHost string
	// Domain is assumed for webhook events that do not carry one.
	Domain string
	// ListenAddr is the webhook listen address.
	ListenAddr string
	// DatabaseURL selects the Postgres snapshot store when set.
	DatabaseURL string
	// RedpandaBrokers selects the Redpanda broker when non-empty.
	RedpandaBrokers []string
	// PendingLimit caps concurrent-plus-queued reconciliation passes per build.
	PendingLimit int
	// LogTimeout bounds a single log extraction attempt.
	LogTimeout time.Duration
	// LogAttempts bounds retries of incomplete log streams.
	LogAttempts int
	// LogBackoff is the fixed delay between log retries.
	LogBackoff time.Duration
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		GitHubToken:   os.Getenv("GITHUB_TOKEN"),
		TravisToken:   os.Getenv("TRAVIS_API_TOKEN"),
		TravisAPIHost: envOr("TRAVIS_API_HOST", DefaultTravisAPIHost),
		Domain:        envOr("CHECKRELAY_DOMAIN", DefaultDomain),
		ListenAddr:    envOr("CHECKRELAY_LISTEN", DefaultListenAddr),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		PendingLimit:  DefaultPendingLimit,
		LogTimeout:    DefaultLogTimeout,
		LogAttempts:   DefaultLogAttempts,
		LogBackoff:    DefaultLogBackoff,
	}

	if brokers := os.Getenv("REDPANDA_BROKERS"); brokers != "" {
		cfg.RedpandaBrokers = strings.Split(brokers, ",")
	}

	if appID := os.Getenv("GITHUB_APP_ID"); appID != "" {
		id, err := strconv.ParseInt(appID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("GITHUB_APP_ID must be numeric: %w", err)
		}
		cfg.GitHubAppID = id
	}

	if limit := os.Getenv("CHECKRELAY_PENDING_LIMIT"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("CHECKRELAY_PENDING_LIMIT must be a positive integer, got %q", limit)
		}
		cfg.PendingLimit = n
	}

	if attempts := os.Getenv("CHECKRELAY_LOG_ATTEMPTS"); attempts != "" {
		n, err := strconv.Atoi(attempts)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("CHECKRELAY_LOG_ATTEMPTS must be a positive integer, got %q", attempts)
		}
		cfg.LogAttempts = n
	}

	var err error
	if cfg.LogTimeout, err = durationOr("CHECKRELAY_LOG_TIMEOUT", DefaultLogTimeout); err != nil {
		return nil, err
	}
	if cfg.LogBackoff, err = durationOr("CHECKRELAY_LOG_BACKOFF", DefaultLogBackoff); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireGitHub fails when the configuration cannot authenticate check run
// writes. Commands that publish checks call this before starting; read-only
// commands run without a token.
func (c *Config) RequireGitHub() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN environment variable is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like \"30s\", got %q", key, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return d, nil
}
