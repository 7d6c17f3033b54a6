// Package config loads the client configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/wolfeidau/backoffice/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL          = "https://api.backoffice.example.com"
	DefaultRefreshPath     = "/api/auth/token/refresh"
	DefaultRefreshInterval = 30 * time.Minute
	DefaultRequestTimeout  = 30 * time.Second

	minRefreshInterval = time.Minute
	maxRefreshInterval = 24 * time.Hour
)

// Config is the client configuration.
type Config struct {
	// APIURL is the base URL of the back-office REST API.
	APIURL string `yaml:"api_url" env:"BACKOFFICE_API_URL"`

	// RefreshURL is the absolute token refresh endpoint. It may live on a
	// different host than the API. Defaults to APIURL + DefaultRefreshPath.
	RefreshURL string `yaml:"refresh_url" env:"BACKOFFICE_REFRESH_URL"`

	RefreshInterval time.Duration `yaml:"refresh_interval" env:"BACKOFFICE_REFRESH_INTERVAL"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"BACKOFFICE_REQUEST_TIMEOUT"`

	// Platform and OSVersion select the notification permission strategy.
	Platform  models.Platform `yaml:"platform" env:"BACKOFFICE_PLATFORM"`
	OSVersion int             `yaml:"os_version" env:"BACKOFFICE_OS_VERSION"`

	// PushToken is a fixed device token registered by hosts without a push provider.
	PushToken string `yaml:"push_token" env:"BACKOFFICE_PUSH_TOKEN"`

	StoreDir string `yaml:"store_dir" env:"BACKOFFICE_STORE_DIR"`

	// Cache enables HTTP caching of GET responses; CacheDir selects a disk cache.
	Cache    bool   `yaml:"cache" env:"BACKOFFICE_CACHE"`
	CacheDir string `yaml:"cache_dir" env:"BACKOFFICE_CACHE_DIR"`

	Debug bool `yaml:"debug" env:"BACKOFFICE_DEBUG"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		APIURL:          DefaultAPIURL,
		RefreshInterval: DefaultRefreshInterval,
		RequestTimeout:  DefaultRequestTimeout,
		Platform:        models.PlatformAndroid,
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides, then sanitizes and validates the result. A missing file is not an
// error; an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.Sanitize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Sanitize applies guardrails and derived defaults.
func (c *Config) Sanitize() {
	c.APIURL = strings.TrimSuffix(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.RefreshURL == "" {
		c.RefreshURL = c.APIURL + DefaultRefreshPath
	}

	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	c.RefreshInterval = min(max(c.RefreshInterval, minRefreshInterval), maxRefreshInterval)

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.OSVersion < 0 {
		c.OSVersion = 0
	}
	if c.Platform == "" {
		c.Platform = models.PlatformAndroid
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"api_url": c.APIURL, "refresh_url": c.RefreshURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s %q: an absolute URL is required", name, raw)
		}
	}

	switch c.Platform {
	case models.PlatformAndroid, models.PlatformIOS:
	default:
		return fmt.Errorf("invalid platform: %q (valid options: android, ios)", c.Platform)
	}

	return nil
}
