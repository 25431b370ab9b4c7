package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/maltedev/catalog-price-scraper/internal/browser"
	"github.com/maltedev/catalog-price-scraper/internal/retry"
)

const (
	BackendPlaywright = "playwright"
	BackendHTTP       = "http"
)

type Config struct {
	Server  ServerConfig
	Scraper ScraperConfig
	Browser BrowserConfig
	Redis   RedisConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	// Workers is the pool width; 0 means one per CPU.
	Workers               int
	MaxAttempts           int
	RetryBackoff          time.Duration
	NavigationTimeout     time.Duration
	PriceWaitUntil        string
	AvailabilityWaitUntil string
	Backend               string
}

type BrowserConfig struct {
	Headless       bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

// RedisConfig controls outcome publishing. An empty Addr disables it.
type RedisConfig struct {
	Addr               string
	Password           string
	DB                 int
	PriceStream        string
	AvailabilityStream string
	MaxLen             int64
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment, after loading a .env
// file from the working directory when there is one. Variables already set
// in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	defaults := browser.DefaultOptions()
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Scraper: ScraperConfig{
			Workers:               getIntOrDefault("SCRAPER_WORKERS", 0),
			MaxAttempts:           getIntOrDefault("SCRAPER_MAX_ATTEMPTS", retry.DefaultMaxAttempts),
			RetryBackoff:          getDurationOrDefault("SCRAPER_RETRY_BACKOFF", retry.DefaultBackoff),
			NavigationTimeout:     getDurationOrDefault("SCRAPER_NAVIGATION_TIMEOUT", 30*time.Second),
			PriceWaitUntil:        getEnvOrDefault("SCRAPER_PRICE_WAIT_UNTIL", string(browser.WaitLoad)),
			AvailabilityWaitUntil: getEnvOrDefault("SCRAPER_AVAILABILITY_WAIT_UNTIL", string(browser.WaitNetworkIdle)),
			Backend:               getEnvOrDefault("SCRAPER_BACKEND", BackendPlaywright),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaults.UserAgent),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", defaults.ViewportWidth),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", defaults.ViewportHeight),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", defaults.AcceptLanguage),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", defaults.TimezoneID),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", defaults.Locale),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY_SERVER", ""),
		},
		Redis: RedisConfig{
			Addr:               getEnvOrDefault("REDIS_ADDR", ""),
			Password:           getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:                 getIntOrDefault("REDIS_DB", 0),
			PriceStream:        getEnvOrDefault("REDIS_PRICE_STREAM", "stream:product_prices"),
			AvailabilityStream: getEnvOrDefault("REDIS_AVAILABILITY_STREAM", "stream:product_availability"),
			MaxLen:             int64(getIntOrDefault("REDIS_STREAM_MAX_LEN", 0)),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.Workers < 0 {
		return fmt.Errorf("SCRAPER_WORKERS cannot be negative")
	}

	if c.Scraper.MaxAttempts < 1 {
		return fmt.Errorf("SCRAPER_MAX_ATTEMPTS must be at least 1")
	}

	if c.Scraper.RetryBackoff < 0 {
		return fmt.Errorf("SCRAPER_RETRY_BACKOFF cannot be negative")
	}

	if c.Scraper.NavigationTimeout <= 0 {
		return fmt.Errorf("SCRAPER_NAVIGATION_TIMEOUT must be positive")
	}

	if _, err := browser.ParseWaitCondition(c.Scraper.PriceWaitUntil); err != nil {
		return fmt.Errorf("SCRAPER_PRICE_WAIT_UNTIL: %w", err)
	}

	if _, err := browser.ParseWaitCondition(c.Scraper.AvailabilityWaitUntil); err != nil {
		return fmt.Errorf("SCRAPER_AVAILABILITY_WAIT_UNTIL: %w", err)
	}

	switch c.Scraper.Backend {
	case BackendPlaywright, BackendHTTP:
	default:
		return fmt.Errorf("unknown SCRAPER_BACKEND %q", c.Scraper.Backend)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.Logging.Format)
	}

	return nil
}

// RetryPolicy returns the per-URL retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.Scraper.MaxAttempts, Backoff: c.Scraper.RetryBackoff}
}

// BrowserOptions returns the launcher options for either backend.
func (c *Config) BrowserOptions() *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Browser.Headless
	opts.Timeout = c.Scraper.NavigationTimeout
	opts.UserAgent = c.Browser.UserAgent
	opts.ViewportWidth = c.Browser.ViewportWidth
	opts.ViewportHeight = c.Browser.ViewportHeight
	opts.AcceptLanguage = c.Browser.AcceptLanguage
	opts.TimezoneID = c.Browser.TimezoneID
	opts.Locale = c.Browser.Locale
	opts.ProxyServer = c.Browser.ProxyServer
	return opts
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
