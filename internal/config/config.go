package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Scrape   ScrapeConfig
	LLM      LLMConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type BrowserConfig struct {
	Driver            string
	Headless          bool
	ImplicitWait      time.Duration
	NavigationTimeout time.Duration
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
}

type ScrapeConfig struct {
	WaitTimeout  time.Duration
	Timeout      time.Duration
	MaxPages     int
	PageDelayMin time.Duration
	PageDelayMax time.Duration
}

type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type CacheConfig struct {
	Backend string
	TTL     time.Duration
	Size    int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	URL string
}

type LoggingConfig struct {
	Level  string
	Format string
}

const (
	CacheOff    = "off"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8000"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Browser: BrowserConfig{
			Driver:            strings.ToLower(getEnvOrDefault("BROWSER_DRIVER", "playwright")),
			Headless:          getBoolOrDefault("BROWSER_HEADLESS", true),
			ImplicitWait:      getDurationOrDefault("BROWSER_IMPLICIT_WAIT", 10*time.Second),
			NavigationTimeout: getDurationOrDefault("BROWSER_NAVIGATION_TIMEOUT", 30*time.Second),
			UserAgent:         getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			ViewportWidth:     getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight:    getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
		},
		Scrape: ScrapeConfig{
			WaitTimeout:  getDurationOrDefault("SCRAPE_WAIT_TIMEOUT", 10*time.Second),
			Timeout:      getDurationOrDefault("SCRAPE_TIMEOUT", 5*time.Minute),
			MaxPages:     getIntOrDefault("SCRAPE_MAX_PAGES", 0),
			PageDelayMin: getDurationOrDefault("SCRAPE_PAGE_DELAY_MIN", 0),
			PageDelayMax: getDurationOrDefault("SCRAPE_PAGE_DELAY_MAX", 0),
		},
		LLM: LLMConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(getEnvOrDefault("SELECTOR_CACHE", CacheOff)),
			TTL:     getDurationOrDefault("SELECTOR_CACHE_TTL", time.Hour),
			Size:    getIntOrDefault("SELECTOR_CACHE_SIZE", 256),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("OPENAI_API_KEY environment variable is required")
	}

	switch c.Browser.Driver {
	case "playwright", "rod", "static":
	default:
		return fmt.Errorf("BROWSER_DRIVER must be one of playwright, rod, static (got %q)", c.Browser.Driver)
	}

	switch c.Cache.Backend {
	case CacheOff, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("SELECTOR_CACHE must be one of off, memory, redis (got %q)", c.Cache.Backend)
	}

	if c.Cache.Backend == CacheMemory && c.Cache.Size < 1 {
		return fmt.Errorf("SELECTOR_CACHE_SIZE must be at least 1")
	}

	if c.Scrape.MaxPages < 0 {
		return fmt.Errorf("SCRAPE_MAX_PAGES cannot be negative")
	}

	if c.Scrape.PageDelayMin > c.Scrape.PageDelayMax {
		return fmt.Errorf("SCRAPE_PAGE_DELAY_MIN cannot be greater than SCRAPE_PAGE_DELAY_MAX")
	}

	if c.Scrape.Timeout <= 0 || c.Scrape.WaitTimeout <= 0 {
		return fmt.Errorf("SCRAPE_TIMEOUT and SCRAPE_WAIT_TIMEOUT must be positive")
	}

	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// WriteTimeout leaves room for a full scrape before the response is cut off.
func (c *Config) WriteTimeout() time.Duration {
	return c.Scrape.Timeout + c.Browser.NavigationTimeout + 30*time.Second
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

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
