package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the reelscraper server and CLI.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Progress ProgressConfig
	Browser  BrowserConfig
	Scraper  ScraperConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	APIKeyHash         string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type StorageConfig struct {
	// Backend is "file" or "postgres".
	Backend   string
	OutputDir string
}

type ProgressConfig struct {
	// Backend is "memory" or "redis".
	Backend string
	TTL     time.Duration
}

type BrowserConfig struct {
	// Driver is "chromium" or "sim".
	Driver     string
	Headless   bool
	Bin        string
	ControlURL string
	Locale     string
	SimSiteDir string
}

type ScraperConfig struct {
	BaseURL          string
	Username         string
	Password         string
	Wait             time.Duration
	SessionStatePath string
	DiagnosticsDir   string
	SelectorsFile    string
	NavRetries       int
	NavRetryDelay    time.Duration
	CounterLocale    string
	MinCaptionLength int
}

type JobsConfig struct {
	MaxConcurrent    int
	DefaultItemLimit int
	MaxItemLimit     int
}

var (
	validStorage  = map[string]bool{"file": true, "postgres": true}
	validProgress = map[string]bool{"memory": true, "redis": true}
	validDrivers  = map[string]bool{"chromium": true, "sim": true}
	validLocales  = map[string]bool{"en": true, "eu": true, "raw": true}
)

// Load reads configuration from environment variables and returns a validated Config.
// Scraper credentials are not required here; their absence is reported when a
// login is actually attempted.
func Load() (*Config, error) {
	wait := envSeconds("WAIT_SEC", 500*time.Millisecond)
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("PORT", 8080),
			Env:                envString("APP_ENV", "development"),
			APIKeyHash:         os.Getenv("API_KEY_HASH"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			Backend:   envString("STORAGE_BACKEND", "file"),
			OutputDir: envString("OUTPUT_DIR", "output"),
		},
		Progress: ProgressConfig{
			Backend: envString("PROGRESS_BACKEND", "memory"),
			TTL:     envDuration("PROGRESS_TTL", 24*time.Hour),
		},
		Browser: BrowserConfig{
			Driver:     envString("BROWSER_DRIVER", "chromium"),
			Headless:   envBool("BROWSER_HEADLESS", false),
			Bin:        os.Getenv("BROWSER_BIN"),
			ControlURL: os.Getenv("BROWSER_CONTROL_URL"),
			Locale:     envString("BROWSER_LOCALE", "en-US"),
			SimSiteDir: os.Getenv("SIM_SITE_DIR"),
		},
		Scraper: ScraperConfig{
			BaseURL:          envString("BASE_URL", "https://www.instagram.com"),
			Username:         os.Getenv("INSTA_USER"),
			Password:         os.Getenv("INSTA_PASS"),
			Wait:             wait,
			SessionStatePath: envString("SESSION_STATE_PATH", "state/session_state.json"),
			DiagnosticsDir:   envString("DIAGNOSTICS_DIR", "debug"),
			SelectorsFile:    os.Getenv("SELECTORS_FILE"),
			NavRetries:       envInt("NAV_RETRIES", 3),
			NavRetryDelay:    envDuration("NAV_RETRY_DELAY", 3*wait),
			CounterLocale:    envString("COUNTER_LOCALE", "raw"),
			MinCaptionLength: envInt("MIN_CAPTION_LENGTH", 20),
		},
		Jobs: JobsConfig{
			MaxConcurrent:    envInt("MAX_CONCURRENT_JOBS", 2),
			DefaultItemLimit: envInt("DEFAULT_ITEM_LIMIT", 10),
			MaxItemLimit:     envInt("MAX_ITEM_LIMIT", 100),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if !validStorage[c.Storage.Backend] {
		return fmt.Errorf("STORAGE_BACKEND must be one of file, postgres; got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND is postgres")
	}

	if !validProgress[c.Progress.Backend] {
		return fmt.Errorf("PROGRESS_BACKEND must be one of memory, redis; got %q", c.Progress.Backend)
	}
	if c.Progress.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when PROGRESS_BACKEND is redis")
	}

	if !validDrivers[c.Browser.Driver] {
		return fmt.Errorf("BROWSER_DRIVER must be one of chromium, sim; got %q", c.Browser.Driver)
	}
	if c.Browser.Driver == "sim" && c.Browser.SimSiteDir == "" {
		return fmt.Errorf("SIM_SITE_DIR is required when BROWSER_DRIVER is sim")
	}

	if !strings.HasPrefix(c.Scraper.BaseURL, "http://") && !strings.HasPrefix(c.Scraper.BaseURL, "https://") {
		return fmt.Errorf("BASE_URL must start with http:// or https://, got %q", c.Scraper.BaseURL)
	}
	if c.Scraper.Wait < 0 {
		return fmt.Errorf("WAIT_SEC must not be negative")
	}
	if c.Scraper.NavRetries < 1 {
		return fmt.Errorf("NAV_RETRIES must be at least 1, got %d", c.Scraper.NavRetries)
	}
	if !validLocales[c.Scraper.CounterLocale] {
		return fmt.Errorf("COUNTER_LOCALE must be one of en, eu, raw; got %q", c.Scraper.CounterLocale)
	}

	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", c.Jobs.MaxConcurrent)
	}
	if c.Jobs.MaxItemLimit < 1 {
		return fmt.Errorf("MAX_ITEM_LIMIT must be at least 1, got %d", c.Jobs.MaxItemLimit)
	}
	if c.Jobs.DefaultItemLimit < 1 || c.Jobs.DefaultItemLimit > c.Jobs.MaxItemLimit {
		return fmt.Errorf("DEFAULT_ITEM_LIMIT must be between 1 and MAX_ITEM_LIMIT (%d), got %d",
			c.Jobs.MaxItemLimit, c.Jobs.DefaultItemLimit)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envSeconds reads a possibly fractional number of seconds.
func envSeconds(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs * float64(time.Second))
}
