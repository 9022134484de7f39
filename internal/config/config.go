package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidPort     = errors.New("PORT must be a number between 1 and 65535")
	ErrInvalidDuration = errors.New("duration must be positive")
)

// Config holds the application configuration
type Config struct {
	Port string

	LogLevel      string
	LogDir        string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	CORSAllowOrigins []string

	YouTubeAPIKey      string
	YouTubeBaseURL     string
	DefaultLanguages   []string
	ProviderTimeout    time.Duration
	ProviderMaxRetries int
	BrowserTLS         bool

	CacheURL string
	CacheTTL time.Duration

	GeminiAPIKey string
	GeminiModel  string

	ShutdownTimeout time.Duration
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogDir:           os.Getenv("LOG_DIR"),
		CORSAllowOrigins: splitList(getEnv("CORS_ALLOW_ORIGINS", "*")),
		YouTubeAPIKey:    os.Getenv("YOUTUBE_API_KEY"),
		YouTubeBaseURL:   strings.TrimRight(getEnv("YOUTUBE_BASE_URL", "https://www.youtube.com"), "/"),
		DefaultLanguages: splitList(getEnv("DEFAULT_LANGUAGES", "en")),
		CacheURL:         os.Getenv("CACHE_URL"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
	}

	var err error
	if cfg.LogMaxSizeMB, err = getInt("LOG_MAX_SIZE_MB", 50); err != nil {
		return nil, err
	}
	if cfg.LogMaxBackups, err = getInt("LOG_MAX_BACKUPS", 5); err != nil {
		return nil, err
	}
	if cfg.LogMaxAgeDays, err = getInt("LOG_MAX_AGE_DAYS", 14); err != nil {
		return nil, err
	}
	if cfg.ProviderMaxRetries, err = getInt("PROVIDER_MAX_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.ProviderTimeout, err = getDuration("PROVIDER_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.BrowserTLS, err = getBool("BROWSER_TLS", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%w: got %q", ErrInvalidPort, c.Port)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("%w: PROVIDER_TIMEOUT", ErrInvalidDuration)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: SHUTDOWN_TIMEOUT", ErrInvalidDuration)
	}
	if c.CacheURL != "" && c.CacheTTL <= 0 {
		return fmt.Errorf("%w: CACHE_TTL", ErrInvalidDuration)
	}
	if c.ProviderMaxRetries < 0 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must not be negative: %d", c.ProviderMaxRetries)
	}
	if len(c.DefaultLanguages) == 0 {
		return fmt.Errorf("DEFAULT_LANGUAGES must name at least one language")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// splitList splits a comma separated value, dropping blanks
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
