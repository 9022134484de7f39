package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "LOG_DIR", "CORS_ALLOW_ORIGINS", "YOUTUBE_API_KEY",
		"YOUTUBE_BASE_URL", "DEFAULT_LANGUAGES", "PROVIDER_TIMEOUT", "PROVIDER_MAX_RETRIES",
		"BROWSER_TLS", "CACHE_URL", "CACHE_TTL", "SHUTDOWN_TIMEOUT", "GEMINI_API_KEY", "GEMINI_MODEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowOrigins)
	assert.Equal(t, "https://www.youtube.com", cfg.YouTubeBaseURL)
	assert.Equal(t, []string{"en"}, cfg.DefaultLanguages)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 2, cfg.ProviderMaxRetries)
	assert.False(t, cfg.BrowserTLS)
	assert.Empty(t, cfg.CacheURL)
	assert.Equal(t, 6*time.Hour, cfg.CacheTTL)
	assert.Empty(t, cfg.GeminiAPIKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_LANGUAGES", " de, en ,,")
	t.Setenv("BROWSER_TLS", "true")
	t.Setenv("YOUTUBE_BASE_URL", "http://localhost:1234/")
	t.Setenv("CACHE_URL", "redis://localhost:6379")
	t.Setenv("PROVIDER_TIMEOUT", "500ms")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"de", "en"}, cfg.DefaultLanguages)
	assert.Equal(t, 500*time.Millisecond, cfg.ProviderTimeout)
	assert.True(t, cfg.BrowserTLS)
	assert.Equal(t, "http://localhost:1234", cfg.YouTubeBaseURL)
	assert.Equal(t, "redis://localhost:6379", cfg.CacheURL)
	assert.Equal(t, "gem-key", cfg.GeminiAPIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.GeminiModel)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port not a number", "PORT", "http"},
		{"port out of range", "PORT", "70000"},
		{"bad duration", "PROVIDER_TIMEOUT", "soon"},
		{"zero timeout", "PROVIDER_TIMEOUT", "0s"},
		{"bad retries", "PROVIDER_MAX_RETRIES", "many"},
		{"negative retries", "PROVIDER_MAX_RETRIES", "-1"},
		{"bad bool", "BROWSER_TLS", "sometimes"},
		{"no languages", "DEFAULT_LANGUAGES", ","},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
