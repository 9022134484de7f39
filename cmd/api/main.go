package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"google.golang.org/genai"

	"github.com/yt-subtitles/internal/api"
	"github.com/yt-subtitles/internal/cache"
	"github.com/yt-subtitles/internal/config"
	"github.com/yt-subtitles/internal/logging"
	"github.com/yt-subtitles/internal/metrics"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	httpClient, err := api.NewHTTPClient(cfg.BrowserTLS, cfg.ProviderTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize HTTP client: %v", err)
	}

	// Initialize the optional Data API pre-check
	var videos api.VideoChecker
	if cfg.YouTubeAPIKey != "" {
		checker, err := api.NewDataAPIChecker(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize YouTube API: %v", err)
		}
		videos = checker
	}

	var provider api.TranscriptProvider = api.NewYouTubeTranscriptProvider(api.ProviderConfig{
		BaseURL:    cfg.YouTubeBaseURL,
		Client:     httpClient,
		Videos:     videos,
		MaxRetries: cfg.ProviderMaxRetries,
		Timeout:    cfg.ProviderTimeout,
		Logger:     logger,
	})
	provider = cache.NewCoalescing(provider)

	// Initialize transcript cache
	if cfg.CacheURL != "" {
		cached, err := cache.NewValkey(cfg.CacheURL, cfg.CacheTTL, provider, logger, m)
		if err != nil {
			log.Fatalf("Failed to initialize cache: %v", err)
		}
		defer cached.Close()
		provider = cached
	}

	server := api.NewServer(cfg, provider, logger, m)

	// Initialize the optional transcript assistant
	if cfg.GeminiAPIKey != "" {
		generator, err := api.NewGeminiGenerator(ctx, &genai.ClientConfig{APIKey: cfg.GeminiAPIKey}, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini client: %v", err)
		}
		server.EnableAssistant(generator)
	}

	logger.Info("configuration loaded",
		"port", cfg.Port,
		"languages", cfg.DefaultLanguages,
		"browser_tls", cfg.BrowserTLS,
		"data_api", videos != nil,
		"cache", cfg.CacheURL != "",
		"assistant", cfg.GeminiAPIKey != "",
	)

	if err := server.Run(ctx, ":"+cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
