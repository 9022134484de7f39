package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/yt-subtitles/internal/models"
)

const (
	maxWatchPageBytes = 6 << 20
	maxTimedTextBytes = 2 << 20

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// TranscriptProvider retrieves the transcript of a video
type TranscriptProvider interface {
	GetTranscript(ctx context.Context, videoID string, languages []string) ([]models.TranscriptEntry, error)
}

// HTTPClient is the subset of *http.Client the provider needs
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// VideoChecker confirms a video exists before the watch page is scraped
type VideoChecker interface {
	CheckVideo(ctx context.Context, videoID string) error
}

// ProviderConfig configures a YouTubeTranscriptProvider
type ProviderConfig struct {
	BaseURL    string
	Client     HTTPClient
	Videos     VideoChecker
	MaxRetries int
	RetryWait  time.Duration
	Timeout    time.Duration
	Logger     *slog.Logger
}

// YouTubeTranscriptProvider scrapes caption tracks from the watch page and
// downloads them in timedtext format
type YouTubeTranscriptProvider struct {
	baseURL    string
	client     HTTPClient
	videos     VideoChecker
	maxRetries int
	retryWait  time.Duration
	timeout    time.Duration
	logger     *slog.Logger
}

// NewYouTubeTranscriptProvider creates a new transcript provider
func NewYouTubeTranscriptProvider(cfg ProviderConfig) *YouTubeTranscriptProvider {
	p := &YouTubeTranscriptProvider{
		baseURL:    cfg.BaseURL,
		client:     cfg.Client,
		videos:     cfg.Videos,
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
	if p.baseURL == "" {
		p.baseURL = "https://www.youtube.com"
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.retryWait <= 0 {
		p.retryWait = 500 * time.Millisecond
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// GetTranscript fetches the transcript of videoID in the first available
// language of languages
func (p *YouTubeTranscriptProvider) GetTranscript(ctx context.Context, videoID string, languages []string) ([]models.TranscriptEntry, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if p.videos != nil {
		if err := p.videos.CheckVideo(ctx, videoID); err != nil {
			if errors.Is(err, ErrVideoUnavailable) {
				return nil, err
			}
			// The Data API is advisory; the watch page is authoritative
			p.logger.Warn("video check failed, scraping anyway", "video_id", videoID, "err", err)
		}
	}

	page, err := p.fetchWatchPage(ctx, videoID)
	if err != nil {
		return nil, err
	}

	player, err := extractPlayerResponse(page)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	tracks, err := captionTracks(player)
	if err != nil {
		return nil, err
	}

	track, err := selectTrack(tracks, languages)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("caption track selected",
		"video_id", videoID,
		"language", track.LanguageCode,
		"generated", track.Generated(),
	)

	body, err := p.get(ctx, timedTextURL(track.BaseURL), "", maxTimedTextBytes)
	if err != nil {
		return nil, fmt.Errorf("timedtext: %w", err)
	}

	entries, err := parseTimedText(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return entries, nil
}

// fetchWatchPage downloads the watch page, passing the consent interstitial
// once when YouTube serves it
func (p *YouTubeTranscriptProvider) fetchWatchPage(ctx context.Context, videoID string) ([]byte, error) {
	watchURL := p.baseURL + "/watch?v=" + url.QueryEscape(videoID)

	page, err := p.get(ctx, watchURL, "", maxWatchPageBytes)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}

	if cookie, ok := consentCookie(page); ok {
		page, err = p.get(ctx, watchURL, cookie, maxWatchPageBytes)
		if err != nil {
			return nil, fmt.Errorf("watch page after consent: %w", err)
		}
		if _, again := consentCookie(page); again {
			return nil, fmt.Errorf("%w: consent cookie rejected", ErrProviderUnavailable)
		}
	}

	if bytes.Contains(page, recaptchaMarker) {
		return nil, ErrRateLimited
	}
	return page, nil
}

// get performs a GET with retries on transient failures. 429 and other 4xx
// responses are not retried.
func (p *YouTubeTranscriptProvider) get(ctx context.Context, target, cookie string, limit int64) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return backoff.Permanent(ErrRateLimited)
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: upstream status %d", ErrProviderUnavailable, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("%w: upstream status %d", ErrProviderUnavailable, resp.StatusCode))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
		}
		body = data
		return nil
	}

	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.InitialInterval = p.retryWait
	retryBackoff.MaxInterval = 10 * p.retryWait
	retryBackoff.Multiplier = 2.0
	retryBackoff.RandomizationFactor = 0.2
	retryBackoff.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		p.logger.Warn("youtube request failed, retrying", "url", target, "err", err, "retry_in", wait)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(retryBackoff, uint64(p.maxRetries)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

// DataAPIChecker checks videos through the YouTube Data API v3
type DataAPIChecker struct {
	service *youtube.Service
}

// NewDataAPIChecker creates a new Data API backed video checker
func NewDataAPIChecker(ctx context.Context, apiKey string, opts ...option.ClientOption) (*DataAPIChecker, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %v", err)
	}
	return &DataAPIChecker{service: service}, nil
}

// CheckVideo reports ErrVideoUnavailable for unknown or private videos.
// The caption flag of contentDetails only covers uploaded tracks, so
// auto-generated captions are left for the watch page to reveal.
func (d *DataAPIChecker) CheckVideo(ctx context.Context, videoID string) error {
	response, err := d.service.Videos.List([]string{"status"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return fmt.Errorf("%w: %v", ErrVideoUnavailable, err)
		}
		return fmt.Errorf("error fetching video details: %w", err)
	}

	if len(response.Items) == 0 {
		return fmt.Errorf("%w: no such video %s", ErrVideoUnavailable, videoID)
	}

	video := response.Items[0]
	if video.Status != nil && video.Status.PrivacyStatus == "private" {
		return fmt.Errorf("%w: video %s is private", ErrVideoUnavailable, videoID)
	}
	return nil
}
