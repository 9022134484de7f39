package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/valkey-io/valkey-go"

	"github.com/yt-subtitles/internal/models"
)

const keyPrefix = "subtitles:v1:"

// Observer receives cache lookup results ("hit", "miss", "error")
type Observer interface {
	ObserveCache(result string)
}

// Valkey caches successful transcripts in valkey for a fixed TTL. Cache
// failures are logged and never fail a lookup; provider errors are not
// cached.
type Valkey struct {
	client   valkey.Client
	next     Provider
	ttl      time.Duration
	logger   *slog.Logger
	observer Observer
}

// NewValkey connects to the valkey server at rawURL (redis:// or rediss://)
// and wraps next with a read-through cache
func NewValkey(rawURL string, ttl time.Duration, next Provider, logger *slog.Logger, observer Observer) (*Valkey, error) {
	opt, err := valkey.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse cache url: %w", err)
	}
	opt.DisableCache = true

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Valkey{
		client:   client,
		next:     next,
		ttl:      ttl,
		logger:   logger,
		observer: observer,
	}, nil
}

// GetTranscript serves the transcript from valkey when present, otherwise
// asks the wrapped provider and stores the result
func (v *Valkey) GetTranscript(ctx context.Context, videoID string, languages []string) ([]models.TranscriptEntry, error) {
	key := keyPrefix + lookupKey(videoID, languages)

	entries, ok := v.load(ctx, key)
	if ok {
		return entries, nil
	}

	entries, err := v.next.GetTranscript(ctx, videoID, languages)
	if err != nil {
		return nil, err
	}

	v.store(ctx, key, entries)
	return entries, nil
}

func (v *Valkey) load(ctx context.Context, key string) ([]models.TranscriptEntry, bool) {
	data, err := v.client.Do(ctx, v.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			v.observe("miss")
		} else {
			v.observe("error")
			v.logger.Warn("transcript cache read failed", "key", key, "err", err)
		}
		return nil, false
	}

	var entries []models.TranscriptEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		v.observe("error")
		v.logger.Warn("transcript cache entry corrupt", "key", key, "err", err)
		return nil, false
	}
	v.observe("hit")
	return entries, true
}

func (v *Valkey) store(ctx context.Context, key string, entries []models.TranscriptEntry) {
	if entries == nil {
		entries = []models.TranscriptEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		v.logger.Warn("transcript cache encode failed", "key", key, "err", err)
		return
	}

	cmd := v.client.B().Set().Key(key).Value(valkey.BinaryString(data)).Ex(v.ttl).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		v.logger.Warn("transcript cache write failed", "key", key, "err", err)
	}
}

func (v *Valkey) observe(result string) {
	if v.observer != nil {
		v.observer.ObserveCache(result)
	}
}

// Close closes the valkey connection
func (v *Valkey) Close() {
	if v != nil && v.client != nil {
		v.client.Close()
	}
}
