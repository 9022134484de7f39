package cache

import (
	"context"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/yt-subtitles/internal/models"
)

// Provider is the transcript lookup the decorators in this package wrap
type Provider interface {
	GetTranscript(ctx context.Context, videoID string, languages []string) ([]models.TranscriptEntry, error)
}

// Coalescing collapses concurrent lookups of the same transcript into one
// upstream call.
type Coalescing struct {
	next  Provider
	group singleflight.Group
}

// NewCoalescing wraps next with request coalescing
func NewCoalescing(next Provider) *Coalescing {
	return &Coalescing{next: next}
}

// GetTranscript joins an in-flight lookup for the same key or starts one.
// The shared call is detached from the caller's cancellation so one client
// going away does not fail the others; each caller still stops waiting
// when its own context ends.
func (c *Coalescing) GetTranscript(ctx context.Context, videoID string, languages []string) ([]models.TranscriptEntry, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(lookupKey(videoID, languages), func() (any, error) {
		return c.next.GetTranscript(shared, videoID, languages)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		entries, _ := res.Val.([]models.TranscriptEntry)
		return entries, nil
	}
}

func lookupKey(videoID string, languages []string) string {
	return videoID + ":" + strings.Join(languages, ",")
}
