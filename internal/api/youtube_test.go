package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/yt-subtitles/internal/logging"
	"github.com/yt-subtitles/internal/models"
)

const timedTextFixture = `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
	`<text start="0" dur="1">hi</text>` +
	`<text start="1" dur="2.5">there &amp;amp; back</text>` +
	`</transcript>`

func watchPage(baseURL string) string {
	return `<html><body><script>var ytInitialPlayerResponse = {"playabilityStatus":{"status":"OK"},` +
		`"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[` +
		`{"baseUrl":"` + baseURL + `/api/timedtext?v=abc123&lang=en&kind=asr&fmt=srv3","languageCode":"en","kind":"asr"},` +
		`{"baseUrl":"` + baseURL + `/api/timedtext?v=abc123&lang=de&fmt=srv3","languageCode":"de"}` +
		`]}}};var meta = {};</script></body></html>`
}

// fakeYouTube serves a watch page and timedtext documents. watch overrides
// the watch page handler when set.
type fakeYouTube struct {
	srv       *httptest.Server
	watch     http.HandlerFunc
	watchHits atomic.Int32
	timedHits atomic.Int32
	lastTimed atomic.Value
}

func newFakeYouTube(t *testing.T, watch http.HandlerFunc) *fakeYouTube {
	t.Helper()
	f := &fakeYouTube{watch: watch}
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		f.watchHits.Add(1)
		if f.watch != nil {
			f.watch(w, r)
			return
		}
		fmt.Fprint(w, watchPage(f.srv.URL))
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		f.timedHits.Add(1)
		f.lastTimed.Store(r.URL.RawQuery)
		fmt.Fprint(w, timedTextFixture)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeYouTube) provider(videos VideoChecker) *YouTubeTranscriptProvider {
	return NewYouTubeTranscriptProvider(ProviderConfig{
		BaseURL:    f.srv.URL,
		Client:     f.srv.Client(),
		Videos:     videos,
		MaxRetries: 2,
		RetryWait:  time.Millisecond,
		Timeout:    5 * time.Second,
		Logger:     logging.Discard(),
	})
}

type stubChecker struct {
	err error
}

func (s stubChecker) CheckVideo(context.Context, string) error {
	return s.err
}

func TestGetTranscript(t *testing.T) {
	f := newFakeYouTube(t, nil)

	entries, err := f.provider(nil).GetTranscript(context.Background(), "abc123", []string{"en"})
	require.NoError(t, err)
	assert.Equal(t, []models.TranscriptEntry{
		{Text: "hi", Start: 0, Duration: 1},
		{Text: "there & back", Start: 1, Duration: 2.5},
	}, entries)

	query, _ := f.lastTimed.Load().(string)
	assert.Contains(t, query, "lang=en")
	assert.NotContains(t, query, "fmt=srv3")
}

func TestGetTranscriptLanguagePreference(t *testing.T) {
	f := newFakeYouTube(t, nil)

	_, err := f.provider(nil).GetTranscript(context.Background(), "abc123", []string{"de", "en"})
	require.NoError(t, err)

	query, _ := f.lastTimed.Load().(string)
	assert.Contains(t, query, "lang=de")
}

func TestGetTranscriptNoLanguageMatch(t *testing.T) {
	f := newFakeYouTube(t, nil)

	_, err := f.provider(nil).GetTranscript(context.Background(), "abc123", []string{"ja"})
	assert.ErrorIs(t, err, ErrNoTranscript)
	assert.Zero(t, f.timedHits.Load())
}

func TestGetTranscriptRecaptcha(t *testing.T) {
	f := newFakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><div class="g-recaptcha"></div></html>`)
	})

	_, err := f.provider(nil).GetTranscript(context.Background(), "abc123", []string{"en"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGetTranscriptTooManyRequestsNotRetried(t *testing.T) {
	f := newFakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := f.provider(nil).GetTranscript(context.Background(), "abc123", []string{"en"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(1), f.watchHits.Load())
}

func TestGetTranscriptRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var f *fakeYouTube
	f = newFakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, watchPage(f.srv.URL))
	})

	entries, err := f.provider(nil).GetTranscript(context.Background(), "abc123", []string{"en"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int32(2), f.watchHits.Load())
}

func TestGetTranscriptGivesUpAfterRetries(t *testing.T) {
	f := newFakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := f.provider(nil).GetTranscript(context.Background(), "abc123", []string{"en"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, int32(3), f.watchHits.Load())
}

func TestGetTranscriptConsentInterstitial(t *testing.T) {
	var f *fakeYouTube
	f = newFakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Cookie"), "CONSENT=YES+") {
			fmt.Fprint(w, `<form action="https://consent.youtube.com/s"><input name="v" value="cb.123"></form>`)
			return
		}
		fmt.Fprint(w, watchPage(f.srv.URL))
	})

	entries, err := f.provider(nil).GetTranscript(context.Background(), "abc123", []string{"en"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int32(2), f.watchHits.Load())
}

func TestGetTranscriptDisabled(t *testing.T) {
	f := newFakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<script>var ytInitialPlayerResponse = {"playabilityStatus":{"status":"OK"}};</script>`)
	})

	_, err := f.provider(nil).GetTranscript(context.Background(), "abc123", []string{"en"})
	assert.ErrorIs(t, err, ErrTranscriptsDisabled)
}

func TestGetTranscriptMissingPlayerResponse(t *testing.T) {
	f := newFakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>nothing here</html>`)
	})

	_, err := f.provider(nil).GetTranscript(context.Background(), "abc123", []string{"en"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestGetTranscriptTimeout(t *testing.T) {
	f := newFakeYouTube(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	p := f.provider(nil)
	p.timeout = 50 * time.Millisecond

	_, err := p.GetTranscript(context.Background(), "abc123", []string{"en"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetTranscriptVideoCheck(t *testing.T) {
	t.Run("unavailable short circuits", func(t *testing.T) {
		f := newFakeYouTube(t, nil)
		_, err := f.provider(stubChecker{err: ErrVideoUnavailable}).GetTranscript(context.Background(), "abc123", []string{"en"})
		assert.ErrorIs(t, err, ErrVideoUnavailable)
		assert.Zero(t, f.watchHits.Load())
	})

	t.Run("api failure falls through", func(t *testing.T) {
		f := newFakeYouTube(t, nil)
		entries, err := f.provider(stubChecker{err: errors.New("quota exceeded")}).GetTranscript(context.Background(), "abc123", []string{"en"})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestDataAPIChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("id") {
		case "public":
			fmt.Fprint(w, `{"items":[{"id":"public","status":{"privacyStatus":"public"}}]}`)
		case "private":
			fmt.Fprint(w, `{"items":[{"id":"private","status":{"privacyStatus":"private"}}]}`)
		default:
			fmt.Fprint(w, `{"items":[]}`)
		}
	}))
	defer srv.Close()

	checker, err := NewDataAPIChecker(context.Background(), "test-key",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	assert.NoError(t, checker.CheckVideo(context.Background(), "public"))
	assert.ErrorIs(t, checker.CheckVideo(context.Background(), "private"), ErrVideoUnavailable)
	assert.ErrorIs(t, checker.CheckVideo(context.Background(), "missing"), ErrVideoUnavailable)
}

func TestNewHTTPClient(t *testing.T) {
	client, err := NewHTTPClient(false, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &http.Client{}, client)

	browser, err := NewHTTPClient(true, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &browserClient{}, browser)
}

func TestBrowserClientHonorsSubSecondTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := NewHTTPClient(true, 200*time.Millisecond)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	started := time.Now()
	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)
}
