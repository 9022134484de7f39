package api

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/yt-subtitles/internal/models"
)

// Watch page parsing and timedtext decoding. The fetch side lives in youtube.go.

const playerResponseMarker = "ytInitialPlayerResponse = "

var (
	recaptchaMarker = []byte(`class="g-recaptcha"`)
	consentMarker   = []byte(`action="https://consent.youtube.com/s"`)
	consentValueRE  = regexp.MustCompile(`name="v" value="(.*?)"`)
	markupRE        = regexp.MustCompile(`<[^>]*>`)
)

type timedText struct {
	Lines []timedTextLine `xml:"text"`
}

type timedTextLine struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

// extractPlayerResponse locates ytInitialPlayerResponse in a watch page and
// decodes it.
func extractPlayerResponse(page []byte) (*models.PlayerResponse, error) {
	idx := bytes.Index(page, []byte(playerResponseMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	raw := extractJSON(page[idx+len(playerResponseMarker):])
	if raw == nil {
		return nil, errors.New("unterminated ytInitialPlayerResponse object")
	}

	var player models.PlayerResponse
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return &player, nil
}

// extractJSON returns the balanced JSON object at the start of data, or nil.
// Braces inside string literals are ignored.
func extractJSON(data []byte) []byte {
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	depth := 0
	inString := false
	escaped := false
	for i, c := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return data[:i+1]
			}
		}
	}
	return nil
}

// captionTracks returns the video's caption tracks or the error kind that
// explains why there are none.
func captionTracks(player *models.PlayerResponse) ([]models.CaptionTrack, error) {
	if player.Captions == nil {
		if ps := player.PlayabilityStatus; ps != nil && ps.Status != "" && ps.Status != "OK" {
			if strings.Contains(ps.Reason, "not a bot") {
				return nil, fmt.Errorf("%w: %s", ErrRateLimited, ps.Reason)
			}
			return nil, fmt.Errorf("%w: %s: %s", ErrVideoUnavailable, ps.Status, ps.Reason)
		}
		return nil, ErrTranscriptsDisabled
	}

	tracks := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, ErrTranscriptsDisabled
	}
	return tracks, nil
}

// needsPoToken reports whether a caption track URL can only be fetched by a
// browser holding a proof-of-origin token.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// selectTrack picks the caption track for the first language that has one.
// Within a language a manually created track beats an auto-generated one.
func selectTrack(tracks []models.CaptionTrack, languages []string) (models.CaptionTrack, error) {
	usable := make([]models.CaptionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return models.CaptionTrack{}, fmt.Errorf("%w: every caption track requires a proof-of-origin token", ErrProviderUnavailable)
	}

	for _, lang := range languages {
		var generated *models.CaptionTrack
		for i, t := range usable {
			if t.LanguageCode != lang {
				continue
			}
			if !t.Generated() {
				return t, nil
			}
			if generated == nil {
				generated = &usable[i]
			}
		}
		if generated != nil {
			return *generated, nil
		}
	}

	available := make([]string, 0, len(usable))
	for _, t := range usable {
		available = append(available, t.LanguageCode)
	}
	return models.CaptionTrack{}, fmt.Errorf("%w: requested %v, available %v", ErrNoTranscript, languages, available)
}

// timedTextURL turns a caption track URL into one serving the plain
// <transcript><text> format.
func timedTextURL(baseURL string) string {
	return strings.Replace(baseURL, "&fmt=srv3", "", 1)
}

// parseTimedText decodes a timedtext XML document into transcript entries.
// Elements without any text are dropped; text that is empty once markup is
// removed still yields an entry.
func parseTimedText(data []byte) ([]models.TranscriptEntry, error) {
	var doc timedText
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	entries := make([]models.TranscriptEntry, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		if line.Text == "" {
			continue
		}
		text := cleanCaptionText(line.Text)
		start, err := parseSeconds(line.Start)
		if err != nil {
			return nil, fmt.Errorf("line start %q: %w", line.Start, err)
		}
		dur, err := parseSeconds(line.Dur)
		if err != nil {
			return nil, fmt.Errorf("line dur %q: %w", line.Dur, err)
		}
		entries = append(entries, models.TranscriptEntry{
			Text:     text,
			Start:    start,
			Duration: dur,
		})
	}
	return entries, nil
}

// cleanCaptionText undoes the second level of HTML escaping YouTube applies
// and strips inline formatting tags.
func cleanCaptionText(s string) string {
	return markupRE.ReplaceAllString(html.UnescapeString(s), "")
}

func parseSeconds(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// consentCookie returns the CONSENT cookie value that gets past the EU
// consent interstitial, if the page is one.
func consentCookie(page []byte) (string, bool) {
	if !bytes.Contains(page, consentMarker) {
		return "", false
	}
	m := consentValueRE.FindSubmatch(page)
	if m == nil {
		return "", false
	}
	return "CONSENT=YES+" + string(m[1]), true
}
