package api

import (
	"net/url"
	"strings"
)

// ExtractVideoID returns the video identifier carried in the "v" query
// parameter of a YouTube watch URL. A missing query string or a missing "v"
// key reports false; no error is surfaced.
//
// The query is read leniently: no validation of scheme, host or port, only
// '&' separates pairs, and escapes that fail to decode are kept verbatim.
//
// Short links (youtu.be/<id>) and embed links carry the identifier in the
// path and are not recognized.
func ExtractVideoID(link string) (string, bool) {
	link = strings.TrimLeftFunc(link, func(r rune) bool { return r <= ' ' })
	link = strings.NewReplacer("\t", "", "\r", "", "\n", "").Replace(link)

	link, _, _ = strings.Cut(link, "#")
	_, query, found := strings.Cut(link, "?")
	if !found {
		return "", false
	}

	// Blank values are skipped so "?v=&v=abc" resolves to "abc"
	for _, pair := range strings.Split(query, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" || unescapeQueryValue(key) != "v" {
			continue
		}
		if id := unescapeQueryValue(value); id != "" {
			return id, true
		}
	}
	return "", false
}

// unescapeQueryValue decodes '+' and percent escapes, keeping the raw text
// when an escape is malformed
func unescapeQueryValue(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}
