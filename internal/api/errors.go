package api

import (
	"context"
	"errors"
	"net/http"
)

// Provider failure kinds. Provider code wraps these with %w so the handler
// can map them with errors.Is.
var (
	ErrVideoUnavailable    = errors.New("video unavailable")
	ErrTranscriptsDisabled = errors.New("subtitles are disabled for this video")
	ErrNoTranscript        = errors.New("no transcript found for requested languages")
	ErrRateLimited         = errors.New("youtube is rate limiting requests")
	ErrProviderUnavailable = errors.New("transcript provider unavailable")

	// ErrAssistantUnavailable reports a failed or empty model reply
	ErrAssistantUnavailable = errors.New("summarization model unavailable")
)

const (
	msgInvalidURL   = "Invalid YouTube URL"
	msgMissingLink  = "link query parameter is required"
	msgInternal     = "Internal server error"
	msgTimedOut     = "Transcript provider timed out"
	msgRateLimited  = "YouTube is rate limiting requests"
	msgUnavailable  = "Transcript provider unavailable"
	msgNoTranscript = "No transcript found for requested languages"
	msgDisabled     = "Subtitles are disabled for this video"
	msgVideoGone    = "Video unavailable"
	msgCanceled     = "Client closed request"

	msgURLRequired            = "youtubeUrl is required"
	msgURLAndQuestionRequired = "youtubeUrl and question are required"
	msgAssistantUnavailable   = "Summarization model unavailable"
)

// statusClientClosedRequest is the non-standard status logged when the
// client goes away before the provider answers
const statusClientClosedRequest = 499

// providerFailure describes how a provider error is reported to the client
type providerFailure struct {
	Status  int
	Message string
	Outcome string
}

// classifyProviderError maps a provider error onto an HTTP status, a client
// message and a metrics outcome label.
func classifyProviderError(err error) providerFailure {
	switch {
	case errors.Is(err, ErrVideoUnavailable):
		return providerFailure{http.StatusNotFound, msgVideoGone, "video_unavailable"}
	case errors.Is(err, ErrTranscriptsDisabled):
		return providerFailure{http.StatusNotFound, msgDisabled, "transcripts_disabled"}
	case errors.Is(err, ErrNoTranscript):
		return providerFailure{http.StatusNotFound, msgNoTranscript, "no_transcript"}
	case errors.Is(err, ErrRateLimited):
		return providerFailure{http.StatusTooManyRequests, msgRateLimited, "rate_limited"}
	case errors.Is(err, context.Canceled):
		return providerFailure{statusClientClosedRequest, msgCanceled, "canceled"}
	case errors.Is(err, context.DeadlineExceeded):
		return providerFailure{http.StatusGatewayTimeout, msgTimedOut, "timeout"}
	case errors.Is(err, ErrAssistantUnavailable):
		return providerFailure{http.StatusBadGateway, msgAssistantUnavailable, "assistant_unavailable"}
	case errors.Is(err, ErrProviderUnavailable):
		return providerFailure{http.StatusBadGateway, msgUnavailable, "provider_unavailable"}
	default:
		return providerFailure{http.StatusInternalServerError, msgInternal, "internal_error"}
	}
}
