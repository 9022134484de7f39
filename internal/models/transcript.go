package models

// TranscriptEntry represents one timed caption line of a video
type TranscriptEntry struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// SubtitlesQuery represents the query parameters of a subtitles request.
// An empty link is bound as given and rejected later as an invalid URL.
type SubtitlesQuery struct {
	Link string `form:"link"`
	Lang string `form:"lang"`
}

// SummarizeRequest is the body of POST /summarize
type SummarizeRequest struct {
	YouTubeURL string `json:"youtubeUrl" binding:"required"`
}

// AskRequest is the body of POST /ask
type AskRequest struct {
	YouTubeURL string `json:"youtubeUrl" binding:"required"`
	Question   string `json:"question" binding:"required"`
}

// SummaryResponse carries the generated summary of a transcript
type SummaryResponse struct {
	Summary string `json:"summary"`
}

// AnswerResponse carries the generated answer to a question about a video
type AnswerResponse struct {
	Answer string `json:"answer"`
}

// ErrorResponse is the body returned for every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// CaptionTrack describes one language variant of a video's captions
type CaptionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
	Name         struct {
		SimpleText string `json:"simpleText"`
	} `json:"name"`
}

// Generated reports whether the track was produced by speech recognition
func (t CaptionTrack) Generated() bool {
	return t.Kind == "asr"
}

// PlayerResponse is the subset of ytInitialPlayerResponse the provider reads
type PlayerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []CaptionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}
