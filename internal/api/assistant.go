package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yt-subtitles/internal/models"
)

// maxPromptTranscriptChars bounds the transcript text sent to the model
const maxPromptTranscriptChars = 200_000

const noAnswerReply = "I couldn't find an answer to that in the video."

// TextGenerator produces a model reply for a prompt
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EnableAssistant registers the summarize and ask routes backed by generator
func (s *Server) EnableAssistant(generator TextGenerator) {
	s.assistant = generator
	s.router.POST("/summarize", s.summarize)
	s.router.POST("/ask", s.ask)
}

// summarize handles requests for a summary of a video's transcript
func (s *Server) summarize(c *gin.Context) {
	const op = "summarize"

	var req models.SummarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.metrics.ObserveAssistant(op, "bad_request")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msgURLRequired})
		return
	}

	videoID, transcript, ok := s.transcriptText(c, op, req.YouTubeURL)
	if !ok {
		return
	}

	summary, ok := s.generate(c, op, videoID, summaryPrompt(transcript))
	if !ok {
		return
	}
	s.metrics.ObserveAssistant(op, "ok")
	c.JSON(http.StatusOK, models.SummaryResponse{Summary: summary})
}

// ask handles questions answered from a video's transcript
func (s *Server) ask(c *gin.Context) {
	const op = "ask"

	var req models.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		s.metrics.ObserveAssistant(op, "bad_request")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msgURLAndQuestionRequired})
		return
	}

	videoID, transcript, ok := s.transcriptText(c, op, req.YouTubeURL)
	if !ok {
		return
	}

	answer, ok := s.generate(c, op, videoID, askPrompt(transcript, req.Question))
	if !ok {
		return
	}
	s.metrics.ObserveAssistant(op, "ok")
	c.JSON(http.StatusOK, models.AnswerResponse{Answer: answer})
}

// transcriptText fetches the transcript for link in the default languages
// and flattens it to plain text. On failure the response is already written.
func (s *Server) transcriptText(c *gin.Context, op, link string) (string, string, bool) {
	videoID, ok := ExtractVideoID(link)
	if !ok {
		s.metrics.ObserveAssistant(op, "invalid_url")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msgInvalidURL})
		return "", "", false
	}

	entries, err := s.provider.GetTranscript(c.Request.Context(), videoID, s.defaultLanguages)
	if err == nil && len(entries) == 0 {
		err = fmt.Errorf("%w: transcript is empty", ErrNoTranscript)
	}
	if err != nil {
		failure := s.respondFailure(c, "transcript lookup failed", videoID, err)
		s.metrics.ObserveAssistant(op, failure.Outcome)
		return "", "", false
	}

	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Text != "" {
			texts = append(texts, e.Text)
		}
	}
	text := strings.Join(texts, " ")
	if len(text) > maxPromptTranscriptChars {
		text = strings.ToValidUTF8(text[:maxPromptTranscriptChars], "")
	}
	return videoID, text, true
}

func (s *Server) generate(c *gin.Context, op, videoID, prompt string) (string, bool) {
	reply, err := s.assistant.Generate(c.Request.Context(), prompt)
	if err != nil {
		failure := s.respondFailure(c, op+" generation failed", videoID, err)
		s.metrics.ObserveAssistant(op, failure.Outcome)
		return "", false
	}
	return reply, true
}

func summaryPrompt(transcript string) string {
	return "Summarize the video whose transcript follows. Open with a few short sentences " +
		"covering the main idea, then list the key points as markdown bullets with bold " +
		"highlights. Reply with the summary only, without any preamble or closing remarks.\n\n" +
		"Transcript:\n" + transcript
}

func askPrompt(transcript, question string) string {
	return "Answer the question using only the video transcript below and no outside knowledge. " +
		"If the transcript does not contain the answer, reply exactly: \"" + noAnswerReply + "\"\n\n" +
		"Transcript:\n" + transcript + "\n\nQuestion: " + strings.TrimSpace(question)
}
