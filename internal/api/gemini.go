package api

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const geminiMaxOutputTokens = 8192

// GeminiGenerator answers prompts with a Gemini model
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini API client for model
func NewGeminiGenerator(ctx context.Context, cfg *genai.ClientConfig, model string) (*GeminiGenerator, error) {
	if cfg.Backend == genai.BackendUnspecified {
		cfg.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate sends prompt as a single user turn and returns the reply text
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: geminiMaxOutputTokens,
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty reply from %s", ErrAssistantUnavailable, g.model)
	}
	return text, nil
}
