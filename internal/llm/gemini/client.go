package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"resume-pipeline/internal/llm"
)

const defaultModel = "gemini-2.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator implements llm.Completer on the Gemini API with JSON output.
type Generator struct {
	models      contentGenerator
	modelName   string
	temperature float32
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, temperature float64) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, llm.ErrNotConfigured
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGenerator(client.Models, model, temperature), nil
}

func newGenerator(models contentGenerator, model string, temperature float64) *Generator {
	model = strings.TrimSpace(model)
	// The OpenAI default is meaningless here.
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = defaultModel
	}
	return &Generator{models: models, modelName: model, temperature: float32(temperature)}
}

// Complete sends req to Gemini and returns the concatenated text parts.
func (g *Generator) Complete(ctx context.Context, req llm.Request) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		ResponseMIMEType: "application/json",
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system := strings.TrimSpace(req.System); system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return output, nil
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}

var _ llm.Completer = (*Generator)(nil)
