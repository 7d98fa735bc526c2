package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiOptions 为 Gemini API 的参数。
type GeminiOptions struct {
	APIKey      string
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// GeminiGateway 通过 google.golang.org/genai 调用 Gemini。
type GeminiGateway struct {
	client *genai.Client
	opts   GeminiOptions
}

// NewGeminiGateway creates a Gemini API client.
func NewGeminiGateway(ctx context.Context, opts GeminiOptions) (*GeminiGateway, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required")
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiGateway{client: client, opts: opts}, nil
}

// Complete issues one GenerateContent call.
func (g *GeminiGateway) Complete(ctx context.Context, req Request) (Completion, error) {
	cfg := &genai.GenerateContentConfig{}
	if system := req.System(); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if g.opts.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*g.opts.Temperature))
	}
	if g.opts.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*g.opts.TopP))
	}
	if g.opts.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*g.opts.MaxTokens)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.UserPrompt, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.opts.Model, contents, cfg)
	if err != nil {
		return Completion{}, fmt.Errorf("gemini generate content: %w", err)
	}
	return Completion{Text: resp.Text(), Model: g.opts.Model}, nil
}
