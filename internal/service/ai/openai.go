package ai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIOptions 为 OpenAI 兼容接口的参数。
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// OpenAIGateway 调用 OpenAI 兼容的 chat completions 接口。
type OpenAIGateway struct {
	client *openai.Client
	opts   OpenAIOptions
}

// NewOpenAIGateway creates a client for api.openai.com or any compatible BaseURL.
func NewOpenAIGateway(opts OpenAIOptions) (*OpenAIGateway, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	return &OpenAIGateway{client: openai.NewClientWithConfig(cfg), opts: opts}, nil
}

// Complete sends one chat completion request.
func (g *OpenAIGateway) Complete(ctx context.Context, req Request) (Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system := req.System(); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	chatReq := openai.ChatCompletionRequest{
		Model:    g.opts.Model,
		Messages: messages,
	}
	if g.opts.Temperature != nil {
		chatReq.Temperature = float32(*g.opts.Temperature)
	}
	if g.opts.TopP != nil {
		chatReq.TopP = float32(*g.opts.TopP)
	}
	if g.opts.MaxTokens != nil {
		chatReq.MaxTokens = *g.opts.MaxTokens
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Completion{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{Model: resp.Model}, nil
	}
	return Completion{Text: resp.Choices[0].Message.Content, Model: resp.Model}, nil
}
