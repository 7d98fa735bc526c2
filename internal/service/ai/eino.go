package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// EinoGateway 通过 eino 链（提示模板 + ChatModel）完成调用，默认接入 Ark。
type EinoGateway struct {
	chain compose.Runnable[map[string]any, *schema.Message]
	model string
}

// NewEinoGateway 编译 "system + query" 两段式提示链。
func NewEinoGateway(ctx context.Context, chatModel model.BaseChatModel, modelName string) (*EinoGateway, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}

	return &EinoGateway{chain: runnable, model: modelName}, nil
}

// Complete runs the chain once.
func (g *EinoGateway) Complete(ctx context.Context, req Request) (Completion, error) {
	msg, err := g.chain.Invoke(ctx, map[string]any{
		"system": req.System(),
		"query":  req.UserPrompt,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("failed to run completion chain: %w", err)
	}
	if msg == nil {
		return Completion{Model: g.model}, nil
	}
	return Completion{Text: msg.Content, Model: g.model}, nil
}
