// Package ai 提供对话补全网关：统一的 Complete 接口、各模型 provider 以及
// 限流、计时、指标等装饰器。
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/boardroom/internal/model/persona"
)

var (
	// ErrTimeout 表示单次调用超出了自身的超时预算。
	ErrTimeout = errors.New("completion timed out")
	// ErrEmptyCompletion 表示模型返回了空文本。
	ErrEmptyCompletion = errors.New("completion is empty")
	// ErrDisabled 表示没有配置可用的模型。
	ErrDisabled = errors.New("completion gateway is not configured")
)

// Purpose 标记一次调用在编排流程中的用途，用于日志与指标。
type Purpose string

const (
	PurposeClassify  Purpose = "classify"
	PurposePersona   Purpose = "persona"
	PurposeSynthesis Purpose = "synthesis"
	PurposeFallback  Purpose = "fallback"
)

// Request 描述一次补全调用。
type Request struct {
	Purpose      Purpose
	PersonaKey   persona.Key
	SystemPrompt string
	Context      string
	UserPrompt   string
	// Timeout 为本次调用的独立预算，0 表示只受调用方 ctx 约束。
	Timeout time.Duration
}

// System joins the system prompt and the context block.
func (r Request) System() string {
	system := strings.TrimSpace(r.SystemPrompt)
	ctxBlock := strings.TrimSpace(r.Context)
	switch {
	case ctxBlock == "":
		return system
	case system == "":
		return ctxBlock
	default:
		return system + "\n\n" + ctxBlock
	}
}

// Completion 为一次成功调用的结果。
type Completion struct {
	Text    string
	Model   string
	Latency time.Duration
}

// Gateway 是编排核心依赖的唯一能力：给定提示词产出文本，或者失败。
// 实现不做重试。
type Gateway interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, req Request) (Completion, error)

// Complete calls f.
func (f GatewayFunc) Complete(ctx context.Context, req Request) (Completion, error) {
	return f(ctx, req)
}

// Guard 为网关加上超时预算、空结果检查与延迟记录。
func Guard(next Gateway) Gateway {
	return GatewayFunc(func(ctx context.Context, req Request) (Completion, error) {
		callCtx := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}

		start := time.Now()
		out, err := next.Complete(callCtx, req)
		out.Latency = time.Since(start)

		if err != nil {
			// 调用方取消优先于超时：客户端断开时不应被记为超时。
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return out, fmt.Errorf("%w after %s: %v", ErrTimeout, req.Timeout, err)
			}
			return out, err
		}

		out.Text = strings.TrimSpace(out.Text)
		if out.Text == "" {
			return out, ErrEmptyCompletion
		}
		return out, nil
	})
}

// Disabled 返回一个始终失败的网关，用于未配置模型时仍能启动服务。
func Disabled() Gateway {
	return GatewayFunc(func(context.Context, Request) (Completion, error) {
		return Completion{}, ErrDisabled
	})
}
