package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/boardroom/internal/config"
	"github.com/zhouzirui/boardroom/internal/observability"
)

// New 根据配置选择 provider 并叠加限流、超时与指标装饰器。
// 未配置 provider 时返回 Disabled 网关，而不是报错。
func New(ctx context.Context, cfg config.AIConfig, metrics *observability.Metrics, logger *zap.Logger) (Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		provider Gateway
		err      error
	)
	switch {
	case !cfg.Enabled():
		logger.Warn("no completion provider configured, persona calls will fail", zap.String("provider", cfg.Provider))
		provider = Disabled()
	case cfg.Provider == config.ProviderArk:
		chatModel, mErr := cfg.NewChatModel(ctx)
		if mErr != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", mErr)
		}
		provider, err = NewEinoGateway(ctx, chatModel, cfg.Model)
	case cfg.Provider == config.ProviderOpenAI:
		provider, err = NewOpenAIGateway(OpenAIOptions{
			APIKey:      cfg.OpenAIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		})
	case cfg.Provider == config.ProviderGemini:
		provider, err = NewGeminiGateway(ctx, GeminiOptions{
			APIKey:      cfg.GoogleAPIKey,
			Model:       cfg.GeminiModel,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Enabled() {
		logger.Info("completion provider ready", zap.String("provider", cfg.Provider))
	}
	return Stack(provider, cfg, metrics, logger.Named("gateway")), nil
}

// Stack wraps a raw provider with rate limiting, the timeout guard and metrics.
func Stack(provider Gateway, cfg config.AIConfig, metrics *observability.Metrics, logger *zap.Logger) Gateway {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return Instrumented(Guard(RateLimited(provider, limiter)), metrics, logger)
}
