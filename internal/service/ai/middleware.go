package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/boardroom/internal/observability"
)

// RateLimited 在调用前等待令牌；等待时尊重 ctx 的取消与超时。
func RateLimited(next Gateway, limiter *rate.Limiter) Gateway {
	if limiter == nil {
		return next
	}
	return GatewayFunc(func(ctx context.Context, req Request) (Completion, error) {
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Completion{}, ctxErr
			}
			// Wait 在剩余预算不足以等到令牌时会提前失败。
			return Completion{}, fmt.Errorf("rate limit wait: %w", context.DeadlineExceeded)
		}
		return next.Complete(ctx, req)
	})
}

// Instrumented 记录每次调用的状态、延迟，并输出调试日志。
func Instrumented(next Gateway, metrics *observability.Metrics, logger *zap.Logger) Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return GatewayFunc(func(ctx context.Context, req Request) (Completion, error) {
		start := time.Now()
		out, err := next.Complete(ctx, req)
		elapsed := time.Since(start)

		status := Status(err)
		metrics.ObserveCall(string(req.Purpose), string(req.PersonaKey), status, elapsed)
		logger.Debug("completion finished",
			zap.String("purpose", string(req.Purpose)),
			zap.String("persona", string(req.PersonaKey)),
			zap.String("status", status),
			zap.Duration("latency", elapsed),
			zap.Int("chars", len(out.Text)),
		)
		return out, err
	})
}

// Status maps a gateway error onto a short metrics label.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrEmptyCompletion):
		return "empty"
	default:
		return "error"
	}
}
