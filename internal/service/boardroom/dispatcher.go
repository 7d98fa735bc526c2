// Package boardroom 实现编排核心：分发 persona 调用、汇总回答并按序产出事件。
package boardroom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/boardroom/internal/model/orchestration"
	"github.com/zhouzirui/boardroom/internal/model/persona"
	"github.com/zhouzirui/boardroom/internal/service/ai"
)

// Call 为一次 (子问题, persona) 调用。
type Call struct {
	SubQuery orchestration.SubQuery
	Persona  persona.Persona
}

// Dispatch 为计划解析后的可执行形式。
type Dispatch struct {
	Calls []Call
	// Personas 为参与者，去重后按首次出现排序。
	Personas []persona.Persona
	Warnings []string
}

// Keys returns the participating persona keys.
func (d Dispatch) Keys() []persona.Key {
	keys := make([]persona.Key, len(d.Personas))
	for i, p := range d.Personas {
		keys[i] = p.Key
	}
	return keys
}

// DispatcherConfig 控制分发行为。
type DispatcherConfig struct {
	PersonaTimeout time.Duration
	// MaxConcurrency <= 0 表示不限制：每个 (子问题, persona) 调用立即启动。
	MaxConcurrency int
	DefaultPersona persona.Key
}

// Dispatcher 并发执行 persona 调用，单个调用的失败不会影响其他调用。
type Dispatcher struct {
	gateway  ai.Gateway
	personas persona.Store
	cfg      DispatcherConfig
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. The default persona must be registered.
func NewDispatcher(gateway ai.Gateway, personas persona.Store, cfg DispatcherConfig, logger *zap.Logger) (*Dispatcher, error) {
	if gateway == nil || personas == nil {
		return nil, fmt.Errorf("dispatcher needs a gateway and a persona store")
	}
	if _, ok := personas.FindByKey(cfg.DefaultPersona); !ok {
		return nil, fmt.Errorf("default persona %q is not registered", cfg.DefaultPersona)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{gateway: gateway, personas: personas, cfg: cfg, logger: logger}, nil
}

// Resolve 把计划中的 persona key 对照注册表解析为调用列表。
// 未知 key 被丢弃并记录警告；解析后为空的子问题被跳过；整体为空时交给默认 persona。
func (d *Dispatcher) Resolve(plan orchestration.Plan, message string) Dispatch {
	out := Dispatch{Warnings: append([]string(nil), plan.Warnings...)}
	seen := make(map[persona.Key]struct{})

	for _, sq := range plan.SubQueries {
		resolved := 0
		called := make(map[persona.Key]struct{}, len(sq.Personas))
		for _, key := range sq.Personas {
			p, ok := d.personas.FindByKey(key)
			if !ok {
				p, ok = d.personas.Resolve(string(key))
			}
			if !ok {
				out.Warnings = append(out.Warnings, fmt.Sprintf("unknown persona %q dropped from %s", key, sq.ID))
				continue
			}
			if _, dup := called[p.Key]; dup {
				continue
			}
			called[p.Key] = struct{}{}
			resolved++
			out.Calls = append(out.Calls, Call{SubQuery: sq, Persona: p})
			if _, ok := seen[p.Key]; !ok {
				seen[p.Key] = struct{}{}
				out.Personas = append(out.Personas, p)
			}
		}
		if resolved == 0 {
			out.Warnings = append(out.Warnings, fmt.Sprintf("sub-query %s has no known persona, skipped", sq.ID))
		}
	}

	if len(out.Calls) == 0 {
		generalist, _ := d.personas.FindByKey(d.cfg.DefaultPersona)
		out.Warnings = append(out.Warnings, "no dispatchable sub-query, routed to "+string(generalist.Key))
		sq := orchestration.SubQuery{ID: "sq1", Focus: "General analysis", Query: message, Personas: []persona.Key{generalist.Key}}
		out.Calls = []Call{{SubQuery: sq, Persona: generalist}}
		out.Personas = []persona.Persona{generalist}
	}
	return out
}

// Run 启动全部调用并按完成顺序投递结果；所有调用结束后关闭通道。
// 通道容量等于调用数，消费者即使停止读取也不会阻塞工作协程。
func (d *Dispatcher) Run(ctx context.Context, dispatch Dispatch, conversation string) <-chan orchestration.Result {
	results := make(chan orchestration.Result, len(dispatch.Calls))

	go func() {
		defer close(results)

		var g errgroup.Group
		if d.cfg.MaxConcurrency > 0 {
			g.SetLimit(d.cfg.MaxConcurrency)
		}
		for _, call := range dispatch.Calls {
			g.Go(func() error {
				results <- d.invoke(ctx, call, conversation)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return results
}

func (d *Dispatcher) invoke(ctx context.Context, call Call, conversation string) orchestration.Result {
	res := orchestration.Result{Persona: call.Persona.Key, SubQueryID: call.SubQuery.ID}

	start := time.Now()
	out, err := d.gateway.Complete(ctx, ai.Request{
		Purpose:      ai.PurposePersona,
		PersonaKey:   call.Persona.Key,
		SystemPrompt: ai.PersonaSystemPrompt(call.Persona),
		Context:      conversation,
		UserPrompt:   ai.PersonaUserPrompt(call.SubQuery),
		Timeout:      d.cfg.PersonaTimeout,
	})
	res.Latency = time.Since(start)

	if err != nil {
		res.Err = err
		res.Failure = classifyFailure(err)
		if res.Failure != orchestration.FailureCanceled {
			d.logger.Warn("persona call failed",
				zap.String("persona", string(call.Persona.Key)),
				zap.String("sub_query", call.SubQuery.ID),
				zap.String("failure", string(res.Failure)),
				zap.Error(err),
			)
		}
		return res
	}

	res.Content = out.Text
	return res
}

func classifyFailure(err error) orchestration.Failure {
	switch {
	case errors.Is(err, ai.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return orchestration.FailureTimeout
	case errors.Is(err, context.Canceled):
		return orchestration.FailureCanceled
	default:
		return orchestration.FailureError
	}
}
