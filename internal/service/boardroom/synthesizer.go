package boardroom

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/boardroom/internal/model/orchestration"
	"github.com/zhouzirui/boardroom/internal/model/persona"
	"github.com/zhouzirui/boardroom/internal/service/ai"
)

// ErrTotalFailure 表示所有 persona 调用与通才兜底调用都失败，本次运行没有任何内容。
var ErrTotalFailure = errors.New("no content could be produced")

// Mode 描述最终答案的来源。
type Mode string

const (
	ModeSingle      Mode = "single"
	ModeJoined      Mode = "joined"
	ModeSynthesized Mode = "synthesized"
	ModeAggregate   Mode = "aggregate"
	ModeFallback    Mode = "fallback"
)

// answerSeparator 连接同一 persona 对多个子问题的回答。
const answerSeparator = "\n\n---\n\n"

// Outcome 为汇总阶段的结果。
type Outcome struct {
	Content string
	Mode    Mode
	// EmitSynthesis 为 true 当且仅当本次运行分发给了两个及以上不同的 persona。
	EmitSynthesis bool
	Unavailable   []persona.Key
	Succeeded     int
	Failed        int
}

// Synthesized reports whether a synthesis call produced the content.
func (o Outcome) Synthesized() bool { return o.Mode == ModeSynthesized }

// Aggregate reports whether the content is the raw concatenation.
func (o Outcome) Aggregate() bool { return o.Mode == ModeAggregate }

// Fallback reports whether the generalist fallback answered.
func (o Outcome) Fallback() bool { return o.Mode == ModeFallback }

// SynthesizerConfig 控制汇总与兜底调用。
type SynthesizerConfig struct {
	SynthesisTimeout time.Duration
	FallbackTimeout  time.Duration
	DefaultPersona   persona.Key
}

// Synthesizer 在全部调用结束后产出唯一的最终答案。
type Synthesizer struct {
	gateway  ai.Gateway
	personas persona.Store
	cfg      SynthesizerConfig
	logger   *zap.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(gateway ai.Gateway, personas persona.Store, cfg SynthesizerConfig, logger *zap.Logger) (*Synthesizer, error) {
	if gateway == nil || personas == nil {
		return nil, fmt.Errorf("synthesizer needs a gateway and a persona store")
	}
	if _, ok := personas.FindByKey(cfg.DefaultPersona); !ok {
		return nil, fmt.Errorf("default persona %q is not registered", cfg.DefaultPersona)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{gateway: gateway, personas: personas, cfg: cfg, logger: logger}, nil
}

// Synthesize 根据全部结果（成功与失败）产出最终答案。
func (s *Synthesizer) Synthesize(ctx context.Context, message, conversation string, dispatch Dispatch, results []orchestration.Result) (Outcome, error) {
	multi := len(dispatch.Personas) >= 2
	out := Outcome{EmitSynthesis: multi}

	contributions, unavailable := s.collect(dispatch, results)
	out.Unavailable = make([]persona.Key, len(unavailable))
	for i, p := range unavailable {
		out.Unavailable[i] = p.Key
	}
	for _, r := range results {
		if r.OK() {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}

	if len(contributions) == 0 {
		content, err := s.fallback(ctx, message, conversation)
		if err != nil {
			return out, fmt.Errorf("%w: fallback call: %v", ErrTotalFailure, err)
		}
		out.Content = content
		out.Mode = ModeFallback
		return out, nil
	}

	if !multi {
		out.Content = contributions[0].Content
		out.Mode = ModeSingle
		if out.Succeeded > 1 {
			out.Mode = ModeJoined
		}
		return out, nil
	}

	system, user := ai.SynthesisRequest(message, contributions, unavailable)
	completion, err := s.gateway.Complete(ctx, ai.Request{
		Purpose:      ai.PurposeSynthesis,
		SystemPrompt: system,
		Context:      conversation,
		UserPrompt:   user,
		Timeout:      s.cfg.SynthesisTimeout,
	})
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("synthesis call failed, returning raw aggregate", zap.Error(err))
		}
		out.Content = aggregate(contributions, unavailable)
		out.Mode = ModeAggregate
		return out, nil
	}

	out.Content = completion.Text
	out.Mode = ModeSynthesized
	return out, nil
}

// collect 按分发顺序把成功结果按 persona 分组，同时列出没有任何成功回答的 persona。
func (s *Synthesizer) collect(dispatch Dispatch, results []orchestration.Result) ([]ai.Contribution, []persona.Persona) {
	type slot struct {
		persona persona.Key
		subID   string
	}
	order := make(map[slot]int, len(dispatch.Calls))
	for i, c := range dispatch.Calls {
		order[slot{c.Persona.Key, c.SubQuery.ID}] = i
	}

	ok := make([]orchestration.Result, 0, len(results))
	for _, r := range results {
		if r.OK() {
			ok = append(ok, r)
		}
	}
	sort.SliceStable(ok, func(i, j int) bool {
		return order[slot{ok[i].Persona, ok[i].SubQueryID}] < order[slot{ok[j].Persona, ok[j].SubQueryID}]
	})

	answers := make(map[persona.Key][]string)
	for _, r := range ok {
		answers[r.Persona] = append(answers[r.Persona], strings.TrimSpace(r.Content))
	}

	var (
		contributions []ai.Contribution
		unavailable   []persona.Persona
	)
	for _, p := range dispatch.Personas {
		parts, found := answers[p.Key]
		if !found {
			unavailable = append(unavailable, p)
			continue
		}
		contributions = append(contributions, ai.Contribution{Persona: p, Content: strings.Join(parts, answerSeparator)})
	}
	return contributions, unavailable
}

func (s *Synthesizer) fallback(ctx context.Context, message, conversation string) (string, error) {
	generalist, _ := s.personas.FindByKey(s.cfg.DefaultPersona)
	completion, err := s.gateway.Complete(ctx, ai.Request{
		Purpose:      ai.PurposeFallback,
		PersonaKey:   generalist.Key,
		SystemPrompt: ai.FallbackSystemPrompt(generalist),
		Context:      conversation,
		UserPrompt:   message,
		Timeout:      s.cfg.FallbackTimeout,
	})
	if err != nil {
		return "", err
	}
	return completion.Text, nil
}

func aggregate(contributions []ai.Contribution, unavailable []persona.Persona) string {
	body := ai.JoinContributions(contributions)
	if len(unavailable) == 0 {
		return body
	}
	names := make([]string, len(unavailable))
	for i, p := range unavailable {
		names[i] = p.Label()
	}
	return body + "\n\n_Unavailable: " + strings.Join(names, ", ") + "_"
}
