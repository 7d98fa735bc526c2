// Package intent 实现意图分类器：把一条用户消息拆解为带 persona 集合的子问题计划。
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	analysis "github.com/zhouzirui/boardroom/internal/analysis/intent"
	"github.com/zhouzirui/boardroom/internal/model/orchestration"
	"github.com/zhouzirui/boardroom/internal/model/persona"
	"github.com/zhouzirui/boardroom/internal/service/ai"
)

// Mode 选择分类方式。
type Mode string

const (
	ModeLLM     Mode = "llm"
	ModeKeyword Mode = "keyword"
)

// Input 为一次分类的输入。
type Input struct {
	Message string
	Context ai.ConversationContext
}

// Classifier 总是返回一个可执行的计划，分类失败时也不例外。
type Classifier interface {
	Classify(ctx context.Context, in Input) orchestration.Plan
}

// Config 控制分类服务的行为。
type Config struct {
	Mode           Mode
	DefaultPersona persona.Key
	Timeout        time.Duration
}

// Service 先处理 @ 提及，其余消息交给大模型分类，失败时回退到默认 persona。
type Service struct {
	gateway  ai.Gateway
	personas persona.Store
	cfg      Config
	logger   *zap.Logger
}

// NewService 创建分类服务。默认 persona 必须存在于注册表中。
func NewService(gateway ai.Gateway, personas persona.Store, cfg Config, logger *zap.Logger) (*Service, error) {
	if personas == nil {
		return nil, fmt.Errorf("persona store is required")
	}
	if _, ok := personas.FindByKey(cfg.DefaultPersona); !ok {
		return nil, fmt.Errorf("default persona %q is not registered", cfg.DefaultPersona)
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeLLM
	}
	if cfg.Mode == ModeLLM && gateway == nil {
		return nil, fmt.Errorf("llm classifier needs a completion gateway")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gateway: gateway, personas: personas, cfg: cfg, logger: logger}, nil
}

// Classify 实现 Classifier。
func (s *Service) Classify(ctx context.Context, in Input) orchestration.Plan {
	message := strings.TrimSpace(in.Message)

	plan, warnings, ok := s.mentionPlan(message)
	if ok {
		return plan
	}

	switch s.cfg.Mode {
	case ModeKeyword:
		plan = s.keywordPlan(message)
	default:
		plan = s.llmPlan(ctx, message, in.Context)
	}
	plan.Warnings = append(warnings, plan.Warnings...)
	return plan
}

// mentionPlan 为每个已注册的 @KEY 生成一个子问题，不调用模型。
// 未注册的提及只产生警告；没有任何有效提及时 ok 为 false。
func (s *Service) mentionPlan(message string) (orchestration.Plan, []string, bool) {
	tags := analysis.ParseMentions(message)
	if len(tags) == 0 {
		return orchestration.Plan{}, nil, false
	}

	var (
		keys     []persona.Key
		warnings []string
	)
	for _, tag := range tags {
		p, found := s.personas.Resolve(tag)
		if !found {
			warnings = append(warnings, fmt.Sprintf("unknown mention @%s ignored", tag))
			continue
		}
		keys = append(keys, p.Key)
	}
	if len(keys) == 0 {
		return orchestration.Plan{}, warnings, false
	}

	query := analysis.StripMentions(message)
	if query == "" {
		query = message
	}

	plan := orchestration.Plan{
		Intent:     string(analysis.ClassifyIntent(query)),
		Complexity: orchestration.Simple,
		Warnings:   warnings,
	}
	mentioned := make([]string, len(keys))
	for i, key := range keys {
		mentioned[i] = "@" + string(key)
		plan.SubQueries = append(plan.SubQueries, orchestration.SubQuery{
			ID:       fmt.Sprintf("sq%d", i+1),
			Focus:    message,
			Query:    query,
			Personas: []persona.Key{key},
		})
	}
	if len(keys) > 1 {
		plan.Complexity = plan.Complexity.AtLeast(orchestration.Compound)
	}
	plan.Reasoning = "Explicit mentions: " + strings.Join(mentioned, ", ")
	return plan, warnings, true
}

// keywordPlan 按触发词打分选择 persona。
func (s *Service) keywordPlan(message string) orchestration.Plan {
	res := analysis.Analyze(message, s.personas.List())
	selected := res.Selected
	reasoning := "Keyword routing"
	if len(selected) == 0 {
		selected = []persona.Key{s.cfg.DefaultPersona}
		reasoning = "Keyword routing: no domain keywords matched, routed to " + string(s.cfg.DefaultPersona)
	} else {
		var hits []string
		for _, sc := range res.Scores {
			hits = append(hits, sc.Hits...)
		}
		reasoning = "Keyword routing on: " + strings.Join(hits, ", ")
	}
	return orchestration.Plan{
		Intent:     string(res.Intent),
		Complexity: orchestration.Simple,
		Reasoning:  reasoning,
		SubQueries: []orchestration.SubQuery{{
			ID:       "sq1",
			Focus:    "General analysis",
			Query:    message,
			Personas: selected,
		}},
	}
}

// FallbackPlan 返回覆盖整条消息、由默认 persona 回答的计划。
func (s *Service) FallbackPlan(message string, cause error) orchestration.Plan {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	return orchestration.Plan{
		Intent:     string(analysis.ClassifyIntent(message)),
		Complexity: orchestration.Simple,
		Reasoning:  "fallback: " + reason,
		Fallback:   true,
		SubQueries: []orchestration.SubQuery{{
			ID:       "sq1",
			Focus:    "General analysis",
			Query:    message,
			Personas: []persona.Key{s.cfg.DefaultPersona},
		}},
	}
}

func (s *Service) llmPlan(ctx context.Context, message string, conv ai.ConversationContext) orchestration.Plan {
	out, err := s.gateway.Complete(ctx, ai.Request{
		Purpose:      ai.PurposeClassify,
		SystemPrompt: buildSystemPrompt(s.personas.List()),
		UserPrompt:   buildUserPrompt(message, conv, s.personas.Keys()),
		Timeout:      s.cfg.Timeout,
	})
	if err != nil {
		s.logger.Warn("classifier call failed, use fallback plan", zap.Error(err))
		return s.FallbackPlan(message, err)
	}

	payload, err := parseClassifierOutput(out.Text)
	if err != nil {
		s.logger.Warn("classifier output parse failed, use fallback plan", zap.Error(err))
		return s.FallbackPlan(message, fmt.Errorf("unparseable classifier output: %w", err))
	}

	return s.planFromPayload(message, payload)
}

type classifierPayload struct {
	Intent         string         `json:"intent"`
	Complexity     string         `json:"complexity"`
	Reasoning      string         `json:"reasoning"`
	SubQueries     []subPayload   `json:"sub_queries"`
	ContextUpdates map[string]any `json:"context_updates"`
}

type subPayload struct {
	ID             string   `json:"id"`
	OriginalIntent string   `json:"original_intent"`
	RewrittenQuery string   `json:"rewritten_query"`
	Focus          string   `json:"focus"`
	Agents         []string `json:"agents"`
}

// parseClassifierOutput 截取最外层 JSON 对象后解析，容忍 markdown 代码块等包裹。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Service) planFromPayload(message string, payload *classifierPayload) orchestration.Plan {
	plan := orchestration.Plan{
		Intent:     parseIntent(payload.Intent, message),
		Complexity: orchestration.ParseComplexity(strings.ToLower(strings.TrimSpace(payload.Complexity))),
		Reasoning:  strings.TrimSpace(payload.Reasoning),
	}

	for i, sq := range payload.SubQueries {
		id := strings.TrimSpace(sq.ID)
		if id == "" {
			id = fmt.Sprintf("sq%d", i+1)
		}
		query := strings.TrimSpace(sq.RewrittenQuery)
		if query == "" {
			query = message
		}
		focus := strings.TrimSpace(sq.Focus)
		if focus == "" {
			focus = strings.TrimSpace(sq.OriginalIntent)
		}

		var keys []persona.Key
		seen := make(map[persona.Key]struct{})
		for _, raw := range sq.Agents {
			p, ok := s.personas.Resolve(raw)
			if !ok {
				plan.Warnings = append(plan.Warnings, fmt.Sprintf("classifier chose unknown persona %q for %s", raw, id))
				continue
			}
			if _, dup := seen[p.Key]; dup {
				continue
			}
			seen[p.Key] = struct{}{}
			keys = append(keys, p.Key)
		}
		if len(keys) == 0 {
			keys = []persona.Key{s.cfg.DefaultPersona}
		}

		plan.SubQueries = append(plan.SubQueries, orchestration.SubQuery{
			ID:       id,
			Focus:    focus,
			Query:    query,
			Personas: keys,
		})
	}

	if len(plan.SubQueries) == 0 {
		keys := analysis.Analyze(message, s.personas.List()).Selected
		if len(keys) == 0 {
			keys = []persona.Key{s.cfg.DefaultPersona}
		}
		plan.SubQueries = []orchestration.SubQuery{{
			ID:       "sq1",
			Focus:    "General analysis",
			Query:    message,
			Personas: keys,
		}}
		plan.Warnings = append(plan.Warnings, "classifier returned no sub-queries, covering the whole message")
	}
	if len(plan.SubQueries) > 1 {
		plan.Complexity = plan.Complexity.AtLeast(orchestration.Compound)
	}

	if len(payload.ContextUpdates) > 0 {
		plan.ContextUpdates = make(map[string]string, len(payload.ContextUpdates))
		for k, v := range payload.ContextUpdates {
			key := strings.TrimSpace(k)
			switch val := v.(type) {
			case string:
				if val = strings.TrimSpace(val); key != "" && val != "" {
					plan.ContextUpdates[key] = val
				}
			case float64, bool:
				if key != "" {
					plan.ContextUpdates[key] = fmt.Sprint(val)
				}
			}
		}
		if len(plan.ContextUpdates) == 0 {
			plan.ContextUpdates = nil
		}
	}

	return plan
}

func parseIntent(raw, message string) string {
	switch label := analysis.Label(strings.ToLower(strings.TrimSpace(raw))); label {
	case analysis.Decision, analysis.Analysis, analysis.Planning, analysis.Brainstorm, analysis.CheckIn:
		return string(label)
	default:
		return string(analysis.ClassifyIntent(message))
	}
}
