package boardroom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/boardroom/internal/model/event"
	"github.com/zhouzirui/boardroom/internal/model/orchestration"
	"github.com/zhouzirui/boardroom/internal/model/persona"
	"github.com/zhouzirui/boardroom/internal/observability"
	"github.com/zhouzirui/boardroom/internal/service/ai"
	"github.com/zhouzirui/boardroom/internal/service/intent"
)

// totalFailureMessage 为无法产出任何内容时发给客户端的提示。
const totalFailureMessage = "The board could not produce an answer right now. Please try again in a moment."

// Emitter 投递一个事件；返回 false 表示消费方已离开，运行应停止产出。
type Emitter func(event.Event) bool

// RunInput 为一次运行的输入。
type RunInput struct {
	SessionID    string
	RunID        string
	Message      string
	Conversation ai.ConversationContext
	// Commit 在 done 之前调用，用于持久化本次结果，返回会话当前的记忆数量。
	Commit func(ctx context.Context, summary Summary) int
}

// Summary 描述一次运行的结局。
type Summary struct {
	RunID    string
	Plan     orchestration.Plan
	Dispatch Dispatch
	Results  []orchestration.Result
	Outcome  Outcome
	Canceled bool
	Err      error
	Duration time.Duration
}

// Agents lists the personas that produced content, in dispatch order.
func (s Summary) Agents() []persona.Key {
	answered := make(map[persona.Key]bool)
	for _, r := range s.Results {
		if r.OK() {
			answered[r.Persona] = true
		}
	}
	var keys []persona.Key
	for _, p := range s.Dispatch.Personas {
		if answered[p.Key] {
			keys = append(keys, p.Key)
		}
	}
	return keys
}

// Engine 串联分类、分发与汇总，并保证事件顺序：
// orchestration → routing → agent_response* → synthesis? → done | error。
type Engine struct {
	classifier  intent.Classifier
	dispatcher  *Dispatcher
	synthesizer *Synthesizer
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewEngine wires the pipeline.
func NewEngine(classifier intent.Classifier, dispatcher *Dispatcher, synthesizer *Synthesizer, metrics *observability.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		classifier:  classifier,
		dispatcher:  dispatcher,
		synthesizer: synthesizer,
		metrics:     metrics,
		logger:      logger,
	}
}

// Stream 在独立协程中执行一次运行，事件经返回的通道按序送达，运行结束后通道关闭。
// ctx 取消后不再产出任何事件，在途调用随之取消。
func (e *Engine) Stream(ctx context.Context, in RunInput) <-chan event.Event {
	out := make(chan event.Event, 8)
	go func() {
		defer close(out)
		e.Run(ctx, in, func(ev event.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out
}

// Run 同步执行一次运行，通过 emit 投递事件。
func (e *Engine) Run(ctx context.Context, in RunInput, emit Emitter) Summary {
	start := time.Now()
	if in.RunID == "" {
		in.RunID = uuid.NewString()
	}
	summary := Summary{RunID: in.RunID}
	logger := e.logger.With(zap.String("session", in.SessionID), zap.String("run", in.RunID))
	finish := e.metrics.RunStarted()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := false
	send := func(ev event.Event) bool {
		if stopped || ctx.Err() != nil {
			stopped = true
			return false
		}
		if !emit(ev) {
			stopped = true
			cancel()
			return false
		}
		return true
	}
	canceled := func() Summary {
		summary.Canceled = true
		summary.Duration = time.Since(start)
		logger.Info("run canceled by client", zap.Duration("elapsed", summary.Duration))
		finish("canceled")
		return summary
	}

	conversation := in.Conversation.Render()

	summary.Plan = e.classifier.Classify(ctx, intent.Input{Message: in.Message, Context: in.Conversation})
	if ctx.Err() != nil {
		return canceled()
	}
	if summary.Plan.Fallback {
		logger.Warn("classification failed, using fallback plan", zap.String("reasoning", summary.Plan.Reasoning))
	}

	summary.Dispatch = e.dispatcher.Resolve(summary.Plan, in.Message)
	for _, w := range summary.Dispatch.Warnings {
		logger.Warn("routing warning", zap.String("warning", w))
	}

	if !send(orchestrationEvent(summary.Plan)) || !send(routingEvent(summary.Dispatch)) {
		return canceled()
	}

	byKey := make(map[persona.Key]persona.Persona, len(summary.Dispatch.Personas))
	for _, p := range summary.Dispatch.Personas {
		byKey[p.Key] = p
	}
	// 即使客户端已离开也要读完通道，确保所有调用都已结束后再返回。
	for res := range e.dispatcher.Run(ctx, summary.Dispatch, conversation) {
		summary.Results = append(summary.Results, res)
		send(agentResponseEvent(byKey[res.Persona], res))
	}
	if stopped || ctx.Err() != nil {
		return canceled()
	}

	outcome, err := e.synthesizer.Synthesize(ctx, in.Message, conversation, summary.Dispatch, summary.Results)
	summary.Outcome = outcome
	if ctx.Err() != nil {
		return canceled()
	}
	if err != nil {
		summary.Err = err
		summary.Duration = time.Since(start)
		logger.Error("run produced no content",
			zap.Int("persona_calls", len(summary.Results)),
			zap.Error(err),
		)
		e.metrics.Synthesis("failed")
		if !send(event.Error{Content: totalFailureMessage}) {
			return canceled()
		}
		finish("error")
		return summary
	}
	e.metrics.Synthesis(string(outcome.Mode))

	if outcome.EmitSynthesis {
		if !send(event.Synthesis{
			Content:     outcome.Content,
			Aggregate:   outcome.Aggregate(),
			Fallback:    outcome.Fallback(),
			Unavailable: outcome.Unavailable,
		}) {
			return canceled()
		}
	}

	// 客户端在 synthesis 之后离开时同样视为取消，不再提交结果。
	if ctx.Err() != nil {
		return canceled()
	}
	summary.Duration = time.Since(start)
	memoryCount := 0
	if in.Commit != nil {
		memoryCount = in.Commit(ctx, summary)
	}

	done := event.Done{
		SessionID:    in.SessionID,
		Content:      outcome.Content,
		PersonaCalls: len(summary.Results),
		Succeeded:    outcome.Succeeded,
		Failed:       outcome.Failed,
		Synthesized:  outcome.Synthesized(),
		Aggregate:    outcome.Aggregate(),
		Fallback:     outcome.Fallback(),
		MemoryCount:  memoryCount,
		DurationMS:   summary.Duration.Milliseconds(),
	}
	if !send(done) {
		return canceled()
	}

	logger.Info("run completed",
		zap.String("intent", summary.Plan.Intent),
		zap.String("complexity", string(summary.Plan.Complexity)),
		zap.Int("persona_calls", done.PersonaCalls),
		zap.Int("failed", done.Failed),
		zap.String("mode", string(outcome.Mode)),
		zap.Duration("elapsed", summary.Duration),
	)
	finish("done")
	return summary
}

var intentIcons = map[string]string{
	"decision":   "⚖️",
	"analysis":   "📊",
	"planning":   "🗺️",
	"brainstorm": "💡",
	"check-in":   "📋",
}

var complexityLabels = map[orchestration.Complexity]string{
	orchestration.Simple:   "Direct query",
	orchestration.Compound: "Compound query",
	orchestration.Complex:  "Complex query",
}

func orchestrationEvent(plan orchestration.Plan) event.Orchestration {
	icon, ok := intentIcons[plan.Intent]
	if !ok {
		icon = "🎯"
	}
	label := plan.Intent
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	summary := fmt.Sprintf("%s %s · %s", icon, label, complexityLabels[plan.Complexity])
	if n := len(plan.SubQueries); n > 1 {
		summary += fmt.Sprintf(" · %d sub-queries decomposed", n)
	}

	subs := make([]event.SubQuerySummary, len(plan.SubQueries))
	for i, sq := range plan.SubQueries {
		subs[i] = event.SubQuerySummary{ID: sq.ID, Focus: sq.Focus, Agents: sq.Personas}
	}
	return event.Orchestration{
		Intent:     plan.Intent,
		Complexity: string(plan.Complexity),
		Reasoning:  plan.Reasoning,
		Fallback:   plan.Fallback,
		SubQueries: subs,
		Agents:     plan.Personas(),
		Content:    summary,
	}
}

func routingEvent(d Dispatch) event.Routing {
	tags := make([]event.PersonaTag, len(d.Personas))
	names := make([]string, len(d.Personas))
	for i, p := range d.Personas {
		tags[i] = event.TagOf(p)
		names[i] = p.Label()
	}
	return event.Routing{
		Agents:   d.Keys(),
		Personas: tags,
		Content:  "Routing to: " + strings.Join(names, ", "),
		Warnings: d.Warnings,
	}
}

func agentResponseEvent(p persona.Persona, res orchestration.Result) event.AgentResponse {
	ev := event.AgentResponse{
		Agent:      res.Persona,
		AgentName:  p.Name,
		AgentEmoji: p.Emoji,
		AgentColor: p.Color,
		SubQueryID: res.SubQueryID,
		Content:    res.Content,
		LatencyMS:  res.Latency.Milliseconds(),
	}
	if !res.OK() {
		ev.Failed = true
		ev.Error = failureText(res)
		ev.Content = fmt.Sprintf("%s is unavailable right now.", p.Name)
	}
	return ev
}

func failureText(res orchestration.Result) string {
	switch res.Failure {
	case orchestration.FailureTimeout:
		return "timeout"
	case orchestration.FailureCanceled:
		return "canceled"
	}
	if errors.Is(res.Err, ai.ErrEmptyCompletion) {
		return "empty response"
	}
	return "error"
}
