// Package onboarding 实现首次访问时的问答状态机：Q0 … Qn → Complete。
package onboarding

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	model "github.com/zhouzirui/boardroom/internal/model/onboarding"
	"github.com/zhouzirui/boardroom/internal/observability"
)

// SkipSentinel 跳过当前问题，不记录答案。
const SkipSentinel = "/skip"

var (
	ErrEmptyAnswer   = errors.New("answer is empty")
	ErrInvalidChoice = errors.New("answer is not one of the offered options")
	ErrCompleted     = errors.New("onboarding already completed")
)

// Outcome 为一次状态迁移的结果。Next 与 Completed 互斥。
type Outcome struct {
	Progress  model.Progress
	Context   map[string]string
	Next      *model.Question
	Completed bool
	Welcome   string
	Skipped   bool
}

// Machine 按固定脚本推进会话的 onboarding 进度，本身无状态。
type Machine struct {
	script  *model.Script
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewMachine creates a machine over script. A nil script uses the built-in one.
func NewMachine(script *model.Script, metrics *observability.Metrics, logger *zap.Logger) *Machine {
	if script == nil {
		script = model.DefaultScript()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{script: script, metrics: metrics, logger: logger}
}

// Script returns the question script.
func (m *Machine) Script() *model.Script { return m.script }

// Start 返回新会话的初始进度，以及需要展示的第一个问题。
func (m *Machine) Start(ctx map[string]string) (model.Progress, model.Question) {
	p := model.Progress{Total: m.script.Len(), Started: true}
	q, _ := m.script.At(0)
	return p, Interpolate(q, ctx)
}

// Advance 处理一条回复。尚未展示过问题的会话只展示 Q0，不消耗这条消息。
// 返回的 Progress 与 Context 都是新值，入参不会被修改。
func (m *Machine) Advance(p model.Progress, ctx map[string]string, reply string) (Outcome, error) {
	if p.Complete() {
		return Outcome{}, ErrCompleted
	}

	nextCtx := make(map[string]string, len(ctx)+1)
	for k, v := range ctx {
		nextCtx[k] = v
	}

	if !p.Started {
		progress, q := m.Start(nextCtx)
		progress.Answers = append([]model.Answer(nil), p.Answers...)
		return Outcome{Progress: progress, Context: nextCtx, Next: &q}, nil
	}

	// 脚本长度可能随配置变化，以当前脚本为准；脚本缩短后已越界的会话直接完成。
	p.Total = m.script.Len()
	if p.Step >= p.Total {
		done := model.Progress{
			Step:    p.Total,
			Total:   p.Total,
			Started: true,
			Answers: append([]model.Answer(nil), p.Answers...),
		}
		m.metrics.Onboarding("completed")
		m.logger.Info("onboarding script shrank below session step, completing", zap.Int("step", p.Step), zap.Int("total", p.Total))
		return Outcome{Progress: done, Context: nextCtx, Completed: true, Welcome: WelcomeMessage(nextCtx)}, nil
	}
	q, ok := m.script.At(p.Step)
	if !ok {
		return Outcome{}, fmt.Errorf("onboarding step %d out of range", p.Step)
	}

	answer := strings.TrimSpace(reply)
	if answer == "" {
		return Outcome{}, ErrEmptyAnswer
	}

	out := Outcome{Context: nextCtx}
	next := model.Progress{
		Step:    p.Step + 1,
		Total:   p.Total,
		Started: true,
		Answers: append([]model.Answer(nil), p.Answers...),
	}

	if strings.EqualFold(answer, SkipSentinel) {
		out.Skipped = true
		m.metrics.Onboarding("skipped")
	} else {
		if len(q.Options) > 0 {
			choice, ok := matchOption(q.Options, answer)
			if !ok {
				return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidChoice, answer)
			}
			answer = choice
		}
		next.Answers = append(next.Answers, model.Answer{QuestionID: q.ID, Value: answer})
		nextCtx[q.Field] = answer
		m.metrics.Onboarding("answered")
	}
	out.Progress = next

	if next.Complete() {
		out.Completed = true
		out.Welcome = WelcomeMessage(nextCtx)
		m.metrics.Onboarding("completed")
		m.logger.Debug("onboarding completed", zap.Int("answers", len(next.Answers)))
		return out, nil
	}

	nq, _ := m.script.At(next.Step)
	nq = Interpolate(nq, nextCtx)
	out.Next = &nq
	return out, nil
}

func matchOption(options []string, answer string) (string, bool) {
	for _, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), answer) {
			return opt, true
		}
	}
	return "", false
}

// Interpolate 把问题中的 {field} 替换为已收集的值；name 缺失时去掉称呼。
func Interpolate(q model.Question, ctx map[string]string) model.Question {
	text := q.Prompt
	for field, value := range ctx {
		if value = strings.TrimSpace(value); value != "" {
			text = strings.ReplaceAll(text, "{"+field+"}", value)
		}
	}
	text = strings.ReplaceAll(text, ", {name}", "")
	text = strings.ReplaceAll(text, "{name}", "")
	q.Prompt = text
	q.Options = append([]string(nil), q.Options...)
	return q
}

// WelcomeMessage 为完成 onboarding 后的欢迎语。
func WelcomeMessage(ctx map[string]string) string {
	name := strings.TrimSpace(ctx["name"])
	if name == "" {
		name = "there"
	}
	parts := []string{fmt.Sprintf("Welcome to the Boardroom, %s. Your executive board is assembled and ready.", name)}
	if ctx["company_stage"] != "" || ctx["current_challenges"] != "" {
		parts = append(parts, "Based on what you've shared, your CEO and CFO are already thinking about your priorities.")
	}
	parts = append(parts, "Ask anything, or just describe what's on your mind.")
	return strings.Join(parts, " ")
}
