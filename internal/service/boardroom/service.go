package boardroom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/boardroom/internal/model/chat"
	"github.com/zhouzirui/boardroom/internal/model/event"
	"github.com/zhouzirui/boardroom/internal/model/onboarding"
	"github.com/zhouzirui/boardroom/internal/model/persona"
	"github.com/zhouzirui/boardroom/internal/observability"
	"github.com/zhouzirui/boardroom/internal/service/ai"
	chatservice "github.com/zhouzirui/boardroom/internal/service/chat"
	onboardingservice "github.com/zhouzirui/boardroom/internal/service/onboarding"
)

// ErrEmptyMessage 表示请求没有消息内容。
var ErrEmptyMessage = errors.New("message is required")

// keyAdviceLimit 为记忆中保留的回答长度（按字符计）。
const keyAdviceLimit = 600

// ServiceConfig 控制上下文窗口。
type ServiceConfig struct {
	HistoryTurns int
	MemoryLimit  int
}

// Service 是聊天入口：onboarding 未完成时交给状态机，否则执行一次编排运行并持久化结果。
type Service struct {
	sessions   *chatservice.Service
	onboarding *onboardingservice.Machine
	engine     *Engine
	cfg        ServiceConfig
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewService wires the front door.
func NewService(sessions *chatservice.Service, machine *onboardingservice.Machine, engine *Engine, cfg ServiceConfig, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions:   sessions,
		onboarding: machine,
		engine:     engine,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// Questions returns the onboarding script.
func (s *Service) Questions() []onboarding.Question {
	return s.onboarding.Script().Questions()
}

// NewSession 签发新会话并返回第一个 onboarding 问题。
func (s *Service) NewSession(ctx context.Context) (chat.Session, onboarding.Question, error) {
	session, err := s.sessions.CreateSession(ctx)
	if err != nil {
		return chat.Session{}, onboarding.Question{}, err
	}
	progress, q := s.onboarding.Start(session.Context)
	session.Onboarding = progress
	if err := s.sessions.Store().SaveSession(ctx, session); err != nil {
		return chat.Session{}, onboarding.Question{}, err
	}
	return session, q, nil
}

// Session returns a stored session.
func (s *Service) Session(ctx context.Context, token string) (chat.Session, error) {
	return s.sessions.GetSession(ctx, token)
}

// Chat 解析会话、占用运行锁，并在独立协程中处理消息。
// 返回错误时没有启动任何运行；否则事件经通道送达，以 done 或 error 结束（被取消时提前关闭）。
func (s *Service) Chat(ctx context.Context, token, message string) (chat.Session, <-chan event.Event, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return chat.Session{}, nil, ErrEmptyMessage
	}

	session, _, err := s.sessions.GetOrCreate(ctx, token)
	if err != nil {
		return chat.Session{}, nil, err
	}
	release, err := s.sessions.Acquire(session.ID)
	if err != nil {
		return session, nil, err
	}

	// 拿到锁后重新读取，避免使用其他运行写入前的旧状态。
	session, err = s.sessions.GetSession(ctx, session.ID)
	if err != nil {
		release()
		return chat.Session{}, nil, err
	}

	out := make(chan event.Event, 8)
	emit := func(ev event.Event) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		defer release()

		if !session.OnboardingComplete() {
			s.handleOnboarding(ctx, session, message, emit)
			return
		}
		s.handleChat(ctx, session, message, emit)
	}()

	return session, out, nil
}

func (s *Service) handleOnboarding(ctx context.Context, session chat.Session, message string, emit Emitter) {
	logger := s.logger.With(zap.String("session", session.ID))
	finish := s.metrics.RunStarted()

	result, err := s.onboarding.Advance(session.Onboarding, session.Context, message)
	if err != nil {
		if errors.Is(err, onboardingservice.ErrEmptyAnswer) || errors.Is(err, onboardingservice.ErrInvalidChoice) {
			q, _ := s.onboarding.Script().At(session.Onboarding.Step)
			q = onboardingservice.Interpolate(q, session.Context)
			notice := "Please choose one of the options, or reply " + onboardingservice.SkipSentinel + " to skip."
			if errors.Is(err, onboardingservice.ErrEmptyAnswer) {
				notice = "Please type an answer, or reply " + onboardingservice.SkipSentinel + " to skip."
			}
			if emit(event.OnboardingQuestion{Step: session.Onboarding.Step, Total: session.Onboarding.Total, Question: q, Notice: notice}) {
				emit(event.Done{SessionID: session.ID, Content: q.Prompt})
			}
			finish("onboarding")
			return
		}
		logger.Error("onboarding transition failed", zap.Error(err))
		emit(event.Error{Content: "Onboarding is unavailable right now. Please try again."})
		finish("error")
		return
	}

	session.Onboarding = result.Progress
	session.Context = result.Context
	// 写入使用独立的 ctx：客户端断开不应丢失已经接受的答案。
	if err := s.sessions.Store().SaveSession(context.WithoutCancel(ctx), session); err != nil {
		logger.Error("save onboarding progress failed", zap.Error(err))
		emit(event.Error{Content: "Your answer could not be saved. Please try again."})
		finish("error")
		return
	}

	if result.Completed {
		logger.Info("onboarding completed", zap.Int("answers", len(result.Progress.Answers)))
		if emit(event.OnboardingComplete{Context: result.Context, Content: result.Welcome}) {
			emit(event.Done{SessionID: session.ID, Content: result.Welcome})
		}
		finish("onboarding")
		return
	}

	if emit(event.OnboardingQuestion{Step: result.Progress.Step, Total: result.Progress.Total, Question: *result.Next}) {
		emit(event.Done{SessionID: session.ID, Content: result.Next.Prompt})
	}
	finish("onboarding")
}

func (s *Service) handleChat(ctx context.Context, session chat.Session, message string, emit Emitter) {
	logger := s.logger.With(zap.String("session", session.ID))
	store := s.sessions.Store()

	history, err := store.LoadTranscript(ctx, session.ID, s.cfg.HistoryTurns)
	if err != nil {
		logger.Warn("load transcript failed, continuing without history", zap.Error(err))
	}
	memories, err := store.RecentMemories(ctx, session.ID, s.cfg.MemoryLimit)
	if err != nil {
		logger.Warn("load memories failed, continuing without memories", zap.Error(err))
	}

	persist := context.WithoutCancel(ctx)
	if err := store.SaveMessage(persist, chat.Message{SessionID: session.ID, Role: chat.RoleUser, Content: message}); err != nil {
		logger.Warn("save user message failed", zap.Error(err))
	}

	s.engine.Run(ctx, RunInput{
		SessionID: session.ID,
		RunID:     uuid.NewString(),
		Message:   message,
		Conversation: ai.ConversationContext{
			Profile:  session.Context,
			Fields:   s.profileFields(),
			Memories: memories,
			History:  history,
		},
		Commit: func(_ context.Context, summary Summary) int {
			return s.commit(persist, session, message, summary, logger)
		},
	}, emit)
}

// commit 持久化一次成功运行：上下文更新、助手回答与记忆。
func (s *Service) commit(ctx context.Context, session chat.Session, message string, summary Summary, logger *zap.Logger) int {
	store := s.sessions.Store()

	if session.Context == nil {
		session.Context = make(map[string]string)
	}
	if added := appendContext(session.Context, summary.Plan.ContextUpdates); added > 0 {
		if err := store.SaveSession(ctx, session); err != nil {
			logger.Warn("save context updates failed", zap.Error(err))
		} else {
			logger.Debug("context updated", zap.Int("fields", added))
		}
	}

	agents := summary.Agents()
	agentLabel := joinKeys(agents, ",")
	if summary.Outcome.Fallback() {
		agentLabel = "fallback"
	}
	if err := store.SaveMessage(ctx, chat.Message{
		SessionID: session.ID,
		Role:      chat.RoleAssistant,
		Agent:     agentLabel,
		Content:   summary.Outcome.Content,
	}); err != nil {
		logger.Warn("save assistant message failed", zap.Error(err))
	}

	agentNames := make([]string, len(agents))
	for i, k := range agents {
		agentNames[i] = string(k)
	}
	if err := store.AddMemory(ctx, chat.Memory{
		SessionID: session.ID,
		Content:   memoryNote(message, agentNames, summary.Outcome.Content),
		Agents:    agentNames,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		logger.Warn("record memory failed", zap.Error(err))
	}

	count, err := store.CountMemories(ctx, session.ID)
	if err != nil {
		logger.Warn("count memories failed", zap.Error(err))
		return 0
	}
	return count
}

// appendContext 只追加新字段：已有的值（包括 onboarding 收集的答案）不会被覆盖。
func appendContext(ctx map[string]string, updates map[string]string) int {
	added := 0
	for k, v := range updates {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if _, exists := ctx[k]; exists {
			continue
		}
		ctx[k] = v
		added++
	}
	return added
}

func (s *Service) profileFields() []string {
	return s.onboarding.Script().Fields()
}

func memoryNote(message string, agents []string, answer string) string {
	advice := []rune(strings.TrimSpace(answer))
	if len(advice) > keyAdviceLimit {
		advice = advice[:keyAdviceLimit]
	}
	who := strings.Join(agents, ", ")
	if who == "" {
		who = "board"
	}
	return fmt.Sprintf("User asked: %s\nAgents: %s\nKey advice: %s", strings.TrimSpace(message), who, string(advice))
}

func joinKeys(keys []persona.Key, sep string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, sep)
}
