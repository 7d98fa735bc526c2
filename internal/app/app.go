// Package app 把配置装配成可运行的董事会服务，供 HTTP 服务与命令行工具共用。
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zhouzirui/boardroom/internal/config"
	"github.com/zhouzirui/boardroom/internal/model/onboarding"
	"github.com/zhouzirui/boardroom/internal/model/persona"
	"github.com/zhouzirui/boardroom/internal/observability"
	"github.com/zhouzirui/boardroom/internal/service/ai"
	"github.com/zhouzirui/boardroom/internal/service/boardroom"
	chatservice "github.com/zhouzirui/boardroom/internal/service/chat"
	"github.com/zhouzirui/boardroom/internal/service/intent"
	onboardingservice "github.com/zhouzirui/boardroom/internal/service/onboarding"
)

// App holds the wired services.
type App struct {
	Personas persona.Store
	Script   *onboarding.Script
	Gateway  ai.Gateway
	Engine   *boardroom.Engine
	Machine  *onboardingservice.Machine
	Board    *boardroom.Service
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	sessions *chatservice.Service
}

// Build 装配全部服务。gateway 为 nil 时按配置创建。
func Build(ctx context.Context, cfg *config.Config, gateway ai.Gateway, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	personas, err := loadPersonas(cfg.Sources.PersonaFile)
	if err != nil {
		return nil, err
	}
	script, err := loadScript(cfg.Sources.OnboardingFile)
	if err != nil {
		return nil, err
	}
	defaultPersona := persona.Key(cfg.Boardroom.DefaultPersona)
	if p, ok := personas.Resolve(cfg.Boardroom.DefaultPersona); ok {
		defaultPersona = p.Key
	}

	if gateway == nil {
		gateway, err = ai.New(ctx, cfg.AI, metrics, logger)
		if err != nil {
			return nil, fmt.Errorf("init completion gateway: %w", err)
		}
	}

	classifier, err := intent.NewService(gateway, personas, intent.Config{
		Mode:           intent.Mode(cfg.Boardroom.Classifier),
		DefaultPersona: defaultPersona,
		Timeout:        cfg.Boardroom.ClassifierTimeout,
	}, logger.Named("intent"))
	if err != nil {
		return nil, fmt.Errorf("init classifier: %w", err)
	}
	dispatcher, err := boardroom.NewDispatcher(gateway, personas, boardroom.DispatcherConfig{
		PersonaTimeout: cfg.Boardroom.PersonaTimeout,
		MaxConcurrency: cfg.Boardroom.MaxConcurrency,
		DefaultPersona: defaultPersona,
	}, logger.Named("dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	synthesizer, err := boardroom.NewSynthesizer(gateway, personas, boardroom.SynthesizerConfig{
		SynthesisTimeout: cfg.Boardroom.SynthesisTimeout,
		FallbackTimeout:  cfg.Boardroom.PersonaTimeout,
		DefaultPersona:   defaultPersona,
	}, logger.Named("synthesizer"))
	if err != nil {
		return nil, fmt.Errorf("init synthesizer: %w", err)
	}
	engine := boardroom.NewEngine(classifier, dispatcher, synthesizer, metrics, logger.Named("engine"))

	store, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	sessions := chatservice.NewService(store)
	machine := onboardingservice.NewMachine(script, metrics, logger.Named("onboarding"))

	board := boardroom.NewService(sessions, machine, engine, boardroom.ServiceConfig{
		HistoryTurns: cfg.Boardroom.HistoryTurns,
		MemoryLimit:  cfg.Boardroom.MemoryLimit,
	}, metrics, logger.Named("chat"))

	return &App{
		Personas: personas,
		Script:   script,
		Gateway:  gateway,
		Engine:   engine,
		Machine:  machine,
		Board:    board,
		Metrics:  metrics,
		Registry: reg,
		sessions: sessions,
	}, nil
}

// Close releases the session store.
func (a *App) Close() error {
	return a.sessions.Close()
}

func loadPersonas(path string) (persona.Store, error) {
	if path == "" {
		return persona.MustMemoryStore(persona.Seed()), nil
	}
	store, err := persona.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load persona registry: %w", err)
	}
	return store, nil
}

func loadScript(path string) (*onboarding.Script, error) {
	if path == "" {
		return onboarding.DefaultScript(), nil
	}
	script, err := onboarding.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load onboarding script: %w", err)
	}
	return script, nil
}

func openStore(cfg config.StoreConfig, logger *zap.Logger) (chatservice.Store, error) {
	if cfg.Driver != "sqlite" {
		return chatservice.NewMemoryStore(), nil
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	store, err := chatservice.NewSQLiteStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	logger.Info("sqlite session store opened", zap.String("path", cfg.Path))
	return store, nil
}
