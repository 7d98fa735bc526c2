package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Boardroom BoardroomConfig
	Store     StoreConfig
	Sources   SourcesConfig
	Log       LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	boardroom, err := loadBoardroomConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Boardroom: boardroom,
		Store:     store,
		Sources: SourcesConfig{
			PersonaFile:    strings.TrimSpace(os.Getenv("PERSONA_REGISTRY_FILE")),
			OnboardingFile: strings.TrimSpace(os.Getenv("ONBOARDING_SCRIPT_FILE")),
		},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// BoardroomConfig 描述编排引擎的预算与默认值。
type BoardroomConfig struct {
	PersonaTimeout    time.Duration
	SynthesisTimeout  time.Duration
	ClassifierTimeout time.Duration
	// MaxConcurrency 为 0 时不限制，一次运行的全部调用同时发出。
	MaxConcurrency    int
	DefaultPersona    string
	Classifier        string
	HistoryTurns      int
	MemoryLimit       int
}

func loadBoardroomConfig() (BoardroomConfig, error) {
	cfg := BoardroomConfig{
		PersonaTimeout:    45 * time.Second,
		SynthesisTimeout:  60 * time.Second,
		ClassifierTimeout: 20 * time.Second,
		DefaultPersona:    getEnvOrDefault("BOARDROOM_DEFAULT_PERSONA", "CEO"),
		Classifier:        strings.ToLower(getEnvOrDefault("BOARDROOM_CLASSIFIER", "llm")),
		HistoryTurns:      6,
		MemoryLimit:       5,
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"BOARDROOM_PERSONA_TIMEOUT", &cfg.PersonaTimeout},
		{"BOARDROOM_SYNTHESIS_TIMEOUT", &cfg.SynthesisTimeout},
		{"BOARDROOM_CLASSIFIER_TIMEOUT", &cfg.ClassifierTimeout},
	}
	for _, d := range durations {
		val, err := parseOptionalDurationEnv(d.key)
		if err != nil {
			return BoardroomConfig{}, err
		}
		if val != nil {
			if *val <= 0 {
				return BoardroomConfig{}, fmt.Errorf("invalid %s value %q: must be positive", d.key, val.String())
			}
			*d.dst = *val
		}
	}

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{"BOARDROOM_MAX_CONCURRENCY", &cfg.MaxConcurrency, 0},
		{"BOARDROOM_HISTORY_TURNS", &cfg.HistoryTurns, 0},
		{"BOARDROOM_MEMORY_LIMIT", &cfg.MemoryLimit, 0},
	}
	for _, i := range ints {
		val, err := parseOptionalIntEnv(i.key)
		if err != nil {
			return BoardroomConfig{}, err
		}
		if val != nil {
			if *val < i.min {
				return BoardroomConfig{}, fmt.Errorf("invalid %s value %d: must be >= %d", i.key, *val, i.min)
			}
			*i.dst = *val
		}
	}

	switch cfg.Classifier {
	case "llm", "keyword":
	default:
		return BoardroomConfig{}, fmt.Errorf("invalid BOARDROOM_CLASSIFIER value %q", cfg.Classifier)
	}

	return cfg, nil
}

// StoreConfig 描述会话存储。
type StoreConfig struct {
	Driver string
	Path   string
}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("SESSION_STORE", "memory"))
	switch driver {
	case "memory", "sqlite":
	default:
		return StoreConfig{}, fmt.Errorf("invalid SESSION_STORE value %q", driver)
	}
	return StoreConfig{
		Driver: driver,
		Path:   getEnvOrDefault("SESSION_DB_PATH", "data/boardroom.db"),
	}, nil
}

// SourcesConfig 指向可选的外部 persona 与 onboarding 定义文件。
type SourcesConfig struct {
	PersonaFile    string
	OnboardingFile string
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	// 纯数字按秒处理。
	if secs, err := strconv.Atoi(value); err == nil {
		d := time.Duration(secs) * time.Second
		return &d, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
