package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Supported completion providers.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string

	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	GoogleAPIKey string
	GeminiModel  string

	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	// RateLimit 为每秒允许的调用数，0 表示不限流。
	RateLimit float64
	RateBurst int
}

// Enabled 表示所选 provider 是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	case ProviderOpenAI:
		return c.OpenAIKey != ""
	case ProviderGemini:
		return c.GoogleAPIKey != ""
	default:
		return false
	}
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	rateLimit := 0.0
	if rl, err := parseOptionalFloatEnv("LLM_RATE_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if rl != nil {
		if *rl < 0 {
			return AIConfig{}, fmt.Errorf("invalid LLM_RATE_LIMIT value %v: must be >= 0", *rl)
		}
		rateLimit = *rl
	}

	rateBurst := 4
	if burst, err := parseOptionalIntEnv("LLM_RATE_BURST"); err != nil {
		return AIConfig{}, err
	} else if burst != nil && *burst > 0 {
		rateBurst = *burst
	}

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	switch provider {
	case "", ProviderArk, ProviderOpenAI, ProviderGemini:
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	arkModel := strings.TrimSpace(os.Getenv("ARK_MODEL"))
	if arkModel == "" {
		arkModel = strings.TrimSpace(os.Getenv("Model"))
	}

	return AIConfig{
		Provider:      provider,
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         arkModel,
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		GoogleAPIKey:  strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")),
		GeminiModel:   getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		RateLimit:     rateLimit,
		RateBurst:     rateBurst,
	}, nil
}
