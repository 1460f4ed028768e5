package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultAITimeout 限制单次文本生成的耗时。
const DefaultAITimeout = 30 * time.Second

// ErrEmptyGeneration 表示模型返回了空文本。
var ErrEmptyGeneration = errors.New("ai returned empty text")

// TextGenerator 根据系统提示词与用户提示词生成一段文本。
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// AITextGenerator 根据系统设置选择 OpenAI、DeepSeek 或 Gemini 生成文本。
type AITextGenerator struct {
	settings    *SystemSettingService
	client      *aiChatClient
	timeout     time.Duration
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

// NewAITextGenerator 创建 AITextGenerator，timeout 非正数时使用 DefaultAITimeout。
func NewAITextGenerator(settings *SystemSettingService, timeout time.Duration, logger *zap.Logger) *AITextGenerator {
	if timeout <= 0 {
		timeout = DefaultAITimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AITextGenerator{
		settings:    settings,
		client:      newAIChatClient(),
		timeout:     timeout,
		maxTokens:   400,
		temperature: 0.4,
		logger:      logger,
	}
}

// SetHTTPClient 替换访问 chat-completions 接口的 HTTP 客户端。
func (g *AITextGenerator) SetHTTPClient(client httpDoer) {
	g.client.SetHTTPClient(client)
}

// SetOpenAIBaseURL 覆盖 OpenAI 接口地址。
func (g *AITextGenerator) SetOpenAIBaseURL(base string) {
	g.client.SetOpenAIBaseURL(base)
}

// SetDeepSeekBaseURL 覆盖 DeepSeek 接口地址。
func (g *AITextGenerator) SetDeepSeekBaseURL(base string) {
	g.client.SetDeepSeekBaseURL(base)
}

func (g *AITextGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.settings == nil {
		return "", ErrAIAPIKeyMissing
	}
	settings, err := g.settings.GetSettings()
	if err != nil {
		return "", fmt.Errorf("load ai settings: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	logAIExchange(g.logger, "generate", "request", userPrompt)
	started := time.Now()
	resp, err := g.client.complete(ctx, settings, promptRequest{
		System:      systemPrompt,
		User:        userPrompt,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		g.logger.Warn("ai generate failed",
			zap.String("provider", settings.AIProvider),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return "", err
	}
	logAIExchange(g.logger, "generate", "response", resp.Text)
	g.logger.Info("ai generate",
		zap.String("provider", settings.AIProvider),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens),
		zap.Duration("elapsed", time.Since(started)),
	)

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}
