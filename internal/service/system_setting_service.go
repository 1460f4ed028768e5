package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/postpulse/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 支持的 AI 服务商。
const (
	AIProviderOpenAI   = "openai"
	AIProviderDeepSeek = "deepseek"
	AIProviderGemini   = "gemini"

	defaultOpenAIModel   = "gpt-4o-mini"
	defaultDeepSeekModel = "deepseek-chat"
	defaultGeminiModel   = "gemini-2.0-flash"

	connectionTestTimeout = 10 * time.Second
)

var supportedAIProviders = []string{AIProviderOpenAI, AIProviderDeepSeek, AIProviderGemini}

// ErrAIAPIKeyMissing 表示当前服务商没有可用的 API Key。
var ErrAIAPIKeyMissing = errors.New("api key is required")

// SystemSettings 为生效中的 AI 设置。
type SystemSettings struct {
	AIProvider        string `json:"ai_provider"`
	OpenAIAPIKey      string `json:"openai_api_key,omitempty"`
	DeepSeekAPIKey    string `json:"deepseek_api_key,omitempty"`
	GeminiAPIKey      string `json:"gemini_api_key,omitempty"`
	ExplanationPrompt string `json:"explanation_prompt"`
}

// SystemSettingsInput 为设置更新请求。
type SystemSettingsInput struct {
	AIProvider        string `json:"ai_provider"`
	OpenAIAPIKey      string `json:"openai_api_key"`
	DeepSeekAPIKey    string `json:"deepseek_api_key"`
	GeminiAPIKey      string `json:"gemini_api_key"`
	ExplanationPrompt string `json:"explanation_prompt"`
}

// slots 把每个存储键映射到结构体字段，读写共用同一张表。
func (s *SystemSettings) slots() map[string]*string {
	return map[string]*string{
		db.SettingKeyAIProvider:        &s.AIProvider,
		db.SettingKeyOpenAIAPIKey:      &s.OpenAIAPIKey,
		db.SettingKeyDeepSeekAPIKey:    &s.DeepSeekAPIKey,
		db.SettingKeyGeminiAPIKey:      &s.GeminiAPIKey,
		db.SettingKeyExplanationPrompt: &s.ExplanationPrompt,
	}
}

var settingKeys = []string{
	db.SettingKeyAIProvider,
	db.SettingKeyOpenAIAPIKey,
	db.SettingKeyDeepSeekAPIKey,
	db.SettingKeyGeminiAPIKey,
	db.SettingKeyExplanationPrompt,
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SystemSettingService 读写全局 AI 设置，并负责连通性测试。
type SystemSettingService struct {
	db       *gorm.DB
	probe    *aiChatClient
	fallback SystemSettings
}

func NewSystemSettingService(gdb *gorm.DB) *SystemSettingService {
	probe := newAIChatClient()
	probe.SetHTTPClient(&http.Client{Timeout: connectionTestTimeout})
	return &SystemSettingService{db: gdb, probe: probe}
}

// WithFallback 设置库中无值时使用的配置，通常来自环境变量。
func (s *SystemSettingService) WithFallback(settings SystemSettings) *SystemSettingService {
	s.fallback = settings
	return s
}

// SetHTTPClient 替换连通性测试使用的客户端，nil 恢复默认。
func (s *SystemSettingService) SetHTTPClient(client httpDoer) {
	if client == nil {
		client = &http.Client{Timeout: connectionTestTimeout}
	}
	s.probe.SetHTTPClient(client)
}

func (s *SystemSettingService) SetOpenAIBaseURL(base string)   { s.probe.SetOpenAIBaseURL(base) }
func (s *SystemSettingService) SetDeepSeekBaseURL(base string) { s.probe.SetDeepSeekBaseURL(base) }

// defaults 为回退配置叠加内置默认值后的结果。
func (s *SystemSettingService) defaults() SystemSettings {
	out := s.fallback
	out.AIProvider = normalizeAIProvider(out.AIProvider)
	if out.AIProvider == "" {
		out.AIProvider = AIProviderOpenAI
	}
	if strings.TrimSpace(out.ExplanationPrompt) == "" {
		out.ExplanationPrompt = defaultExplanationSystemPrompt
	}
	return out
}

// GetSettings 返回生效设置：库中非空值覆盖回退配置。
func (s *SystemSettingService) GetSettings() (SystemSettings, error) {
	result := s.defaults()
	if s.db == nil {
		return result, nil
	}

	var rows []db.SystemSetting
	if err := s.db.Where("key IN ?", settingKeys).Find(&rows).Error; err != nil {
		return result, fmt.Errorf("load system settings: %w", err)
	}

	slots := result.slots()
	for _, row := range rows {
		value := strings.TrimSpace(row.Value)
		if value == "" {
			continue
		}
		if row.Key == db.SettingKeyAIProvider {
			if value = normalizeAIProvider(value); value == "" {
				continue
			}
		}
		if slot, ok := slots[row.Key]; ok {
			*slot = value
		}
	}
	return result, nil
}

// UpdateSettings 整体覆盖设置；未知服务商按 openai 保存，提示词为空时写入默认值。
func (s *SystemSettingService) UpdateSettings(input SystemSettingsInput) (SystemSettings, error) {
	saved := SystemSettings{
		AIProvider:        normalizeAIProvider(input.AIProvider),
		OpenAIAPIKey:      strings.TrimSpace(input.OpenAIAPIKey),
		DeepSeekAPIKey:    strings.TrimSpace(input.DeepSeekAPIKey),
		GeminiAPIKey:      strings.TrimSpace(input.GeminiAPIKey),
		ExplanationPrompt: strings.TrimSpace(input.ExplanationPrompt),
	}
	if saved.AIProvider == "" {
		saved.AIProvider = AIProviderOpenAI
	}
	if saved.ExplanationPrompt == "" {
		saved.ExplanationPrompt = defaultExplanationSystemPrompt
	}

	slots := saved.slots()
	rows := make([]db.SystemSetting, 0, len(settingKeys))
	for _, key := range settingKeys {
		rows = append(rows, db.SystemSetting{Key: key, Value: *slots[key]})
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return SystemSettings{}, fmt.Errorf("update system settings: %w", err)
	}
	return saved, nil
}

// TestAIConnection 用给定 Key 探测服务商是否可用。
func (s *SystemSettingService) TestAIConnection(ctx context.Context, provider, apiKey string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return ErrAIAPIKeyMissing
	}
	prov := normalizeAIProvider(provider)
	if prov == "" {
		prov = AIProviderOpenAI
	}
	return s.probe.ping(ctx, prov, key)
}

func normalizeAIProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	for _, candidate := range supportedAIProviders {
		if p == candidate {
			return candidate
		}
	}
	return ""
}
