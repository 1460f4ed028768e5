package db

import "time"

// 系统设置的存储键。
const (
	SettingKeyAIProvider        = "ai_provider"
	SettingKeyOpenAIAPIKey      = "openai_api_key"
	SettingKeyDeepSeekAPIKey    = "deepseek_api_key"
	SettingKeyGeminiAPIKey      = "gemini_api_key"
	SettingKeyExplanationPrompt = "ai_explanation_prompt"
)

// SystemSetting 是全局（不区分工作区）的键值设置，空值表示未配置。
type SystemSetting struct {
	Key       string `gorm:"primaryKey;size:100"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (SystemSetting) TableName() string { return "system_settings" }
