package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/postpulse/internal/service"
	"go.uber.org/zap"
)

const healthPingTimeout = 2 * time.Second

// HealthCheck 探测数据库连接。
func (a *API) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	status, state := http.StatusOK, "up"
	if sqlDB, err := a.db.DB(); err != nil {
		status, state = http.StatusInternalServerError, "unavailable"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		a.logger.Warn("health check ping failed", zap.Error(err))
		status, state = http.StatusServiceUnavailable, "down"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "error"
	}
	c.JSON(status, gin.H{"status": overall, "database": state})
}

// GetSystemSettings 返回当前 AI 设置，Key 以掩码形式返回。
func (a *API) GetSystemSettings(c *gin.Context) {
	settings, err := a.system.GetSettings()
	if err != nil {
		a.logger.Error("load system settings", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "获取系统设置失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": maskedSettings(settings)})
}

func (a *API) UpdateSystemSettings(c *gin.Context) {
	var input service.SystemSettingsInput
	if !bindJSON(c, &input, "请填写完整的系统设置") {
		return
	}

	current, err := a.system.GetSettings()
	if err != nil {
		a.logger.Error("load system settings", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "获取系统设置失败")
		return
	}
	// 掩码原样回传表示不修改
	for _, pair := range []struct {
		submitted *string
		stored    string
	}{
		{&input.OpenAIAPIKey, current.OpenAIAPIKey},
		{&input.DeepSeekAPIKey, current.DeepSeekAPIKey},
		{&input.GeminiAPIKey, current.GeminiAPIKey},
	} {
		if strings.Contains(*pair.submitted, "*") {
			*pair.submitted = pair.stored
		}
	}

	saved, err := a.system.UpdateSettings(input)
	if err != nil {
		a.logger.Error("update system settings", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "保存系统设置失败")
		return
	}
	a.logger.Info("system settings updated", zap.String("provider", saved.AIProvider))
	c.JSON(http.StatusOK, gin.H{"message": "系统设置已保存", "settings": maskedSettings(saved)})
}

func maskedSettings(s service.SystemSettings) service.SystemSettings {
	s.OpenAIAPIKey = maskKey(s.OpenAIAPIKey)
	s.DeepSeekAPIKey = maskKey(s.DeepSeekAPIKey)
	s.GeminiAPIKey = maskKey(s.GeminiAPIKey)
	return s
}

// maskKey 只保留首尾各 4 位，短 Key 全部遮盖。
func maskKey(key string) string {
	key = strings.TrimSpace(key)
	const visible = 4
	if len(key) <= 2*visible {
		return strings.Repeat("*", len(key))
	}
	return key[:visible] + strings.Repeat("*", len(key)-2*visible) + key[len(key)-visible:]
}

// TestAIConnection 用提交的 Key 探测服务商。
func (a *API) TestAIConnection(c *gin.Context) {
	var req struct {
		Provider string `json:"provider"`
		APIKey   string `json:"api_key"`
	}
	if !bindJSON(c, &req, "请填写有效的 AI 配置信息") {
		return
	}

	err := a.system.TestAIConnection(c.Request.Context(), req.Provider, req.APIKey)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "AI 接口连接正常"})
	case errors.Is(err, service.ErrAIAPIKeyMissing):
		respondError(c, http.StatusBadRequest, "请填写有效的 AI API Key")
	default:
		respondError(c, http.StatusBadGateway, err.Error())
	}
}
