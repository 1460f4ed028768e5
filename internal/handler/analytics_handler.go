package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/postpulse/internal/service"
	"go.uber.org/zap"
)

// GetMetricsSummary 返回工作区各平台的滚动汇总。
func (a *API) GetMetricsSummary(c *gin.Context) {
	windowDays := parseIntQuery(c, "window_days", a.windowDays)
	summary := a.summaries.SummarizeMetrics(c.Request.Context(), currentWorkspace(c), windowDays)
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// GetHashtagInsights 返回标签排名。
func (a *API) GetHashtagInsights(c *gin.Context) {
	windowDays := parseIntQuery(c, "window_days", a.windowDays)
	insights := a.hashtags.RankHashtags(c.Request.Context(), currentWorkspace(c), windowDays)
	c.JSON(http.StatusOK, gin.H{"insights": insights})
}

// GetHashtagSuggestions 返回合并后的推荐标签。
func (a *API) GetHashtagSuggestions(c *gin.Context) {
	windowDays := parseIntQuery(c, "window_days", a.windowDays)
	limit := parseIntQuery(c, "limit", 10)
	insights := a.hashtags.RankHashtags(c.Request.Context(), currentWorkspace(c), windowDays)
	c.JSON(http.StatusOK, gin.H{"suggestions": service.SuggestHashtags(insights, limit)})
}

// GetPreferences 返回从反馈中学到的写作偏好及其文字描述。
func (a *API) GetPreferences(c *gin.Context) {
	prefs := a.personalization.ProfilePreferences(c.Request.Context(), currentWorkspace(c))
	c.JSON(http.StatusOK, gin.H{
		"preferences": prefs,
		"summary":     service.RenderPreferences(prefs),
	})
}

type clearCacheResponse struct {
	Removed int64 `json:"removed"`
}

// ClearCache 删除工作区的生成文本缓存，可用 type 参数限定类型。
func (a *API) ClearCache(c *gin.Context) {
	removed, err := a.cache.ClearWorkspace(c.Request.Context(), currentWorkspace(c), c.Query("type"))
	if err != nil {
		a.logger.Warn("clear response cache", zap.String("workspace_id", currentWorkspace(c)), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "清理缓存失败")
		return
	}
	c.JSON(http.StatusOK, clearCacheResponse{Removed: removed})
}

type competitorRequest struct {
	Platform string   `json:"platform" binding:"required"`
	Handles  []string `json:"handles" binding:"required"`
}

// CollectCompetitorMetrics 拉取竞品账号指标，平台暂不可用时返回 available=false。
func (a *API) CollectCompetitorMetrics(c *gin.Context) {
	var payload competitorRequest
	if !bindJSON(c, &payload, "请提供平台与账号列表") {
		return
	}

	results, err := a.competitors.Collect(c.Request.Context(), currentWorkspace(c), payload.Platform, payload.Handles)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedPlatform):
			respondError(c, http.StatusBadRequest, "不支持的平台")
		case errors.Is(err, service.ErrHandleRequired):
			respondError(c, http.StatusBadRequest, "请至少提供一个账号")
		default:
			a.logger.Error("collect competitor metrics", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "采集竞品数据失败")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
