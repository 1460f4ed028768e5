package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/postpulse/internal/handler"
	"go.uber.org/zap"
)

const sessionMaxAge = 30 * 24 * 60 * 60

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(requestLogger(logger), gin.Recovery())

	// 配置会话中间件，会话中只保存当前工作区
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("postpulse_session", store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/healthz", api.HealthCheck)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/workspace", api.SelectWorkspace)

		settings := apiGroup.Group("/settings")
		{
			settings.GET("", api.GetSystemSettings)
			settings.PUT("", api.UpdateSystemSettings)
			settings.POST("/ai/test", api.TestAIConnection)
		}

		scoped := apiGroup.Group("")
		scoped.Use(handler.WorkspaceRequired())
		{
			scoped.GET("/metrics/summary", api.GetMetricsSummary)
			scoped.GET("/hashtags/insights", api.GetHashtagInsights)
			scoped.GET("/hashtags/suggestions", api.GetHashtagSuggestions)
			scoped.GET("/preferences", api.GetPreferences)

			scoped.POST("/experiments", api.CreateExperiment)
			scoped.GET("/experiments/:id/results", api.GetExperimentResults)
			scoped.POST("/experiments/:id/complete", api.CompleteExperiment)
			scoped.POST("/experiments/:id/cancel", api.CancelExperiment)
			scoped.POST("/experiments/:id/explain", api.ExplainExperiment)

			scoped.POST("/posts/:id/score", api.ScorePost)
			scoped.POST("/posts/:id/hashtags/sync", api.SyncPostHashtags)
			scoped.POST("/posts/:id/feedback", api.RecordFeedback)

			scoped.POST("/competitors/collect", api.CollectCompetitorMetrics)
			scoped.DELETE("/cache", api.ClearCache)
		}
	}

	return r
}

// requestLogger 用 zap 记录每个请求的状态码与耗时。
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
