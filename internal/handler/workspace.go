package handler

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// WorkspaceHeader 允许 API 客户端直接指定工作区。
	WorkspaceHeader = "X-Workspace-ID"

	workspaceSessionKey = "workspace_id"
	workspaceContextKey = "__workspace_id"
	maxWorkspaceIDLen   = 36
)

// WorkspaceRequired 从请求头或会话中解析工作区，缺失时返回 400。
func WorkspaceRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceID := strings.TrimSpace(c.GetHeader(WorkspaceHeader))
		if workspaceID == "" {
			if value, ok := sessions.Default(c).Get(workspaceSessionKey).(string); ok {
				workspaceID = strings.TrimSpace(value)
			}
		}
		if workspaceID == "" || len(workspaceID) > maxWorkspaceIDLen {
			respondError(c, http.StatusBadRequest, "请先选择工作区")
			c.Abort()
			return
		}
		c.Set(workspaceContextKey, workspaceID)
		c.Next()
	}
}

func currentWorkspace(c *gin.Context) string {
	return c.GetString(workspaceContextKey)
}

type selectWorkspaceRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

// SelectWorkspace 将工作区写入会话；未提供 ID 时生成新的工作区 ID。
func (a *API) SelectWorkspace(c *gin.Context) {
	var payload selectWorkspaceRequest
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &payload, "请求格式不正确") {
			return
		}
	}

	workspaceID := strings.TrimSpace(payload.WorkspaceID)
	if workspaceID == "" {
		workspaceID = uuid.NewString()
	}
	if len(workspaceID) > maxWorkspaceIDLen {
		respondError(c, http.StatusBadRequest, "工作区 ID 过长")
		return
	}

	session := sessions.Default(c)
	session.Set(workspaceSessionKey, workspaceID)
	if err := session.Save(); err != nil {
		a.logger.Error("save workspace session", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "保存会话失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspace_id": workspaceID})
}
