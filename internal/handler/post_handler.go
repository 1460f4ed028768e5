package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/service"
	"github.com/postpulse/internal/store"
	"go.uber.org/zap"
)

type scorePostRequest struct {
	Explain bool `json:"explain"`
}

// ScorePost 为草稿打分并写回预测结果，explain=true 时附带生成说明。
func (a *API) ScorePost(c *gin.Context) {
	post, ok := a.requirePost(c)
	if !ok {
		return
	}

	var payload scorePostRequest
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &payload, "请求格式不正确") {
			return
		}
	}
	explain := payload.Explain || parseBoolQuery(c, "explain")

	result, err := a.scoring.ScorePost(c.Request.Context(), post.ID, service.ScoreOptions{Explain: explain})
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			respondError(c, http.StatusNotFound, "文章不存在")
			return
		}
		a.logger.Error("score post", zap.String("post_id", post.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "评分失败")
		return
	}

	response := gin.H{"score": result}
	if explain {
		for key, value := range a.explanationPayload(result.Explanation) {
			response[key] = value
		}
	}
	c.JSON(http.StatusOK, response)
}

// SyncPostHashtags 重新解析文案中的标签并更新关联。
func (a *API) SyncPostHashtags(c *gin.Context) {
	post, ok := a.requirePost(c)
	if !ok {
		return
	}
	names, err := a.hashtagSync.SyncPostHashtags(c.Request.Context(), post.ID)
	if err != nil {
		a.logger.Error("sync hashtags", zap.String("post_id", post.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "同步标签失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"hashtags": names})
}

const feedbackEdited = "edited"

type feedbackRequest struct {
	EventType  string `json:"event_type"`
	Source     string `json:"source"`
	OldCaption string `json:"old_caption"`
	NewCaption string `json:"new_caption"`
}

// RecordFeedback 记录用户对生成内容的处理方式：接受、删除或编辑。
func (a *API) RecordFeedback(c *gin.Context) {
	post, ok := a.requirePost(c)
	if !ok {
		return
	}
	var payload feedbackRequest
	if !bindJSON(c, &payload, "请提供反馈类型") {
		return
	}

	ctx := c.Request.Context()
	var (
		event *db.FeedbackEvent
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(payload.EventType)) {
	case db.FeedbackAccepted:
		event, err = a.feedback.RecordAccepted(ctx, post.WorkspaceID, post.ID, payload.Source)
	case db.FeedbackDeleted:
		event, err = a.feedback.RecordDeleted(ctx, post.WorkspaceID, post.ID, payload.Source)
	case feedbackEdited, db.FeedbackHeavilyEdited, db.FeedbackLightlyEdited:
		oldCaption := payload.OldCaption
		if oldCaption == "" {
			oldCaption = post.Caption
		}
		event, err = a.feedback.RecordEdit(ctx, post.WorkspaceID, post.ID, payload.Source, oldCaption, payload.NewCaption)
	default:
		respondError(c, http.StatusBadRequest, "不支持的反馈类型")
		return
	}
	if err != nil {
		if errors.Is(err, service.ErrInvalidFeedback) {
			respondError(c, http.StatusBadRequest, "反馈信息不完整")
			return
		}
		a.logger.Error("record feedback", zap.String("post_id", post.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "记录反馈失败")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": event})
}

func (a *API) requirePost(c *gin.Context) (*db.Post, bool) {
	id := c.Param("id")
	post, err := a.store.GetPost(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusNotFound, "文章不存在")
			return nil, false
		}
		a.logger.Error("load post", zap.String("post_id", id), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "读取文章失败")
		return nil, false
	}
	if post.WorkspaceID != currentWorkspace(c) {
		respondError(c, http.StatusNotFound, "文章不存在")
		return nil, false
	}
	return post, true
}
