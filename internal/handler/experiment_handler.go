package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/postpulse/internal/service"
	"github.com/postpulse/internal/store"
	"go.uber.org/zap"
)

type createExperimentRequest struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	PostIDs []string `json:"post_ids"`
}

// CreateExperiment 从一组文章创建 A/B 实验。
func (a *API) CreateExperiment(c *gin.Context) {
	var payload createExperimentRequest
	if !bindJSON(c, &payload, "请填写实验名称与候选文章") {
		return
	}

	exp, variants, err := a.experiments.CreateExperiment(c.Request.Context(), service.CreateExperimentInput{
		WorkspaceID: currentWorkspace(c),
		Name:        payload.Name,
		Type:        payload.Type,
		PostIDs:     payload.PostIDs,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExperimentNameRequired):
			respondError(c, http.StatusBadRequest, "实验名称不能为空")
		case errors.Is(err, service.ErrExperimentTooFewPosts):
			respondError(c, http.StatusBadRequest, "实验至少需要两篇文章")
		case errors.Is(err, service.ErrPostNotFound):
			respondError(c, http.StatusBadRequest, "文章不存在或不属于当前工作区")
		case errors.Is(err, service.ErrPostInExperiment):
			respondError(c, http.StatusConflict, "文章已在其他实验中")
		default:
			a.logger.Error("create experiment", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "创建实验失败")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"experiment": exp, "variants": variants})
}

// GetExperimentResults 计算实验当前结果，不改变实验状态。
func (a *API) GetExperimentResults(c *gin.Context) {
	id, ok := a.requireExperiment(c)
	if !ok {
		return
	}
	results, err := a.experiments.ComputeExperimentResults(c.Request.Context(), id)
	if err != nil {
		a.respondExperimentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// CompleteExperiment 在出现胜出变体时结束实验。
func (a *API) CompleteExperiment(c *gin.Context) {
	id, ok := a.requireExperiment(c)
	if !ok {
		return
	}
	results, err := a.experiments.CompleteExperiment(c.Request.Context(), id)
	if err != nil {
		a.respondExperimentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "completed": results.HasWinner()})
}

// CancelExperiment 取消实验并释放文章。
func (a *API) CancelExperiment(c *gin.Context) {
	id, ok := a.requireExperiment(c)
	if !ok {
		return
	}
	if err := a.experiments.CancelExperiment(c.Request.Context(), id); err != nil {
		a.respondExperimentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "实验已取消"})
}

// ExplainExperiment 生成实验总结，生成失败时返回占位文本。
func (a *API) ExplainExperiment(c *gin.Context) {
	id, ok := a.requireExperiment(c)
	if !ok {
		return
	}
	summary, err := a.experiments.ExplainExperiment(c.Request.Context(), id)
	if err != nil {
		a.respondExperimentError(c, err)
		return
	}
	c.JSON(http.StatusOK, a.explanationPayload(summary))
}

func (a *API) requireExperiment(c *gin.Context) (string, bool) {
	id := c.Param("id")
	exp, err := a.store.GetExperiment(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusNotFound, "实验不存在")
			return "", false
		}
		a.logger.Error("load experiment", zap.String("experiment_id", id), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "读取实验失败")
		return "", false
	}
	if exp.WorkspaceID != currentWorkspace(c) {
		respondError(c, http.StatusNotFound, "实验不存在")
		return "", false
	}
	return exp.ID, true
}

func (a *API) respondExperimentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExperimentNotFound):
		respondError(c, http.StatusNotFound, "实验不存在")
	case errors.Is(err, service.ErrExperimentClosed):
		respondError(c, http.StatusConflict, "实验已结束")
	default:
		a.logger.Error("experiment operation", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "实验操作失败")
	}
}

func (a *API) explanationPayload(text string) gin.H {
	payload := gin.H{"explanation": text}
	if text == service.ExplanationUnavailable {
		return payload
	}
	if rendered, err := a.explanation.RenderHTML(text); err == nil {
		payload["explanation_html"] = rendered
	}
	return payload
}
