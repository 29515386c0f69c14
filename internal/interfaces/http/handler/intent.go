package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/interfaces/http/response"
)

// IntentHandler 意图处理器
// 提供意图行、元信息、CRS 与上下文快照的只读查询
type IntentHandler struct {
	intents conversation.IntentRepository
	archive conversation.IntentArchive
}

// NewIntentHandler 创建意图处理器
func NewIntentHandler(intents conversation.IntentRepository, archive conversation.IntentArchive) *IntentHandler {
	return &IntentHandler{intents: intents, archive: archive}
}

// Get 查询意图详情（关系库行 + 元信息）
// @Summary 意图详情
// @Tags 意图
// @Produce json
// @Param intentId path string true "意图ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /intents/{intentId} [get]
func (h *IntentHandler) Get(c *gin.Context) {
	intentID := c.Param("intentId")

	row, err := h.intents.FindByID(intentID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}
	if row == nil {
		response.Error(c, http.StatusNotFound, 100002, "意图不存在")
		return
	}

	// 元信息缺失不视为错误，行数据仍可返回
	meta, _ := h.archive.GetIntentMeta(intentID)

	response.Success(c, gin.H{"intent": row, "meta": meta})
}

// ListBySession 查询会话意图列表
// @Summary 会话意图列表
// @Tags 意图
// @Produce json
// @Param sessionId path string true "会话ID"
// @Param limit query int false "条数上限" default(50)
// @Success 200 {object} response.Response
// @Router /sessions/{sessionId}/intents [get]
func (h *IntentHandler) ListBySession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	limit := queryInt(c, "limit", 50)

	rows, err := h.intents.FindBySession(sessionID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}

	response.Success(c, rows)
}

// GetContextSpec 查询意图的上下文需求说明（CRS）
// @Summary 意图 CRS
// @Tags 意图
// @Produce json
// @Param intentId path string true "意图ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /intents/{intentId}/context-spec [get]
func (h *IntentHandler) GetContextSpec(c *gin.Context) {
	intentID := c.Param("intentId")

	spec, err := h.archive.GetContextSpec(intentID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}
	if spec == nil {
		response.Error(c, http.StatusNotFound, 100002, "CRS 不存在")
		return
	}

	response.Success(c, spec)
}

// GetContext 查询意图的上下文快照
// @Summary 意图上下文快照
// @Tags 意图
// @Produce json
// @Param intentId path string true "意图ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /intents/{intentId}/context [get]
func (h *IntentHandler) GetContext(c *gin.Context) {
	intentID := c.Param("intentId")

	var snapshot map[string]any
	ok, err := h.archive.GetIntentContext(intentID, &snapshot)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}
	if !ok {
		response.Error(c, http.StatusNotFound, 100002, "上下文快照不存在")
		return
	}

	response.Success(c, snapshot)
}
