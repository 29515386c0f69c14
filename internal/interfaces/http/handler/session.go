package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/domain/session"
	"github.com/icsys/backend/internal/interfaces/http/response"
)

// SessionHandler 会话处理器
type SessionHandler struct {
	sessions   session.Repository
	messageLog conversation.MessageLog
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions session.Repository, messageLog conversation.MessageLog) *SessionHandler {
	return &SessionHandler{sessions: sessions, messageLog: messageLog}
}

// List 查询用户会话列表
// @Summary 会话列表
// @Tags 会话
// @Produce json
// @Param userId query string true "用户ID"
// @Param limit query int false "条数上限" default(50)
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		response.Error(c, http.StatusBadRequest, 100001, "参数错误")
		return
	}

	limit := queryInt(c, "limit", 50)
	sessions, err := h.sessions.FindByUser(userID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}

	response.Success(c, sessions)
}

// Detail 查询会话详情
// @Summary 会话详情
// @Tags 会话
// @Produce json
// @Param sessionId path string true "会话ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /sessions/{sessionId} [get]
func (h *SessionHandler) Detail(c *gin.Context) {
	sessionID := c.Param("sessionId")

	s, err := h.sessions.FindByID(sessionID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}
	if s == nil {
		response.Error(c, http.StatusNotFound, 100002, "会话不存在")
		return
	}

	response.Success(c, s)
}

// Messages 查询会话消息
// @Summary 会话消息列表
// @Tags 会话
// @Produce json
// @Param sessionId path string true "会话ID"
// @Param limit query int false "条数上限" default(100)
// @Success 200 {object} response.Response
// @Router /sessions/{sessionId}/messages [get]
func (h *SessionHandler) Messages(c *gin.Context) {
	sessionID := c.Param("sessionId")
	limit := queryInt(c, "limit", 100)

	messages, err := h.messageLog.SessionMessages(sessionID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}

	response.Success(c, messages)
}

// EditMessageRequest 消息编辑请求
type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
	Reason  string `json:"reason"`
}

// EditMessage 编辑消息
// 原内容不被覆盖，追加一条编辑记录
// @Summary 编辑消息
// @Tags 会话
// @Accept json
// @Produce json
// @Param sessionId path string true "会话ID"
// @Param messageId path string true "消息ID"
// @Param body body EditMessageRequest true "编辑内容"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /sessions/{sessionId}/messages/{messageId}/edit [put]
func (h *SessionHandler) EditMessage(c *gin.Context) {
	sessionID := c.Param("sessionId")
	messageID := c.Param("messageId")

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 100001, "参数错误")
		return
	}

	msg, err := h.messageLog.FindMessage(sessionID, messageID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}
	if msg == nil {
		response.Error(c, http.StatusNotFound, 100002, "消息不存在")
		return
	}

	msg.ApplyEdit(req.Content, req.Reason, time.Now().UnixMilli())
	if err := h.messageLog.UpdateMessage(sessionID, msg); err != nil {
		response.Error(c, http.StatusInternalServerError, 100004, "保存失败")
		return
	}

	response.Success(c, msg)
}

// queryInt 解析整型 query 参数，非法值取默认
func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
