package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/icsys/backend/internal/application/orchestrator"
	"github.com/icsys/backend/internal/infrastructure/websocket"
	"github.com/icsys/backend/internal/interfaces/http/response"
)

// QueueStatsSource 各连接消息队列统计来源
type QueueStatsSource interface {
	QueueStats() map[string]websocket.QueueStats
}

// StatsHandler 运行时统计处理器
type StatsHandler struct {
	hub    *websocket.Hub
	orch   *orchestrator.Orchestrator
	queues QueueStatsSource
}

// NewStatsHandler 创建统计处理器
func NewStatsHandler(hub *websocket.Hub, orch *orchestrator.Orchestrator, queues QueueStatsSource) *StatsHandler {
	return &StatsHandler{hub: hub, orch: orch, queues: queues}
}

// Runtime 查询运行时统计
// @Summary 运行时统计
// @Tags 统计
// @Produce json
// @Success 200 {object} response.Response
// @Router /stats/runtime [get]
func (h *StatsHandler) Runtime(c *gin.Context) {
	response.Success(c, gin.H{
		"connectedClients": h.hub.ConnectedClients(),
		"activeTasks":      h.orch.ActiveTaskCount(),
		"queues":           h.queues.QueueStats(),
	})
}
