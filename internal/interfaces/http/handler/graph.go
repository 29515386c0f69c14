package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/icsys/backend/internal/domain/conversation"
	"github.com/icsys/backend/internal/interfaces/http/response"
)

// GraphHandler 画布图处理器
type GraphHandler struct {
	graphs conversation.GraphStore
}

// NewGraphHandler 创建画布图处理器
func NewGraphHandler(graphs conversation.GraphStore) *GraphHandler {
	return &GraphHandler{graphs: graphs}
}

// Get 读取会话画布快照
// @Summary 读取画布
// @Tags 画布
// @Produce json
// @Param sessionId path string true "会话ID"
// @Success 200 {object} response.Response
// @Router /sessions/{sessionId}/graph [get]
func (h *GraphHandler) Get(c *gin.Context) {
	sessionID := c.Param("sessionId")

	graph, err := h.graphs.GetGraph(sessionID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}
	if graph == nil {
		// 空画布对前端是正常状态
		graph = &conversation.CanvasGraph{SessionID: sessionID, Nodes: []conversation.GraphNode{}}
	}

	response.Success(c, graph)
}

// Save 保存会话画布快照（整体覆盖）
// @Summary 保存画布
// @Tags 画布
// @Accept json
// @Produce json
// @Param sessionId path string true "会话ID"
// @Param body body conversation.CanvasGraph true "画布数据"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /sessions/{sessionId}/graph [post]
func (h *GraphHandler) Save(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var graph conversation.CanvasGraph
	if err := c.ShouldBindJSON(&graph); err != nil {
		response.Error(c, http.StatusBadRequest, 100001, "参数错误")
		return
	}

	graph.SessionID = sessionID
	graph.UpdatedAt = time.Now().UnixMilli()
	if err := h.graphs.SaveGraph(sessionID, &graph); err != nil {
		response.Error(c, http.StatusInternalServerError, 100004, "保存失败")
		return
	}

	response.Success(c, gin.H{"sessionId": sessionID, "nodeCount": len(graph.Nodes)})
}

// NodePositionRequest 节点位置更新请求
type NodePositionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UpdateNodePosition 更新单个节点坐标
// @Summary 更新节点位置
// @Tags 画布
// @Accept json
// @Produce json
// @Param sessionId path string true "会话ID"
// @Param nodeId path string true "节点ID"
// @Param body body NodePositionRequest true "坐标"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /sessions/{sessionId}/graph/nodes/{nodeId}/position [put]
func (h *GraphHandler) UpdateNodePosition(c *gin.Context) {
	sessionID := c.Param("sessionId")
	nodeID := c.Param("nodeId")

	var req NodePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 100001, "参数错误")
		return
	}

	graph, err := h.graphs.GetGraph(sessionID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}
	if graph == nil {
		response.Error(c, http.StatusNotFound, 100002, "画布不存在")
		return
	}

	node := graph.FindNode(nodeID)
	if node == nil {
		response.Error(c, http.StatusNotFound, 100002, "节点不存在")
		return
	}

	node.X = req.X
	node.Y = req.Y
	graph.UpdatedAt = time.Now().UnixMilli()
	if err := h.graphs.SaveGraph(sessionID, graph); err != nil {
		response.Error(c, http.StatusInternalServerError, 100004, "保存失败")
		return
	}

	response.Success(c, node)
}
