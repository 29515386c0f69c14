package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/icsys/backend/internal/application/sensor"
	"github.com/icsys/backend/internal/domain/environment"
	"github.com/icsys/backend/internal/interfaces/http/response"
)

// SensorHandler 环境传感器处理器
type SensorHandler struct {
	subscriptions *sensor.SubscriptionManager
	pollers       *sensor.APIPoller
	watcher       *sensor.FileWatcher
	subRepo       environment.SubscriptionRepository
	eventRepo     environment.EventRepository
}

// NewSensorHandler 创建传感器处理器
func NewSensorHandler(
	subscriptions *sensor.SubscriptionManager,
	pollers *sensor.APIPoller,
	watcher *sensor.FileWatcher,
	subRepo environment.SubscriptionRepository,
	eventRepo environment.EventRepository,
) *SensorHandler {
	return &SensorHandler{
		subscriptions: subscriptions,
		pollers:       pollers,
		watcher:       watcher,
		subRepo:       subRepo,
		eventRepo:     eventRepo,
	}
}

// ListSubscriptions 查询活跃订阅
// @Summary 订阅列表
// @Tags 传感器
// @Produce json
// @Success 200 {object} response.Response
// @Router /subscriptions [get]
func (h *SensorHandler) ListSubscriptions(c *gin.Context) {
	subs, err := h.subRepo.FindActive("")
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}

	response.Success(c, subs)
}

// AddSubscription 新增订阅
// @Summary 新增订阅
// @Tags 传感器
// @Accept json
// @Produce json
// @Param body body sensor.SubscriptionConfig true "订阅配置"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /subscriptions [post]
func (h *SensorHandler) AddSubscription(c *gin.Context) {
	var cfg sensor.SubscriptionConfig
	if err := c.ShouldBindJSON(&cfg); err != nil || cfg.URL == "" {
		response.Error(c, http.StatusBadRequest, 100001, "参数错误")
		return
	}

	id, err := h.subscriptions.Add(cfg)
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 100004, "创建失败", err.Error())
		return
	}

	response.Success(c, gin.H{"id": id})
}

// RemoveSubscription 移除订阅
// @Summary 移除订阅
// @Tags 传感器
// @Produce json
// @Param id path string true "订阅ID"
// @Success 200 {object} response.Response
// @Router /subscriptions/{id} [delete]
func (h *SensorHandler) RemoveSubscription(c *gin.Context) {
	id := c.Param("id")
	if err := h.subscriptions.Remove(id); err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 100004, "移除失败", err.Error())
		return
	}

	response.Success(c, gin.H{"id": id})
}

// AddPoller 新增 API 轮询器
// @Summary 新增轮询器
// @Tags 传感器
// @Accept json
// @Produce json
// @Param body body sensor.PollerConfig true "轮询配置"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /pollers [post]
func (h *SensorHandler) AddPoller(c *gin.Context) {
	var cfg sensor.PollerConfig
	if err := c.ShouldBindJSON(&cfg); err != nil || cfg.URL == "" {
		response.Error(c, http.StatusBadRequest, 100001, "参数错误")
		return
	}

	id, err := h.pollers.Add(cfg)
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 100004, "创建失败", err.Error())
		return
	}

	response.Success(c, gin.H{"id": id})
}

// RemovePoller 移除 API 轮询器
// @Summary 移除轮询器
// @Tags 传感器
// @Produce json
// @Param id path string true "轮询器ID"
// @Success 200 {object} response.Response
// @Router /pollers/{id} [delete]
func (h *SensorHandler) RemovePoller(c *gin.Context) {
	id := c.Param("id")
	if err := h.pollers.Remove(id); err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 100004, "移除失败", err.Error())
		return
	}

	response.Success(c, gin.H{"id": id})
}

// WatchPathRequest 监听目录请求
type WatchPathRequest struct {
	Path string `json:"path" binding:"required"`
}

// AddWatchPath 新增文件监听目录
// @Summary 新增监听目录
// @Tags 传感器
// @Accept json
// @Produce json
// @Param body body WatchPathRequest true "目录"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Router /watch-paths [post]
func (h *SensorHandler) AddWatchPath(c *gin.Context) {
	var req WatchPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 100001, "参数错误")
		return
	}

	if err := h.watcher.AddPath(req.Path); err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 100004, "添加失败", err.Error())
		return
	}

	response.Success(c, gin.H{"path": req.Path})
}

// RecentEvents 查询未处理环境事件
// @Summary 环境事件列表
// @Tags 传感器
// @Produce json
// @Param limit query int false "条数上限" default(20)
// @Success 200 {object} response.Response
// @Router /events [get]
func (h *SensorHandler) RecentEvents(c *gin.Context) {
	limit := queryInt(c, "limit", 20)

	events, err := h.eventRepo.FindUnprocessed(limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 100003, "查询失败")
		return
	}

	response.Success(c, events)
}
