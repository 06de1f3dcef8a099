package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/energyingest/internal/state"
	"github.com/langchou/energyingest/pkg/ws"
)

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/v1")
	{
		// 遥测写入
		v1.POST("/telemetry/meter", h.IngestMeter)
		v1.POST("/telemetry/vehicle", h.IngestVehicle)

		// 分析
		v1.GET("/analytics/performance/:vehicleId", h.GetPerformance)

		// 当前状态
		v1.GET("/status/meter/:meterId", h.GetMeterStatus)
		v1.GET("/status/vehicle/:vehicleId", h.GetVehicleStatus)

		// 车辆与电表关联
		v1.PUT("/associations/:vehicleId", h.PutAssociation)
		v1.GET("/associations/vehicle/:vehicleId", h.GetVehicleMeters)
		v1.GET("/associations/meter/:meterId", h.GetMeterVehicle)

		// 车辆能效健康状态
		v1.GET("/health/vehicle/:vehicleId", h.GetVehicleHealth)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)

	r.NoRoute(h.NotFound)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	if topics := c.QueryArray("topic"); len(topics) > 0 {
		client.Subscribe(topics...)
	}
	if !client.Register() {
		conn.Close()
		return
	}

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// GetVehicleHealth 获取车辆能效健康状态
func (h *Handler) GetVehicleHealth(c *gin.Context) {
	vehicleID := c.Param("vehicleId")
	if strings.TrimSpace(vehicleID) == "" {
		c.JSON(http.StatusBadRequest, statusBody(http.StatusBadRequest, "Invalid vehicleId format"))
		return
	}

	var (
		health state.VehicleHealth
		ok     bool
	)
	if h.health != nil {
		health, ok = h.health.Health(vehicleID)
	}
	if !ok {
		c.JSON(http.StatusNotFound, statusBody(http.StatusNotFound, "No health state for vehicle: "+vehicleID))
		return
	}
	c.JSON(http.StatusOK, health)
}

// HealthCheck 健康检查，数据库不可达时返回 503
func (h *Handler) HealthCheck(c *gin.Context) {
	now := h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")

	if err := h.db.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"timestamp": now,
		})
		return
	}

	body := gin.H{
		"status":    "healthy",
		"timestamp": now,
	}
	// Redis 只是状态镜像，不可达时服务降级但仍可写入
	if h.cache != nil {
		if err := h.cache.Ping(c.Request.Context()); err != nil {
			h.logger.Warn("Redis health check failed", zap.Error(err))
			body["status"] = "degraded"
			body["redis"] = "unreachable"
		} else {
			body["redis"] = "ok"
		}
	}
	if h.wsHub != nil {
		body["ws_clients"] = h.wsHub.ClientCount()
	}
	c.JSON(http.StatusOK, body)
}

// NotFound 未匹配路由
func (h *Handler) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, statusBody(http.StatusNotFound, "Route not found"))
}
