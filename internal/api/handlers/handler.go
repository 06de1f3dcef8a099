package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/energyingest/internal/models"
	"github.com/langchou/energyingest/internal/state"
	"github.com/langchou/energyingest/internal/validation"
	"github.com/langchou/energyingest/pkg/ws"
)

// TelemetryIngester 遥测写入
type TelemetryIngester interface {
	Ingest(ctx context.Context, kind models.Kind, raw any) (validation.Result, error)
}

// PerformanceAnalyzer 能效汇总
type PerformanceAnalyzer interface {
	Summarize(ctx context.Context, vehicleID string, now time.Time) (*models.PerformanceSummary, error)
}

// StatusReader 当前状态查询
type StatusReader interface {
	GetMeterStatus(ctx context.Context, meterID string) (*models.MeterStatus, error)
	GetVehicleStatus(ctx context.Context, vehicleID string) (*models.VehicleStatus, error)
}

// AssociationStore 车辆与电表关联
type AssociationStore interface {
	MeterIDsForVehicle(ctx context.Context, vehicleID string) ([]string, error)
	VehicleIDForMeter(ctx context.Context, meterID string) (string, error)
	Upsert(ctx context.Context, a *models.VehicleMeterAssociation) error
}

// Pinger 数据库连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReader 车辆能效健康状态查询
type HealthReader interface {
	Health(vehicleID string) (state.VehicleHealth, bool)
}

// Handler HTTP 处理器
type Handler struct {
	logger       *zap.Logger
	ingester     TelemetryIngester
	analyzer     PerformanceAnalyzer
	statuses     StatusReader
	associations AssociationStore
	db           Pinger
	cache        Pinger // 未启用 Redis 时为 nil
	health       HealthReader
	wsHub        *ws.Hub
	upgrader     websocket.Upgrader
	now          func() time.Time
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	ingester TelemetryIngester,
	analyzer PerformanceAnalyzer,
	statuses StatusReader,
	associations AssociationStore,
	db Pinger,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:       logger,
		ingester:     ingester,
		analyzer:     analyzer,
		statuses:     statuses,
		associations: associations,
		db:           db,
		wsHub:        wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 与 CORS 策略一致，允许所有来源
			},
		},
		now: time.Now,
	}
}

// SetCache 启用 Redis 连通性检查
func (h *Handler) SetCache(cache Pinger) {
	h.cache = cache
}

// SetHealthReader 设置车辆健康状态来源
func (h *Handler) SetHealthReader(r HealthReader) {
	h.health = r
}

// statusBody 统一的 {statusCode, message} 响应
func statusBody(status int, message string) gin.H {
	return gin.H{"statusCode": status, "message": message}
}

// internalError 记录错误并返回不含内部细节的 500
func (h *Handler) internalError(c *gin.Context, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err), zap.String("request_id", c.GetString(requestIDKey)))
	h.logger.Error(msg, fields...)
	c.JSON(http.StatusInternalServerError, statusBody(http.StatusInternalServerError, "Internal server error"))
}
