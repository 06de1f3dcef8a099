package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/langchou/energyingest/internal/models"
)

// maxBodyBytes 单条遥测的请求体上限
const maxBodyBytes = 1 << 20

// IngestMeter 写入电表遥测
// POST /v1/telemetry/meter
func (h *Handler) IngestMeter(c *gin.Context) {
	h.ingest(c, models.KindMeter, "Meter telemetry ingested successfully")
}

// IngestVehicle 写入车辆遥测
// POST /v1/telemetry/vehicle
func (h *Handler) IngestVehicle(c *gin.Context) {
	h.ingest(c, models.KindVehicle, "Vehicle telemetry ingested successfully")
}

func (h *Handler) ingest(c *gin.Context, kind models.Kind, okMessage string) {
	raw, ok := h.readBody(c)
	if !ok {
		return
	}

	res, err := h.ingester.Ingest(c.Request.Context(), kind, raw)
	if err != nil {
		h.internalError(c, "Failed to ingest telemetry", err, zap.String("kind", string(kind)))
		return
	}
	if !res.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"statusCode": http.StatusBadRequest,
			"message":    "Validation failed",
			"errors":     res.Messages(),
		})
		return
	}

	c.JSON(http.StatusCreated, statusBody(http.StatusCreated, okMessage))
}

// readBody 解析任意 JSON 请求体，由校验器判断结构
// 空请求体按空对象处理，所有必填字段都会报告缺失
func (h *Handler) readBody(c *gin.Context) (any, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, statusBody(http.StatusBadRequest, "Invalid JSON payload"))
		return nil, false
	}
	if len(body) > maxBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, statusBody(http.StatusRequestEntityTooLarge, "Payload too large"))
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, true
	}

	var raw any
	if err := binding.JSON.BindBody(body, &raw); err != nil {
		c.JSON(http.StatusBadRequest, statusBody(http.StatusBadRequest, "Invalid JSON payload"))
		return nil, false
	}
	return raw, true
}
