package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/energyingest/internal/service"
)

// GetPerformance 获取车辆 24 小时能效汇总
// GET /v1/analytics/performance/:vehicleId
func (h *Handler) GetPerformance(c *gin.Context) {
	vehicleID := c.Param("vehicleId")
	if strings.TrimSpace(vehicleID) == "" {
		c.JSON(http.StatusBadRequest, statusBody(http.StatusBadRequest, "Invalid vehicleId format"))
		return
	}

	summary, err := h.analyzer.Summarize(c.Request.Context(), vehicleID, h.now())
	if errors.Is(err, service.ErrNoVehicleData) {
		h.logger.Info("No vehicle data in window", zap.String("vehicle_id", vehicleID))
		c.JSON(http.StatusNotFound, statusBody(http.StatusNotFound, fmt.Sprintf("No data found for vehicle: %s", vehicleID)))
		return
	}
	if err != nil {
		h.internalError(c, "Failed to compute performance summary", err, zap.String("vehicle_id", vehicleID))
		return
	}

	c.JSON(http.StatusOK, summary.Rounded())
}
