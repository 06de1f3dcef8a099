package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/energyingest/internal/repository"
)

// GetMeterStatus 获取电表当前状态
// GET /v1/status/meter/:meterId
func (h *Handler) GetMeterStatus(c *gin.Context) {
	meterID := c.Param("meterId")
	if strings.TrimSpace(meterID) == "" {
		c.JSON(http.StatusBadRequest, statusBody(http.StatusBadRequest, "Invalid meterId format"))
		return
	}

	status, err := h.statuses.GetMeterStatus(c.Request.Context(), meterID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, statusBody(http.StatusNotFound, fmt.Sprintf("No status found for meter: %s", meterID)))
		return
	}
	if err != nil {
		h.internalError(c, "Failed to get meter status", err, zap.String("meter_id", meterID))
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetVehicleStatus 获取车辆当前状态
// GET /v1/status/vehicle/:vehicleId
func (h *Handler) GetVehicleStatus(c *gin.Context) {
	vehicleID := c.Param("vehicleId")
	if strings.TrimSpace(vehicleID) == "" {
		c.JSON(http.StatusBadRequest, statusBody(http.StatusBadRequest, "Invalid vehicleId format"))
		return
	}

	status, err := h.statuses.GetVehicleStatus(c.Request.Context(), vehicleID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, statusBody(http.StatusNotFound, fmt.Sprintf("No status found for vehicle: %s", vehicleID)))
		return
	}
	if err != nil {
		h.internalError(c, "Failed to get vehicle status", err, zap.String("vehicle_id", vehicleID))
		return
	}

	c.JSON(http.StatusOK, status)
}
