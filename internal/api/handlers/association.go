package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/energyingest/internal/models"
	"github.com/langchou/energyingest/internal/repository"
)

type associationRequest struct {
	MeterID string `json:"meterId"`
}

// PutAssociation 绑定车辆与电表，已有绑定时替换
// PUT /v1/associations/:vehicleId
func (h *Handler) PutAssociation(c *gin.Context) {
	vehicleID := c.Param("vehicleId")
	if strings.TrimSpace(vehicleID) == "" {
		c.JSON(http.StatusBadRequest, statusBody(http.StatusBadRequest, "Invalid vehicleId format"))
		return
	}

	var req associationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.MeterID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"statusCode": http.StatusBadRequest,
			"message":    "Validation failed",
			"errors":     []string{"meterId is required"},
		})
		return
	}

	a := &models.VehicleMeterAssociation{VehicleID: vehicleID, MeterID: req.MeterID}
	if err := h.associations.Upsert(c.Request.Context(), a); err != nil {
		h.internalError(c, "Failed to upsert association", err,
			zap.String("vehicle_id", vehicleID),
			zap.String("meter_id", req.MeterID),
		)
		return
	}

	h.logger.Info("Association updated",
		zap.String("vehicle_id", vehicleID),
		zap.String("meter_id", req.MeterID),
	)
	c.JSON(http.StatusOK, a)
}

// GetVehicleMeters 获取车辆关联的电表
// GET /v1/associations/vehicle/:vehicleId
func (h *Handler) GetVehicleMeters(c *gin.Context) {
	vehicleID := c.Param("vehicleId")
	if strings.TrimSpace(vehicleID) == "" {
		c.JSON(http.StatusBadRequest, statusBody(http.StatusBadRequest, "Invalid vehicleId format"))
		return
	}

	meterIDs, err := h.associations.MeterIDsForVehicle(c.Request.Context(), vehicleID)
	if err != nil {
		h.internalError(c, "Failed to list associated meters", err, zap.String("vehicle_id", vehicleID))
		return
	}
	if meterIDs == nil {
		meterIDs = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"vehicleId": vehicleID, "meterIds": meterIDs})
}

// GetMeterVehicle 获取电表关联的车辆
// GET /v1/associations/meter/:meterId
func (h *Handler) GetMeterVehicle(c *gin.Context) {
	meterID := c.Param("meterId")
	if strings.TrimSpace(meterID) == "" {
		c.JSON(http.StatusBadRequest, statusBody(http.StatusBadRequest, "Invalid meterId format"))
		return
	}

	vehicleID, err := h.associations.VehicleIDForMeter(c.Request.Context(), meterID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, statusBody(http.StatusNotFound, fmt.Sprintf("No vehicle associated with meter: %s", meterID)))
		return
	}
	if err != nil {
		h.internalError(c, "Failed to get associated vehicle", err, zap.String("meter_id", meterID))
		return
	}

	c.JSON(http.StatusOK, gin.H{"meterId": meterID, "vehicleId": vehicleID})
}
