package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"chorus/presence-bridge/models"
	"chorus/presence-bridge/services"
	"chorus/presence-bridge/utils"
)

type BridgeHandler struct {
	manager *services.Manager
	logger  *utils.Logger
}

func NewBridgeHandler(manager *services.Manager, logger *utils.Logger) *BridgeHandler {
	return &BridgeHandler{
		manager: manager,
		logger:  logger,
	}
}

// Connect handles POST /internal/bridge/:bridgeId/connect
func (h *BridgeHandler) Connect(c *gin.Context) {
	var req models.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// an empty body is missing every field rather than malformed
		code := "invalid_body"
		if errors.Is(err, io.EOF) {
			code = "missing_fields"
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: code})
		return
	}

	bridgeID := c.Param("bridgeId")
	status, err := h.manager.Connect(bridgeID, req)
	switch {
	case errors.Is(err, services.ErrMissingFields):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "missing_fields"})
		return
	case errors.Is(err, services.ErrInvalidSharedSecret):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_shared_secret"})
		return
	case err != nil:
		h.logger.Error("Failed to connect bridge", "bridge_id", bridgeID, "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "connect_failed"})
		return
	}

	c.JSON(http.StatusOK, models.ConnectResponse{
		OK:        true,
		BridgeID:  status.BridgeID,
		UserID:    status.UserID,
		Status:    status.Status,
		LastError: status.LastError,
	})
}

// Disconnect handles POST /internal/bridge/:bridgeId/disconnect. The body is optional.
func (h *BridgeHandler) Disconnect(c *gin.Context) {
	var req models.DisconnectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_body"})
			return
		}
	}

	bridgeID := c.Param("bridgeId")
	if !h.manager.Disconnect(bridgeID, req.UserID) {
		h.logger.Debug("Disconnect for unknown bridge", "bridge_id", bridgeID)
	}

	c.JSON(http.StatusOK, models.DisconnectResponse{OK: true, BridgeID: bridgeID})
}

// Status handles GET /internal/bridge/:bridgeId/status
func (h *BridgeHandler) Status(c *gin.Context) {
	status, err := h.manager.Status(c.Param("bridgeId"))
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "bridge_not_found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListByUser handles GET /internal/bridge/user/:userId
func (h *BridgeHandler) ListByUser(c *gin.Context) {
	userID := c.Param("userId")
	bridges := h.manager.ListByUser(userID)

	c.JSON(http.StatusOK, models.UserBridgesResponse{
		UserID:          userID,
		DefaultBridgeID: h.manager.DefaultBridge(userID),
		Count:           len(bridges),
		Bridges:         bridges,
	})
}
