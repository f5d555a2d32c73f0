package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chorus/presence-bridge/models"
	"chorus/presence-bridge/services"
)

func HealthCheck(manager *services.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    "ok",
			LoggedOn:  manager.AnyOnline(),
			Bridges:   manager.Count(),
			Timestamp: time.Now(),
		})
	}
}
