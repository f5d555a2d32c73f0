package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"chorus/presence-bridge/config"
	"chorus/presence-bridge/middleware"
	"chorus/presence-bridge/services"
	"chorus/presence-bridge/utils"
)

// NewRouter wires every route. Only /health skips the token gate.
func NewRouter(cfg *config.Config, manager *services.Manager, logger *utils.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(logger))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(middleware.CORS(cfg.CORSOrigins))
	}

	bridgeHandler := NewBridgeHandler(manager, logger)
	presenceHandler := NewPresenceHandler(manager)
	debugHandler := NewDebugHandler(manager)
	streamHandler := NewStreamHandler(manager, logger, cfg.StreamInterval, time.Now)

	router.GET("/health", HealthCheck(manager))

	gated := router.Group("/")
	gated.Use(middleware.TokenGate(cfg.BridgeToken))
	{
		bridges := gated.Group("/internal/bridge")
		{
			bridges.GET("/user/:userId", bridgeHandler.ListByUser)
			bridges.POST("/:bridgeId/connect", bridgeHandler.Connect)
			bridges.POST("/:bridgeId/disconnect", bridgeHandler.Disconnect)
			bridges.GET("/:bridgeId/status", bridgeHandler.Status)
		}

		gated.GET("/presence/:steamId", presenceHandler.GetPresence)
		gated.GET("/presencefull/:steamId", presenceHandler.GetFullPresence)
		gated.GET("/stream/presence/:steamId", streamHandler.Stream)

		debug := gated.Group("/debug")
		debug.Use(middleware.DebugGate(cfg.DebugToken))
		{
			debug.GET("/presence/:steamId", debugHandler.Presence)
			debug.GET("/keys", debugHandler.Keys)
		}
	}

	return router
}
