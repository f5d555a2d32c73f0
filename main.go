package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"chorus/presence-bridge/config"
	"chorus/presence-bridge/handlers"
	"chorus/presence-bridge/services"
	"chorus/presence-bridge/utils"
)

func main() {
	var envFiles []string
	var port string

	flagSet := pflag.NewFlagSet("presence-bridge", pflag.ContinueOnError)
	flagSet.StringSliceVar(&envFiles, "env-file", nil, "env files to load before reading the environment (default .env)")
	flagSet.StringVar(&port, "port", "", "listen port, overrides PORT")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Load configuration
	cfg := config.LoadConfig(envFiles...)
	if port != "" {
		cfg.Port = port
	}

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel)

	if cfg.BridgeToken == "" {
		logger.Warn("BRIDGE_TOKEN is not set; every gated request will fail with 500")
	}

	// Redis status mirror is optional
	redisClient, err := services.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	manager := services.NewManager(logger, services.ManagerOptions{
		Dialer:          services.NewSteamDialer(logger),
		Mirror:          services.NewStatusMirror(redisClient, cfg.StatusTTL),
		PollInterval:    cfg.PollInterval,
		MatchGrace:      cfg.MatchGrace,
		ResyncTolerance: cfg.ResyncTolerance,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(cfg, manager, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting presence bridge", "port", cfg.Port, "redis", redisClient != nil)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Log every bridge off after the last request has drained
	manager.Shutdown()

	logger.Info("Server exited")
}
