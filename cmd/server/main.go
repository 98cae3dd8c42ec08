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
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/matchup-engine/internal/api"
	"github.com/jstittsworth/matchup-engine/internal/api/handlers"
	"github.com/jstittsworth/matchup-engine/internal/api/middleware"
	"github.com/jstittsworth/matchup-engine/internal/providers"
	"github.com/jstittsworth/matchup-engine/internal/services"
	"github.com/jstittsworth/matchup-engine/pkg/config"
	"github.com/jstittsworth/matchup-engine/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Setup logging
	if cfg.IsDevelopment() {
		logrus.SetLevel(logrus.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to Redis
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logrus.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logrus.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize services
	cacheService := services.NewCacheService(redisClient)
	reportService := services.NewReportService(cfg.ReportSize)

	datasetStore := services.NewDatasetStore(cfg.DatasetTTL, logrus.StandardLogger())
	if err := datasetStore.Start(cfg.DatasetSweepSchedule); err != nil {
		logrus.Fatalf("Failed to start dataset store: %v", err)
	}
	defer datasetStore.Stop()

	// Remote CSV provider
	provider := providers.NewNflverseClient(providers.NflverseConfig{
		ReceiverURL:      cfg.ReceiverCSVURL,
		DefenseURL:       cfg.DefenseCSVURL,
		MatchupURL:       cfg.MatchupCSVURL,
		RequestsPerSec:   cfg.ProviderRateLimit,
		BreakerThreshold: uint32(cfg.CircuitBreakerThreshold),
		Timeout:          cfg.ExternalAPITimeout,
	}, logrus.StandardLogger())

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CorsOrigins))
	router.Use(middleware.Metrics())

	// Health and metrics endpoints
	healthHandler := handlers.NewHealthHandler(redisClient)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Setup API routes under /api/v1
	apiV1 := router.Group("/api/v1")
	api.SetupRoutes(apiV1, datasetStore, cacheService, reportService, provider, cfg)

	// Setup server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logrus.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
