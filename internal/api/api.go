// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/api/handlers"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/api/middleware"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/metrics"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/report"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	OptimizationService *service.OptimizationService
	Reports             *report.Exporter
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.OptimizationService != nil {
			optimizationHandler := handlers.NewOptimizationHandler(services.OptimizationService)
			optimizationGroup := apiGroup.Group("/optimization")
			{
				optimizationGroup.POST("/analyze", optimizationHandler.Analyze)
				optimizationGroup.GET("/report", optimizationHandler.GetReport)
				optimizationGroup.GET("/pending", optimizationHandler.GetPending)
				optimizationGroup.POST("/apply", optimizationHandler.ApplyAll)
				optimizationGroup.POST("/apply/:sku", optimizationHandler.Apply)
				optimizationGroup.GET("/problems", optimizationHandler.GetProblems)
			}

			apiGroup.GET("/forecast/:sku", optimizationHandler.GetForecast)
			apiGroup.GET("/forecast/:sku/accuracy", optimizationHandler.GetAccuracy)
			apiGroup.GET("/features/:sku", optimizationHandler.GetFeatures)

			retrainingHandler := handlers.NewRetrainingHandler(services.OptimizationService)
			retrainingGroup := apiGroup.Group("/retraining")
			{
				retrainingGroup.GET("/status", retrainingHandler.GetStatus)
				retrainingGroup.GET("/recommendations", retrainingHandler.GetRecommendations)
				retrainingGroup.GET("/history", retrainingHandler.GetHistory)
				retrainingGroup.PUT("/enabled", retrainingHandler.SetEnabled)
				retrainingGroup.POST("/evaluate", retrainingHandler.Evaluate)
				retrainingGroup.POST("/retrain", retrainingHandler.Retrain)
				retrainingGroup.POST("/workflow", retrainingHandler.RunWorkflow)
				retrainingGroup.POST("/reset", retrainingHandler.Reset)
			}
		}

		if services.Reports != nil {
			reportHandler := handlers.NewReportHandler(services.Reports)
			apiGroup.GET("/reports", reportHandler.List)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
