package handlers

import (
	"net/http"
	"strings"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/service"
	"github.com/gin-gonic/gin"
)

type OptimizationHandler struct {
	service *service.OptimizationService
}

func NewOptimizationHandler(service *service.OptimizationService) *OptimizationHandler {
	return &OptimizationHandler{service: service}
}

// Analyze runs a full optimization pass
func (h *OptimizationHandler) Analyze(c *gin.Context) {
	report, err := h.service.Analyze(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to analyze inventory")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

func (h *OptimizationHandler) GetReport(c *gin.Context) {
	report, ok := h.service.LastReport()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "reason": "not_found", "message": "no analysis has run yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

func (h *OptimizationHandler) GetPending(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.PendingOptimizations())
}

func (h *OptimizationHandler) Apply(c *gin.Context) {
	sku := strings.TrimSpace(c.Param("sku"))
	settings, err := h.service.ApplyOptimization(c.Request.Context(), sku)
	if err != nil {
		respondError(c, err, "failed to apply optimization")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sku": sku, "settings": settings})
}

func (h *OptimizationHandler) ApplyAll(c *gin.Context) {
	result, err := h.service.ApplyAll(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to apply optimizations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "applied": result.Applied, "skus": result.SKUs})
}

func (h *OptimizationHandler) GetProblems(c *gin.Context) {
	limit := parsePositiveIntWithDefault(c.Query("limit"), 10)
	problems, err := h.service.GetTopProblems(limit)
	if err != nil {
		respondError(c, err, "failed to rank products")
		return
	}
	c.JSON(http.StatusOK, problems)
}

func (h *OptimizationHandler) GetForecast(c *gin.Context) {
	days := parsePositiveIntWithDefault(c.Query("days"), 7)
	forecasts, err := h.service.Forecast(c.Request.Context(), c.Param("sku"), days)
	if err != nil {
		respondError(c, err, "failed to forecast demand")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": c.Param("sku"), "forecasts": forecasts})
}

func (h *OptimizationHandler) GetAccuracy(c *gin.Context) {
	acc, err := h.service.ForecastAccuracy(c.Request.Context(), c.Param("sku"))
	if err != nil {
		respondError(c, err, "failed to compute forecast accuracy")
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *OptimizationHandler) GetFeatures(c *gin.Context) {
	bundle, err := h.service.Features(c.Request.Context(), c.Param("sku"))
	if err != nil {
		respondError(c, err, "failed to compute features")
		return
	}
	c.JSON(http.StatusOK, bundle)
}
