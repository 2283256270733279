package handlers

import (
	"net/http"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/retraining"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/service"
	"github.com/gin-gonic/gin"
)

type RetrainingHandler struct {
	service *service.OptimizationService
}

func NewRetrainingHandler(service *service.OptimizationService) *RetrainingHandler {
	return &RetrainingHandler{service: service}
}

type retrainRequest struct {
	SKU           string `json:"sku"`
	Force         bool   `json:"force"`
	ValidateAfter bool   `json:"validate_after"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// bindOptional accepts an empty body
func bindOptional(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body", "details": err.Error()})
		return false
	}
	return true
}

func (h *RetrainingHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Retraining().GetStatus())
}

func (h *RetrainingHandler) GetRecommendations(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Retraining().GetRecommendations())
}

func (h *RetrainingHandler) GetHistory(c *gin.Context) {
	limit := parsePositiveIntWithDefault(c.Query("limit"), 10)
	c.JSON(http.StatusOK, h.service.Retraining().GetHistory(limit))
}

func (h *RetrainingHandler) SetEnabled(c *gin.Context) {
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "enabled is required"})
		return
	}
	if err := h.service.Retraining().SetEnabled(c.Request.Context(), *req.Enabled); err != nil {
		respondError(c, err, "failed to update retraining state")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "enabled": *req.Enabled})
}

func (h *RetrainingHandler) Evaluate(c *gin.Context) {
	result, err := h.service.EvaluateModel(c.Request.Context(), c.Query("sku"))
	if err != nil {
		respondError(c, err, "failed to evaluate model")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RetrainingHandler) Retrain(c *gin.Context) {
	var req retrainRequest
	if !bindOptional(c, &req) {
		return
	}

	result, err := h.service.Retrain(c.Request.Context(), req.SKU, retraining.RetrainOptions{
		Force:         req.Force,
		ValidateAfter: req.ValidateAfter,
	})
	if err != nil {
		respondError(c, err, "failed to retrain model")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RetrainingHandler) RunWorkflow(c *gin.Context) {
	var req retrainRequest
	if !bindOptional(c, &req) {
		return
	}

	result, err := h.service.RunRetrainingWorkflow(c.Request.Context(), req.SKU, retraining.WorkflowOptions{Force: req.Force})
	if err != nil {
		respondError(c, err, "failed to run retraining workflow")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RetrainingHandler) Reset(c *gin.Context) {
	if err := h.service.Retraining().Reset(c.Request.Context()); err != nil {
		respondError(c, err, "failed to reset retraining state")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
