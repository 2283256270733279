package handlers

import (
	"net/http"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/report"
	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	exporter *report.Exporter
}

func NewReportHandler(exporter *report.Exporter) *ReportHandler {
	return &ReportHandler{exporter: exporter}
}

func (h *ReportHandler) List(c *gin.Context) {
	reports, err := h.exporter.ListReports(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to list reports")
		return
	}
	c.JSON(http.StatusOK, reports)
}
