package handlers

import (
	"net/http"
	"strconv"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var kindStatus = map[domain.ErrorKind]int{
	domain.KindInsufficientData:  http.StatusUnprocessableEntity,
	domain.KindNoPerformanceData: http.StatusUnprocessableEntity,
	domain.KindCooldown:          http.StatusTooManyRequests,
	domain.KindDisabled:          http.StatusConflict,
	domain.KindBusy:              http.StatusConflict,
	domain.KindNotFound:          http.StatusNotFound,
}

// StatusFor maps an error to the HTTP status it is reported with
func StatusFor(err error) int {
	if kind, ok := domain.ReasonOf(err); ok {
		if code, ok := kindStatus[kind]; ok {
			return code
		}
	}
	return http.StatusInternalServerError
}

// respondError writes reason-coded errors as {"success":false,"reason":...}
// and everything else as a 500.
func respondError(c *gin.Context, err error, message string) {
	if kind, ok := domain.ReasonOf(err); ok {
		c.JSON(StatusFor(err), gin.H{
			"success": false,
			"reason":  kind,
			"message": kind.Message(),
			"details": err.Error(),
		})
		return
	}

	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(message)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": message, "details": err.Error()})
}

func parsePositiveIntWithDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	if v, err := strconv.Atoi(value); err == nil && v > 0 {
		return v
	}
	return fallback
}
