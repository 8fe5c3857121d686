package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lexsign/internal/services"
	"go.uber.org/zap"
)

type AuditHandler struct {
	audit  *services.AuditLog
	logger *zap.Logger
}

func NewAuditHandler(audit *services.AuditLog, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger.With(zap.String("handler", "audit")),
	}
}

// Recent lists the newest audit entries, bounded by ?limit=.
func (h *AuditHandler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
