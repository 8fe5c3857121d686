package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lexsign/internal/services"
	"go.uber.org/zap"
)

// statusFor maps service error kinds to HTTP statuses.
func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindInvalidIdentity, services.KindInvalidState, services.KindOTPMismatch:
		return http.StatusBadRequest
	case services.KindAlreadySigned, services.KindAlreadyVerified,
		services.KindTerminalState, services.KindConflict, services.KindOutOfOrder:
		return http.StatusConflict
	case services.KindRetryLimitExceeded:
		return http.StatusTooManyRequests
	case services.KindExpired:
		return http.StatusGone
	case services.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case services.KindProviderRejected:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError renders a typed service error as JSON. Errors without a
// kind are internal; their detail never reaches the client.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var se *services.Error
	if !errors.As(err, &se) {
		logger.Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(statusFor(se.Kind), gin.H{
		"error":     se.Reason,
		"kind":      string(se.Kind),
		"retryable": se.Retryable(),
	})
}
