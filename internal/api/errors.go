package api

import (
	"errors"
	"net/http"

	"shoe-store/internal/identity"
	"shoe-store/internal/redisclient"
	"shoe-store/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, identity.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.Is(err, identity.ErrInvalidToken):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, redisclient.ErrLockBusy),
		errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": ...}. Client errors carry their message;
// server errors only carry details when ExposeErrors is set.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.logger.Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))

	body := gin.H{"error": "Internal server error"}
	if errors.Is(err, service.ErrPartialWrite) {
		body["error"] = service.ErrPartialWrite.Error()
	}
	if h.opts.ExposeErrors {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}
