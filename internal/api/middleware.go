package api

import (
	"errors"
	"net/http"
	"strings"

	"shoe-store/internal/identity"
	"shoe-store/internal/service"

	"github.com/gin-gonic/gin"
)

const subjectKey = "uid"

// authenticate requires a bearer token: 401 when it is missing, 403 when it
// does not verify.
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}

		subject, err := h.svc.Identity.VerifyToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(subjectKey, subject)
		c.Request = c.Request.WithContext(identity.WithSubject(c.Request.Context(), subject))
		c.Next()
	}
}

// requireAdmin re-reads the caller's user document on every request.
func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.svc.Users.RequireAdmin(c.Request.Context(), currentUser(c))
		if errors.Is(err, service.ErrForbidden) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin privileges required"})
			return
		}
		if err != nil {
			h.respondError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return identity.CurrentUser(c.Request.Context())
}
