package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meepleai/meepleai/pkg/models"
)

// Context keys and headers used across handlers.
const (
	HeaderCorrelationID = "X-Correlation-Id"
	headerUserID        = "X-User-Id"
	headerUserRole      = "X-User-Role"

	ctxKeyCorrelationID = "correlationId"
	ctxKeyIdentity      = "identity"
)

// Role levels enforced by requireRole. The auth collaborator verifies the
// session; this layer only checks the resolved role.
var roleLevels = map[string]int{
	"user":   1,
	"editor": 2,
	"admin":  3,
}

// correlationMiddleware assigns (or propagates) a correlation id, echoes
// it on the response, and emits one structured access log line.
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set(ctxKeyCorrelationID, correlationID)
		c.Writer.Header().Set(HeaderCorrelationID, correlationID)

		start := time.Now()
		c.Next()

		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"correlation_id", correlationID)
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// identityMiddleware resolves the caller identity placed on the request
// by the auth collaborator. Requests without an identity are rejected.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		if userID == "" {
			abortError(c, http.StatusUnauthorized, "authentication required", "UNAUTHENTICATED")
			return
		}
		role := c.GetHeader(headerUserRole)
		if _, ok := roleLevels[role]; !ok {
			role = "user"
		}
		c.Set(ctxKeyIdentity, models.Identity{UserID: userID, Role: role})
		c.Next()
	}
}

// requireRole rejects callers below the given role level.
func requireRole(minimum string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := callerIdentity(c)
		if roleLevels[identity.Role] < roleLevels[minimum] {
			abortError(c, http.StatusForbidden, "insufficient role", "FORBIDDEN")
			return
		}
		c.Next()
	}
}

func callerIdentity(c *gin.Context) models.Identity {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if identity, ok := v.(models.Identity); ok {
			return identity
		}
	}
	return models.Identity{}
}

func correlationID(c *gin.Context) string {
	return c.GetString(ctxKeyCorrelationID)
}

func abortError(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:         message,
		Code:          code,
		CorrelationID: correlationID(c),
	})
}
