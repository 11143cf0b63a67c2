package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zoomsync/backend/internal/auth"
	"github.com/zoomsync/backend/pkg/response"
)

const (
	// ContextOperator is the key for the authenticated operator name in gin context.
	ContextOperator = "operator"
	// ContextUserRole is the key for the operator role in gin context.
	ContextUserRole = "user_role"
)

// JWT returns a middleware that validates the bearer token and sets operator claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextOperator, claims.Subject)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}
