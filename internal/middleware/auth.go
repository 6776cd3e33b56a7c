package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/longtails/freemasons/internal/utils"
	"github.com/longtails/freemasons/pkg/response"
)

const (
	ContextOperator = "operator"
	ContextRole     = "role"
)

// AuthRequired is a middleware that checks for a valid JWT token
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextOperator, claims.Operator)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// OperatorRequired rejects read-only tokens on routes that write or call
// remote sources.
func OperatorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != utils.RoleOperator {
			response.Forbidden(c, "operator access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetOperator gets the calling operator's name from context
func GetOperator(c *gin.Context) string {
	if name, exists := c.Get(ContextOperator); exists {
		return name.(string)
	}
	return ""
}

// GetRole gets the caller's role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		return role.(string)
	}
	return ""
}
