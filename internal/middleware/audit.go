package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/longtails/freemasons/internal/services"
)

// AuditLog records operator write calls (project registration, manual
// syncs) to sync_logs.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		c.Next()

		status := c.Writer.Status()
		entityType, action := parseRouteInfo(c.FullPath())
		var entityID uint
		if id, err := strconv.ParseUint(c.Param("id"), 10, 32); err == nil {
			entityID = uint(id)
		}

		entry := services.SyncEntry{
			Module:     "api",
			Action:     action,
			EntityType: entityType,
			EntityID:   entityID,
			Status:     status,
		}
		message := formatAuditMessage(GetOperator(c), c.Request.Method, c.Request.URL.Path, status)
		extra := map[string]interface{}{
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}
		if status >= http.StatusBadRequest {
			services.LogWarning(entry, message, extra)
			return
		}
		services.LogInfo(entry, message, extra)
	}
}

// parseRouteInfo maps a route pattern to the entity it touches and the
// action taken, e.g. "/api/projects/:id/sync" is ("project", "sync").
func parseRouteInfo(fullPath string) (entityType, action string) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(fullPath, "/api/"), "/"), "/")

	entityType = strings.TrimSuffix(parts[0], "s")
	if entityType == "" {
		entityType = "unknown"
	}

	action = "create"
	if last := parts[len(parts)-1]; len(parts) > 1 && !strings.HasPrefix(last, ":") {
		action = last
	}
	return entityType, action
}

func formatAuditMessage(operator, method, path string, status int) string {
	if operator == "" {
		operator = "anonymous"
	}
	result := "ok"
	if status >= http.StatusBadRequest {
		result = "failed"
	}
	return fmt.Sprintf("%s %s %s: %s (%d)", operator, method, path, result, status)
}
