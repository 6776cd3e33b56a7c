package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/longtails/freemasons/internal/models"
	"github.com/longtails/freemasons/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports database reachability and tracker state.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue) *HealthHandler {
	return &HealthHandler{db: db, queue: queue}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	code := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	components := gin.H{
		"database":   dbStatus,
		"queue_mode": queueMode,
	}
	if dbStatus == "ok" {
		var projects, members, staleProjects int64
		h.db.Model(&models.Project{}).Count(&projects)
		h.db.Model(&models.Member{}).Count(&members)
		h.db.Model(&models.Project{}).Where("last_sync_at IS NULL").Count(&staleProjects)
		components["projects"] = projects
		components["members"] = members
		components["never_synced_projects"] = staleProjects
	}

	c.JSON(code, gin.H{
		"status":     overall,
		"service":    "freemasons",
		"components": components,
	})
}
