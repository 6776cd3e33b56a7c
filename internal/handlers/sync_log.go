package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/longtails/freemasons/internal/services"
	"github.com/longtails/freemasons/pkg/response"
	"gorm.io/gorm"
)

type SyncLogHandler struct {
	syncLogService *services.SyncLogService
}

func NewSyncLogHandler(db *gorm.DB) *SyncLogHandler {
	return &SyncLogHandler{
		syncLogService: services.NewSyncLogService(db),
	}
}

// GET /api/sync-logs
func (h *SyncLogHandler) List(c *gin.Context) {
	var req services.SyncLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.syncLogService.List(&req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, resp)
}

// GET /api/sync-logs/modules
func (h *SyncLogHandler) GetModules(c *gin.Context) {
	modules, err := h.syncLogService.GetModules()
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"modules": modules})
}
